package app

import (
	"testing"
)

func TestGCCommand(t *testing.T) {
	// Test that gc command is properly configured
	if gcCmd.Use != "gc" {
		t.Errorf("expected Use to be 'gc', got '%s'", gcCmd.Use)
	}

	if gcCmd.Short == "" {
		t.Error("expected Short description to be set")
	}

	if gcCmd.RunE == nil {
		t.Error("expected RunE to be set")
	}

	if err := gcCmd.Args(gcCmd, []string{"extra"}); err == nil {
		t.Error("expected gc to reject positional arguments")
	}
}

func TestCleanupCommand(t *testing.T) {
	// Test that cleanup command is properly configured
	if cleanupCmd.Use != "cleanup" {
		t.Errorf("expected Use to be 'cleanup', got '%s'", cleanupCmd.Use)
	}

	if cleanupCmd.Short == "" {
		t.Error("expected Short description to be set")
	}

	if cleanupCmd.RunE == nil {
		t.Error("expected RunE to be set")
	}
}

func TestCleanupCommandFlags(t *testing.T) {
	flag := cleanupCmd.Flags().Lookup("prune")
	if flag == nil {
		t.Fatal("expected --prune flag to be registered")
	}

	if flag.Usage == "" {
		t.Error("expected --prune flag to have usage text")
	}

	if flag.DefValue != "30" {
		t.Errorf("expected --prune default to be 30, got %s", flag.DefValue)
	}
}
