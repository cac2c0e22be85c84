package app

import (
	"testing"
)

func TestPinCommand(t *testing.T) {
	// Test that pin command is properly configured
	if pinCmd.Use != "pin <formula>..." {
		t.Errorf("expected Use to be 'pin <formula>...', got '%s'", pinCmd.Use)
	}

	if pinCmd.Short == "" {
		t.Error("expected Short description to be set")
	}

	if pinCmd.RunE == nil {
		t.Error("expected RunE to be set")
	}

	if err := pinCmd.Args(pinCmd, []string{}); err == nil {
		t.Error("expected pin with no arguments to be rejected")
	}
}

func TestUnpinCommand(t *testing.T) {
	// Test that unpin command is properly configured
	if unpinCmd.Use != "unpin <formula>..." {
		t.Errorf("expected Use to be 'unpin <formula>...', got '%s'", unpinCmd.Use)
	}

	if unpinCmd.Short == "" {
		t.Error("expected Short description to be set")
	}

	if unpinCmd.RunE == nil {
		t.Error("expected RunE to be set")
	}

	if err := unpinCmd.Args(unpinCmd, []string{"jq"}); err != nil {
		t.Errorf("expected unpin with one argument to be accepted, got %v", err)
	}
}
