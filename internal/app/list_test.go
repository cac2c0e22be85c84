package app

import (
	"testing"
)

func TestListCommand(t *testing.T) {
	// Test that list command is properly configured
	if listCmd.Use != "list" {
		t.Errorf("expected Use to be 'list', got '%s'", listCmd.Use)
	}

	if listCmd.Short == "" {
		t.Error("expected Short description to be set")
	}

	if listCmd.RunE == nil {
		t.Error("expected RunE to be set")
	}

	if err := listCmd.Args(listCmd, []string{"extra"}); err == nil {
		t.Error("expected list to reject positional arguments")
	}
}
