package app

import (
	"testing"
)

func TestLinkCommand(t *testing.T) {
	// Test that link command is properly configured
	if linkCmd.Use != "link <formula>" {
		t.Errorf("expected Use to be 'link <formula>', got '%s'", linkCmd.Use)
	}

	if linkCmd.Short == "" {
		t.Error("expected Short description to be set")
	}

	if linkCmd.RunE == nil {
		t.Error("expected RunE to be set")
	}
}

func TestLinkCommandFlags(t *testing.T) {
	flag := linkCmd.Flags().Lookup("overwrite")
	if flag == nil {
		t.Fatal("expected --overwrite flag to be registered")
	}

	if flag.Usage == "" {
		t.Error("expected --overwrite flag to have usage text")
	}

	if flag.DefValue != "false" {
		t.Errorf("expected --overwrite default to be false, got %s", flag.DefValue)
	}
}

func TestLinkCommandTakesExactlyOneArg(t *testing.T) {
	if err := linkCmd.Args(linkCmd, []string{}); err == nil {
		t.Error("expected link with no arguments to be rejected")
	}
	if err := linkCmd.Args(linkCmd, []string{"jq", "ripgrep"}); err == nil {
		t.Error("expected link with two arguments to be rejected")
	}
	if err := linkCmd.Args(linkCmd, []string{"jq"}); err != nil {
		t.Errorf("expected link with one argument to be accepted, got %v", err)
	}
}

func TestUnlinkCommand(t *testing.T) {
	// Test that unlink command is properly configured
	if unlinkCmd.Use != "unlink <formula>" {
		t.Errorf("expected Use to be 'unlink <formula>', got '%s'", unlinkCmd.Use)
	}

	if unlinkCmd.Short == "" {
		t.Error("expected Short description to be set")
	}

	if unlinkCmd.RunE == nil {
		t.Error("expected RunE to be set")
	}

	if err := unlinkCmd.Args(unlinkCmd, []string{"jq"}); err != nil {
		t.Errorf("expected unlink with one argument to be accepted, got %v", err)
	}
}
