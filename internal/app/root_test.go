package app

import (
	"errors"
	"testing"

	"github.com/blackwell-systems/zerobrew/internal/install"
)

func TestRootCommand(t *testing.T) {
	// Test that root command is properly configured
	if RootCmd.Use != "zerobrew" {
		t.Errorf("expected Use to be 'zerobrew', got '%s'", RootCmd.Use)
	}

	if RootCmd.Short == "" {
		t.Error("expected Short description to be set")
	}

	if RootCmd.Long == "" {
		t.Error("expected Long description to be set")
	}

	if !RootCmd.SilenceUsage {
		t.Error("expected SilenceUsage to be set")
	}
}

func TestRootCommandHasSubcommands(t *testing.T) {
	// Test that subcommands are registered
	commands := RootCmd.Commands()

	expectedCommands := []string{
		"install <formula>...",
		"uninstall <formula>...",
		"upgrade [formula]...",
		"autoremove",
		"list",
		"link <formula>",
		"unlink <formula>",
		"pin <formula>...",
		"unpin <formula>...",
		"gc",
		"cleanup",
		"tap [user/repo]",
		"untap <user/repo>",
	}
	foundCommands := make(map[string]bool)

	for _, cmd := range commands {
		foundCommands[cmd.Use] = true
	}

	for _, expected := range expectedCommands {
		if !foundCommands[expected] {
			t.Errorf("expected command '%s' to be registered", expected)
		}
	}
}

func TestRootCommandHasPersistentFlags(t *testing.T) {
	// Test that --root flag is available
	flag := RootCmd.PersistentFlags().Lookup("root")
	if flag == nil {
		t.Fatal("expected --root flag to be registered")
	}

	if flag.Usage == "" {
		t.Error("expected --root flag to have usage text")
	}
}

func TestNewEngineUsesRootFlag(t *testing.T) {
	oldRoot := rootFlag
	rootFlag = t.TempDir()
	defer func() { rootFlag = oldRoot }()

	engine, err := newEngine()
	if err != nil {
		t.Fatalf("newEngine() failed: %v", err)
	}
	defer engine.Close()

	if engine.Paths().Root() != rootFlag {
		t.Errorf("engine root = %q; want %q", engine.Paths().Root(), rootFlag)
	}
}

func TestPrintReport(t *testing.T) {
	// An all-success report returns no error.
	ok := &install.Report{
		Installed: []string{"jq"},
		Failed:    map[string]error{},
	}
	if err := printReport(ok); err != nil {
		t.Errorf("printReport(success) = %v; want nil", err)
	}

	// Any failure surfaces as the command's error.
	boom := errors.New("boom")
	failed := &install.Report{
		Failed: map[string]error{"jq": boom},
	}
	if err := printReport(failed); !errors.Is(err, boom) {
		t.Errorf("printReport(failure) = %v; want the recorded error", err)
	}
}
