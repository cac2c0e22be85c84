package app

import (
	"testing"
)

func TestUpgradeCommand(t *testing.T) {
	// Test that upgrade command is properly configured
	if upgradeCmd.Use != "upgrade [formula]..." {
		t.Errorf("expected Use to be 'upgrade [formula]...', got '%s'", upgradeCmd.Use)
	}

	if upgradeCmd.Short == "" {
		t.Error("expected Short description to be set")
	}

	if upgradeCmd.Long == "" {
		t.Error("expected Long description to be set")
	}

	if upgradeCmd.RunE == nil {
		t.Error("expected RunE to be set")
	}
}

func TestUpgradeCommandFlags(t *testing.T) {
	tests := []struct {
		name         string
		flagName     string
		defaultValue string
	}{
		{
			name:         "force flag",
			flagName:     "force",
			defaultValue: "false",
		},
		{
			name:         "overwrite flag",
			flagName:     "overwrite",
			defaultValue: "false",
		},
		{
			name:         "dry-run flag",
			flagName:     "dry-run",
			defaultValue: "false",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag := upgradeCmd.Flags().Lookup(tt.flagName)
			if flag == nil {
				t.Errorf("expected flag '%s' to be registered", tt.flagName)
				return
			}

			if flag.Usage == "" {
				t.Errorf("expected flag '%s' to have usage text", tt.flagName)
			}

			if flag.DefValue != tt.defaultValue {
				t.Errorf("expected flag '%s' default to be %s, got %s",
					tt.flagName, tt.defaultValue, flag.DefValue)
			}
		})
	}
}

func TestUpgradeDryRunShorthand(t *testing.T) {
	flag := upgradeCmd.Flags().ShorthandLookup("n")
	if flag == nil {
		t.Fatal("expected -n shorthand for --dry-run")
	}
	if flag.Name != "dry-run" {
		t.Errorf("expected -n to map to dry-run, got '%s'", flag.Name)
	}
}
