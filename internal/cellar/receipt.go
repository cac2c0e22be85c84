package cellar

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// ReceiptName is the per-keg manifest making materialization idempotent.
const ReceiptName = "INSTALL_RECEIPT.json"

// Receipt records what a keg was materialized from and for. A keg whose
// receipt names the current prefix needs no further work.
type Receipt struct {
	StoreKey        string            `json:"store_key"`
	RelocatedFor    string            `json:"relocated_for"`
	PatcherVersions map[string]string `json:"patcher_versions,omitempty"`
}

func readReceipt(kegPath string) (*Receipt, bool) {
	data, err := os.ReadFile(filepath.Join(kegPath, ReceiptName))
	if err != nil {
		return nil, false
	}
	var r Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, false
	}
	return &r, true
}

func writeReceipt(kegPath string, r *Receipt) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(kegPath, ReceiptName), data, 0o644)
}
