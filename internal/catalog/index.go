package catalog

import (
	"encoding/json"

	"github.com/blackwell-systems/zerobrew/internal/formula"
)

// parseIndex decodes the full-index payload, an array of formula objects.
func parseIndex(body []byte) ([]formula.Formula, error) {
	var formulas []formula.Formula
	if err := json.Unmarshal(body, &formulas); err != nil {
		return nil, err
	}
	return formulas, nil
}
