package model

import (
	"encoding/json"
	"fmt"
)

// unmarshalFixedArray decodes data as a JSON array of exactly len(out)
// numbers into out.
func unmarshalFixedArray(data []byte, out []float64) error {
	var raw []float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != len(out) {
		return fmt.Errorf("expected array of length %d, got %d", len(out), len(raw))
	}
	copy(out, raw)
	return nil
}
