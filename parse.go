package llmcore

import (
	"encoding/json"

	"github.com/kaptinlin/jsonrepair"
)

// parseJSONWithRepair is a drop-in replacement for json.Unmarshal that
// falls back to a repair pass for the minor malformations some
// providers emit (trailing commas, unquoted keys, markdown fences).
// Valid JSON takes the fast path with no overhead.
func parseJSONWithRepair(data []byte, v any) error {
	origErr := json.Unmarshal(data, v)
	if origErr == nil {
		return nil
	}
	repaired, err := jsonrepair.JSONRepair(string(data))
	if err != nil {
		return origErr
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return origErr
	}
	return nil
}
