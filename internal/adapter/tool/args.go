package tool

import (
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// decodeArgs decodes a call's argument object into P. Keys that P does not
// declare are rejected, so the closed parameter set holds even for tools
// registered without a schema wrapper.
func decodeArgs[P any](raw json.RawMessage) (P, error) {
	var p P
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return p, fmt.Errorf("invalid JSON: %w", err)
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &p,
		TagName:     "json",
		ErrorUnused: true,
	})
	if err != nil {
		return p, fmt.Errorf("build decoder: %w", err)
	}
	if err := dec.Decode(m); err != nil {
		return p, err
	}
	return p, nil
}
