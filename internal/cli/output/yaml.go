package output

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// PrintYAML writes data as YAML. Values are first round-tripped through JSON so the YAML keys
// match the json tags of the API types.
func PrintYAML(w io.Writer, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode yaml: %w", err)
	}

	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("failed to encode yaml: %w", err)
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)

	if err := encoder.Encode(generic); err != nil {
		return fmt.Errorf("failed to encode yaml: %w", err)
	}

	return encoder.Close()
}
