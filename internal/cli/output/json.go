package output

import (
	"encoding/json"
	"io"
)

// PrintJSON writes data as indented JSON.
func PrintJSON(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	return encoder.Encode(data)
}
