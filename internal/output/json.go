package output

import (
	"encoding/json"
	"fmt"

	"voltrack/internal/volume"
)

// JSONFormatter formats volumes as JSON.
type JSONFormatter struct{}

// FormatVolume formats a single volume as JSON.
func (f *JSONFormatter) FormatVolume(v *volume.Volume) (string, error) {
	return encodeJSON(v)
}

// FormatVolumeList formats volumes as a JSON array.
func (f *JSONFormatter) FormatVolumeList(vols []*volume.Volume) (string, error) {
	if len(vols) == 0 {
		return "[]\n", nil
	}
	return encodeJSON(vols)
}

func encodeJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal to JSON: %w", err)
	}
	return string(data) + "\n", nil
}
