package output

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"voltrack/internal/volume"
)

// YAMLFormatter formats volumes as YAML.
type YAMLFormatter struct{}

// FormatVolume formats a single volume as YAML.
func (f *YAMLFormatter) FormatVolume(v *volume.Volume) (string, error) {
	return encodeYAML(v)
}

// FormatVolumeList formats volumes as a YAML stream, one document each.
func (f *YAMLFormatter) FormatVolumeList(vols []*volume.Volume) (string, error) {
	var buf bytes.Buffer
	for i, v := range vols {
		data, err := yaml.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to marshal volume %s to YAML: %w", v.MountPath, err)
		}
		if i > 0 {
			buf.WriteString("---\n")
		}
		buf.Write(data)
	}
	return buf.String(), nil
}

func encodeYAML(v any) (string, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal to YAML: %w", err)
	}
	return string(data), nil
}
