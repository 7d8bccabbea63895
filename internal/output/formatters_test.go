package output

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"voltrack/internal/volume"
)

func createTestVolume(name, mount string, tracked bool) *volume.Volume {
	dev := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	v := volume.New(dev, volume.FromPrimaryVolume(mount, dev), name, mount)
	v.VolumeType = volume.TypeSecondary
	v.FileSystem = volume.FSExt4
	v.SetCapacity(2<<30, 1<<30)
	v.IsTracked = tracked
	return v
}

func TestTableFormatter_FormatVolumeList(t *testing.T) {
	vols := []*volume.Volume{
		createTestVolume("data", "/mnt/data", true),
		createTestVolume("", "/mnt/scratch", false),
	}

	tests := []struct {
		name      string
		formatter *TableFormatter
		want      []string
		dontWant  []string
	}{
		{
			name:      "default",
			formatter: &TableFormatter{},
			want:      []string{"NAME", "MOUNT", "/mnt/data", "2.0 GiB", "1.0 GiB", "yes", "no", "ext4"},
			dontWant:  []string{"FINGERPRINT"},
		},
		{
			name:      "no headers",
			formatter: &TableFormatter{NoHeaders: true},
			want:      []string{"/mnt/scratch"},
			dontWant:  []string{"NAME"},
		},
		{
			name:      "wide",
			formatter: &TableFormatter{Wide: true},
			want:      []string{"FINGERPRINT", vols[0].Fingerprint.ShortID(), vols[0].ID.String()},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := tt.formatter.FormatVolumeList(vols)
			if err != nil {
				t.Fatalf("FormatVolumeList() error = %v", err)
			}
			for _, s := range tt.want {
				if !strings.Contains(out, s) {
					t.Errorf("output missing %q:\n%s", s, out)
				}
			}
			for _, s := range tt.dontWant {
				if strings.Contains(out, s) {
					t.Errorf("output should not contain %q:\n%s", s, out)
				}
			}
		})
	}
}

func TestTableFormatter_Empty(t *testing.T) {
	out, _ := (&TableFormatter{}).FormatVolumeList(nil)
	if out != "No volumes found\n" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestJSONFormatter(t *testing.T) {
	f := &JSONFormatter{}
	v := createTestVolume("data", "/mnt/data", true)

	out, err := f.FormatVolumeList([]*volume.Volume{v})
	if err != nil {
		t.Fatal(err)
	}
	var decoded []map[string]any
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(decoded) != 1 || decoded[0]["fingerprint"] != v.Fingerprint.String() {
		t.Errorf("unexpected JSON %s", out)
	}

	empty, _ := f.FormatVolumeList(nil)
	if empty != "[]\n" {
		t.Errorf("empty list = %q", empty)
	}
}

func TestYAMLFormatter(t *testing.T) {
	f := &YAMLFormatter{}
	vols := []*volume.Volume{
		createTestVolume("data", "/mnt/data", true),
		createTestVolume("backup", "/mnt/backup", false),
	}

	out, err := f.FormatVolumeList(vols)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(out, "---\n") != 1 {
		t.Errorf("expected one document separator:\n%s", out)
	}

	single, err := f.FormatVolume(vols[0])
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := yaml.Unmarshal([]byte(single), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["mount_path"] != "/mnt/data" || decoded["fingerprint"] != vols[0].Fingerprint.String() {
		t.Errorf("unexpected YAML:\n%s", single)
	}
}

func TestNewFormatter(t *testing.T) {
	for _, f := range []Format{FormatTable, FormatYAML, FormatJSON, ""} {
		if _, err := NewFormatter(Options{Format: f}); err != nil {
			t.Errorf("NewFormatter(%q) error = %v", f, err)
		}
	}
	if _, err := NewFormatter(Options{Format: "xml"}); err == nil {
		t.Error("expected error for xml")
	}
	if err := ValidateFormat("csv"); err == nil {
		t.Error("expected error for csv")
	}
}

func TestEncode(t *testing.T) {
	out, err := Encode(FormatJSON, map[string]bool{"same": true})
	if err != nil || !strings.Contains(out, `"same": true`) {
		t.Errorf("Encode json = %q, %v", out, err)
	}
	out, err = Encode(FormatYAML, map[string]bool{"same": true})
	if err != nil || out != "same: true\n" {
		t.Errorf("Encode yaml = %q, %v", out, err)
	}
	if _, err := Encode(FormatTable, 1); err == nil {
		t.Error("expected error for table")
	}
}
