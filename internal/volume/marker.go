package volume

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// MarkerFileName is the hidden file written at the root of removable volumes.
const MarkerFileName = ".voltrack-volume"

// Marker is the content of a volume marker file.
type Marker struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	CreatedBy uuid.UUID `json:"created_by"`
}

// MarkerStore reads or creates the identity marker at a volume root.
type MarkerStore interface {
	ReadOrCreate(root string, deviceID uuid.UUID) (uuid.UUID, error)
}

// FileMarkers stores markers as JSON files on the volume itself.
type FileMarkers struct{}

// ReadOrCreate returns the marker id stored under root, writing a fresh
// marker first when none exists.
func (FileMarkers) ReadOrCreate(root string, deviceID uuid.UUID) (uuid.UUID, error) {
	p := filepath.Join(root, MarkerFileName)

	m, err := readMarker(p)
	if err == nil {
		return m.ID, nil
	}
	if !os.IsNotExist(err) {
		return uuid.Nil, err
	}

	m = Marker{ID: uuid.New(), CreatedAt: time.Now().UTC(), CreatedBy: deviceID}
	if err := writeMarker(p, m); err != nil {
		return uuid.Nil, err
	}
	return m.ID, nil
}

func readMarker(p string) (Marker, error) {
	var m Marker
	data, err := os.ReadFile(p)
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decode marker %s: %w", p, err)
	}
	if m.ID == uuid.Nil {
		return m, fmt.Errorf("marker %s has no id", p)
	}
	return m, nil
}

func writeMarker(p string, m Marker) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode marker: %w", err)
	}
	if err := os.WriteFile(p, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write marker %s: %w", p, err)
	}
	if err := hideFile(p); err != nil {
		return fmt.Errorf("hide marker %s: %w", p, err)
	}
	return nil
}
