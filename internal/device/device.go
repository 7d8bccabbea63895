// Package device gives the local machine a stable UUID. Volume fingerprints
// are scoped to it, so it must survive restarts.
package device

import (
	"crypto/sha256"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/host"
)

const idFile = "device_id"

var deviceNamespace = uuid.MustParse("3f1c2a9e-7b64-4d8e-b0a5-52e91c7d6f13")

// Sources used to derive a fresh id, replaceable in tests.
var (
	hostID     = host.HostID
	macAddress = firstMACAddress
)

// LoadOrCreate returns the device id stored under dataDir, deriving and
// persisting one on first use. A non-empty override wins and is persisted.
func LoadOrCreate(dataDir, override string) (uuid.UUID, error) {
	if override != "" {
		id, err := uuid.Parse(override)
		if err != nil {
			return uuid.Nil, fmt.Errorf("device id override: %w", err)
		}
		return id, save(dataDir, id)
	}

	id, err := load(dataDir)
	if err == nil {
		return id, nil
	}
	if !os.IsNotExist(err) {
		log.Warn().Err(err).Str("dir", dataDir).Msg("device: unreadable id file, regenerating")
	}

	id = generate()
	if err := save(dataDir, id); err != nil {
		return uuid.Nil, err
	}
	log.Info().Str("device_id", id.String()).Msg("device: generated id")
	return id, nil
}

func load(dataDir string) (uuid.UUID, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, idFile))
	if err != nil {
		return uuid.Nil, err
	}
	s := strings.TrimSpace(string(data))
	if s == "" {
		return uuid.Nil, fmt.Errorf("empty device id file")
	}
	return uuid.Parse(s)
}

func save(dataDir string, id uuid.UUID) error {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, idFile), []byte(id.String()+"\n"), 0o600); err != nil {
		return fmt.Errorf("write device id: %w", err)
	}
	return nil
}

// generate derives the id from the host id, then the first MAC address, and
// falls back to a random id.
func generate() uuid.UUID {
	if hid, err := hostID(); err == nil && strings.TrimSpace(hid) != "" {
		return uuid.NewSHA1(deviceNamespace, []byte("host:"+strings.TrimSpace(hid)))
	}
	if mac := macAddress(); mac != "" {
		h := sha256.Sum256([]byte(mac))
		return uuid.NewSHA1(deviceNamespace, append([]byte("mac:"), h[:16]...))
	}
	return uuid.New()
}

func firstMACAddress() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || len(iface.HardwareAddr) == 0 {
			continue
		}
		return iface.HardwareAddr.String()
	}
	return ""
}
