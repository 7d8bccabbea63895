package volume

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// FingerprintSize is the length of a fingerprint digest in bytes.
const FingerprintSize = blake2b.Size256

// Domain-separation tags, one per identity rule. Bumping a version changes
// every fingerprint produced by that rule.
const (
	rulePrimary  = "voltrack.volume.primary.v1"
	ruleExternal = "voltrack.volume.external.v1"
	ruleNetwork  = "voltrack.volume.network.v1"
)

// fingerprintNamespace scopes volume IDs derived from fingerprints.
var fingerprintNamespace = uuid.MustParse("6b0f5e0c-3c1d-4f0e-9a57-0d5c1b8f2e41")

// Fingerprint is a content-derived stable identity for a volume. Two
// fingerprints are equal only for the same logical volume, on the same
// device, under the same identity rule.
type Fingerprint [FingerprintSize]byte

func derive(rule string, parts ...[]byte) Fingerprint {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(rule))
	for _, p := range parts {
		// Length-prefix every part so ("ab","c") and ("a","bc") differ.
		var n [8]byte
		l := uint64(len(p))
		for i := range n {
			n[i] = byte(l >> (8 * i))
		}
		h.Write(n[:])
		h.Write(p)
	}
	var fp Fingerprint
	copy(fp[:], h.Sum(nil))
	return fp
}

// FromPrimaryVolume derives the identity of a local volume from its mount
// path and the owning device.
func FromPrimaryVolume(mountPath string, deviceID uuid.UUID) Fingerprint {
	return fromPrimaryVolume(mountPath, deviceID, nativePaths)
}

func fromPrimaryVolume(mountPath string, deviceID uuid.UUID, style PathStyle) Fingerprint {
	return derive(rulePrimary, []byte(style.normalize(mountPath)), deviceID[:])
}

// FromExternalVolume derives the identity of a removable volume from the
// marker id stored on it and the owning device.
func FromExternalVolume(markerID, deviceID uuid.UUID) Fingerprint {
	return derive(ruleExternal, markerID[:], deviceID[:])
}

// FromNetworkVolume derives the identity of a network volume from its backend
// (server/share). The local mount path only stands in when no backend is known.
func FromNetworkVolume(backendID, mountPath string) Fingerprint {
	return fromNetworkVolume(backendID, mountPath, nativePaths)
}

func fromNetworkVolume(backendID, mountPath string, style PathStyle) Fingerprint {
	backend := style.normalize(backendID)
	if backend == "" {
		backend = style.normalize(mountPath)
	}
	return derive(ruleNetwork, []byte(backend))
}

// ParseFingerprint parses the hex form produced by String.
func ParseFingerprint(s string) (Fingerprint, error) {
	var fp Fingerprint
	b, err := hex.DecodeString(s)
	if err != nil {
		return fp, fmt.Errorf("parse fingerprint: %w", err)
	}
	if len(b) != FingerprintSize {
		return fp, fmt.Errorf("parse fingerprint: want %d bytes, got %d", FingerprintSize, len(b))
	}
	copy(fp[:], b)
	return fp, nil
}

func (f Fingerprint) String() string { return hex.EncodeToString(f[:]) }

// ShortID is an abbreviated form for log lines.
func (f Fingerprint) ShortID() string { return hex.EncodeToString(f[:4]) }

// IsZero reports whether the fingerprint is unset.
func (f Fingerprint) IsZero() bool { return f == Fingerprint{} }

// UUID maps the fingerprint onto a stable name-based UUID.
func (f Fingerprint) UUID() uuid.UUID {
	return uuid.NewSHA1(fingerprintNamespace, f[:])
}

func (f Fingerprint) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Fingerprint) UnmarshalText(b []byte) error {
	fp, err := ParseFingerprint(string(b))
	if err != nil {
		return err
	}
	*f = fp
	return nil
}
