package notify

import (
	"fmt"
	"strings"
	"time"

	"voltrack/internal/events"
)

// Service is a configured Shoutrrr destination.
type Service struct {
	Name string `yaml:"name"`
	// URL is a Shoutrrr service URL, e.g. "discord://token@id".
	URL string `yaml:"url"`
	// MinSeverity is the lowest severity sent: info, warning or critical.
	MinSeverity string `yaml:"min_severity"`
	// Events restricts the service to these event types. Empty means the
	// default set.
	Events []string `yaml:"events"`
	// Cooldown is the minimum time between two notifications of the same
	// event type for the same volume.
	Cooldown time.Duration `yaml:"cooldown"`
	// QuietStart and QuietEnd ("HH:MM", UTC) bound a daily window in which
	// non-critical notifications are suppressed.
	QuietStart string `yaml:"quiet_start"`
	QuietEnd   string `yaml:"quiet_end"`
}

// DefaultEvents are the event types a service receives unless it lists its
// own.
var DefaultEvents = []events.EventType{
	events.VolumeRemoved,
	events.VolumeDetectionFailed,
}

// ParseSeverity maps a configured severity name.
func ParseSeverity(s string) (events.Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "warning":
		return events.SeverityWarning, nil
	case "info":
		return events.SeverityInfo, nil
	case "critical":
		return events.SeverityCritical, nil
	default:
		return 0, fmt.Errorf("unknown severity %q", s)
	}
}

// Validate checks a service definition.
func (s Service) Validate() error {
	if strings.TrimSpace(s.URL) == "" {
		return fmt.Errorf("notification service %q: url is required", s.Name)
	}
	if !strings.Contains(s.URL, "://") {
		return fmt.Errorf("notification service %q: url must be a shoutrrr url", s.Name)
	}
	if _, err := ParseSeverity(s.MinSeverity); err != nil {
		return fmt.Errorf("notification service %q: %w", s.Name, err)
	}
	if (s.QuietStart == "") != (s.QuietEnd == "") {
		return fmt.Errorf("notification service %q: quiet hours need both start and end", s.Name)
	}
	for _, hm := range []string{s.QuietStart, s.QuietEnd} {
		if hm == "" {
			continue
		}
		if _, err := time.Parse("15:04", hm); err != nil {
			return fmt.Errorf("notification service %q: bad quiet hours time %q", s.Name, hm)
		}
	}
	return nil
}

func (s Service) wants(t events.EventType) bool {
	if len(s.Events) == 0 {
		for _, d := range DefaultEvents {
			if d == t {
				return true
			}
		}
		return false
	}
	for _, e := range s.Events {
		if events.EventType(e) == t {
			return true
		}
	}
	return false
}
