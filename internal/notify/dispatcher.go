// Package notify forwards volume events to Shoutrrr services.
package notify

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/nicholas-fedor/shoutrrr"
	"github.com/rs/zerolog/log"

	"voltrack/internal/events"
	"voltrack/internal/volume"
)

// Sender abstracts message dispatch so the dispatcher can be tested
// without hitting real services.
type Sender interface {
	Send(shoutrrrURL, message string) error
}

// ShoutrrrSender dispatches via the Shoutrrr library.
type ShoutrrrSender struct{}

func (ShoutrrrSender) Send(url, message string) error {
	return shoutrrr.Send(url, message)
}

// Dispatcher subscribes to the event bus, filters events per service,
// enforces cooldowns and quiet hours, and sends the rest.
type Dispatcher struct {
	bus      *events.Bus
	sender   Sender
	services []Service
	now      func() time.Time

	// cooldowns tracks the last dispatch per service, event type and volume.
	mu        sync.Mutex
	cooldowns map[string]time.Time

	unsubscribe func()
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

// NewDispatcher creates a dispatcher for the given services. Services that
// fail validation are skipped with a log line.
func NewDispatcher(bus *events.Bus, sender Sender, services []Service) *Dispatcher {
	if sender == nil {
		sender = ShoutrrrSender{}
	}
	d := &Dispatcher{
		bus:       bus,
		sender:    sender,
		now:       time.Now,
		cooldowns: make(map[string]time.Time),
		stopCh:    make(chan struct{}),
	}
	for _, svc := range services {
		if err := svc.Validate(); err != nil {
			log.Warn().Err(err).Msg("notify: skipping service")
			continue
		}
		d.services = append(d.services, svc)
	}
	return d
}

// Services returns the number of active services.
func (d *Dispatcher) Services() int { return len(d.services) }

// Start subscribes to the bus and begins dispatching.
func (d *Dispatcher) Start() {
	ch := make(chan events.Event, 256)

	d.unsubscribe = d.bus.Subscribe(func(e events.Event) {
		select {
		case ch <- e:
		default:
			log.Warn().Str("event", string(e.Type)).Msg("notify: event queue full, dropping event")
		}
	}, events.VolumeAdded, events.VolumeChanged, events.VolumeRemoved, events.VolumeDetectionFailed)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case e := <-ch:
				d.handle(e)
			case <-d.stopCh:
				for {
					select {
					case e := <-ch:
						d.handle(e)
					default:
						return
					}
				}
			}
		}
	}()
}

// Stop unsubscribes, drains queued events and waits for the worker.
func (d *Dispatcher) Stop() {
	if d.unsubscribe != nil {
		d.unsubscribe()
	}
	close(d.stopCh)
	d.wg.Wait()
}

// handle processes one event against every service.
func (d *Dispatcher) handle(e events.Event) {
	// Explicit untracking is a user action, not an outage.
	if e.Type == events.VolumeRemoved && e.Metadata["reason"] == "untracked" {
		return
	}
	for _, svc := range d.services {
		if !svc.wants(e.Type) {
			continue
		}
		minSev, _ := ParseSeverity(svc.MinSeverity)
		if e.Severity < minSev {
			continue
		}
		if d.inQuietHours(svc, e) {
			continue
		}
		if !d.cooldownElapsed(svc, e) {
			continue
		}
		d.dispatch(svc, e)
	}
}

func (d *Dispatcher) cooldownElapsed(svc Service, e events.Event) bool {
	if svc.Cooldown <= 0 {
		return true
	}
	key := svc.URL + "|" + string(e.Type) + "|" + e.Fingerprint
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.cooldowns[key]; ok && now.Sub(last) < svc.Cooldown {
		return false
	}
	d.cooldowns[key] = now
	return true
}

// inQuietHours returns true if the event should be suppressed.
// Critical events are never suppressed by quiet hours.
func (d *Dispatcher) inQuietHours(svc Service, e events.Event) bool {
	if e.Severity == events.SeverityCritical || svc.QuietStart == "" || svc.QuietEnd == "" {
		return false
	}

	now := d.now().UTC()
	nowMinutes := now.Hour()*60 + now.Minute()

	start := parseHHMM(svc.QuietStart)
	end := parseHHMM(svc.QuietEnd)

	if start < end {
		return nowMinutes >= start && nowMinutes < end
	}
	// Wraps midnight, e.g. 22:00-07:00
	return nowMinutes >= start || nowMinutes < end
}

func (d *Dispatcher) dispatch(svc Service, e events.Event) {
	msg := formatMessage(e)
	if err := d.sender.Send(svc.URL, msg); err != nil {
		log.Error().Err(err).Str("service", svc.Name).Str("event", string(e.Type)).Msg("notify: send failed")
		return
	}
	log.Debug().Str("service", svc.Name).Str("event", string(e.Type)).Msg("notify: sent")
}

// formatMessage builds a human-readable notification string.
func formatMessage(e events.Event) string {
	msg := fmt.Sprintf("[%s] %s", e.Severity.String(), e.Message)
	v, ok := e.Payload.(*volume.Volume)
	if !ok || v == nil {
		return msg
	}
	var details []string
	if v.Name != "" && v.Name != v.MountPath {
		details = append(details, v.Name)
	}
	if v.FileSystem != "" && v.FileSystem != volume.FSUnknown {
		details = append(details, string(v.FileSystem))
	}
	if v.TotalCapacity > 0 {
		details = append(details, fmt.Sprintf("%s free of %s",
			humanize.Bytes(v.AvailableSpace), humanize.Bytes(v.TotalCapacity)))
	}
	if v.IsTracked {
		details = append(details, "tracked")
	}
	if len(details) == 0 {
		return msg
	}
	return msg + " (" + strings.Join(details, ", ") + ")"
}

// parseHHMM converts "HH:MM" to minutes since midnight.
func parseHHMM(s string) int {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0
	}
	return t.Hour()*60 + t.Minute()
}
