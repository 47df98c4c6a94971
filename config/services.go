package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// ServiceMode names a background service the daemon can run.
type ServiceMode string

const (
	// ServiceModeSweeper periodically removes expired session keys and reset tokens.
	ServiceModeSweeper ServiceMode = "sweeper"
	// ServiceModeDeletionWatcher reacts to deleted user records.
	ServiceModeDeletionWatcher ServiceMode = "deletion-watcher"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{ServiceModeSweeper, ServiceModeDeletionWatcher}
}

// ParseServices parses a comma-delimited list of service names.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)
	if strings.TrimSpace(servicesStr) == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		mode := ServiceMode(name)
		if !slices.Contains(ValidServiceModes(), mode) {
			return nil, fmt.Errorf("invalid service name: %q (valid options: sweeper, deletion-watcher)", name)
		}
		services[mode] = true
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}
	return services, nil
}

// SweeperConfig contains expired-session sweeper configuration.
type SweeperConfig struct {
	// Interval is the sweep tick interval.
	Interval time.Duration `env:"INTERVAL" envDefault:"15m"`
	// Timeout bounds a single sweep.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"2m"`
}

// Sanitize applies guardrails to sweeper configuration values.
func (s *SweeperConfig) Sanitize() {
	// Enforce a floor to keep the document store from being scanned continuously.
	if s.Interval < time.Minute {
		s.Interval = time.Minute
	}
	if s.Timeout <= 0 || s.Timeout > s.Interval {
		s.Timeout = s.Interval
	}
}

// RelayConfig controls the login relay used by popup-style federated logins.
type RelayConfig struct {
	// Wait is how long a waiter blocks for the login result.
	Wait time.Duration `env:"WAIT" envDefault:"25s"`
	// Retention is how long an unclaimed result is held.
	Retention time.Duration `env:"RETENTION" envDefault:"1m"`
}

// Sanitize applies guardrails to relay configuration values.
func (r *RelayConfig) Sanitize() {
	if r.Wait <= 0 {
		r.Wait = 25 * time.Second
	}
	if r.Retention < r.Wait {
		r.Retention = r.Wait
	}
}
