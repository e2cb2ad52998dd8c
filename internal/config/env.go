package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Helpers for the region-specific variables. The shared Kafka, batch, shutdown
// and logging variables are parsed by storm-data-shared/config.

func parsePositiveDuration(key, fallback string) (time.Duration, error) {
	raw := sharedcfg.EnvOrDefault(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive duration", key, raw)
	}
	return d, nil
}

func parseIntRange(key string, fallback, lo, hi int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || (hi > 0 && n > hi) {
		if hi > 0 {
			return 0, fmt.Errorf("invalid %s %q: must be an integer in [%d, %d]", key, raw, lo, hi)
		}
		return 0, fmt.Errorf("invalid %s %q: must be an integer >= %d", key, raw, lo)
	}
	return n, nil
}

func parseBool(key string, fallback bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: must be a boolean", key, raw)
	}
	return b, nil
}

// parseFloatRange reads a float in [lo, hi].
func parseFloatRange(key string, fallback, lo, hi float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || !(f >= lo && f <= hi) {
		return 0, fmt.Errorf("invalid %s %q: must be a number in [%g, %g]", key, raw, lo, hi)
	}
	return f, nil
}
