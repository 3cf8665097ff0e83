// Package envutil reads typed configuration values from the environment.
// Every helper treats an unset or empty variable as absent and falls back to
// the supplied default; malformed values never abort startup.
package envutil

import (
	"os"
	"strconv"
	"strings"
	"time"
)

func lookup(key string) (string, bool) {
	val := os.Getenv(key)
	return val, val != ""
}

// Get returns the variable's value, or fallback when absent.
func Get(key, fallback string) string {
	if val, ok := lookup(key); ok {
		return val
	}
	return fallback
}

// GetInt returns the variable parsed as a decimal integer. Absent or
// unparseable values yield fallback.
func GetInt(key string, fallback int) int {
	val, ok := lookup(key)
	if !ok {
		return fallback
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return i
}

// GetBoolLoose accepts the usual truthy spellings (true, 1, yes, on) in any
// case. Any other set value reads as false; only an absent variable yields
// fallback.
func GetBoolLoose(key string, fallback bool) bool {
	val, ok := lookup(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(val) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

// GetDuration returns the variable parsed with time.ParseDuration. Absent or
// unparseable values yield fallback.
func GetDuration(key string, fallback time.Duration) time.Duration {
	val, ok := lookup(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return d
}
