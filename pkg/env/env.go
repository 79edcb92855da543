package env

import (
	"os"
	"strings"
)

// Prefix namespaces process-level knobs that are read before config.Load.
const Prefix = "CREDSTOCK_"

// Get returns CREDSTOCK_<key>, then the bare <key>, then fallback.
func Get(key, fallback string) string {
	key = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(key)), Prefix)
	if val := strings.TrimSpace(os.Getenv(Prefix + key)); val != "" {
		return val
	}
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}
