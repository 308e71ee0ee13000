package singleinstance

import (
	"os"
	"strconv"
	"strings"
)

const (
	defaultPortStart = 49500
	defaultPortEnd   = 49550

	portStartEnv = "SINGLEINSTANCE_PORT_START"
	portEndEnv   = "SINGLEINSTANCE_PORT_END"
)

// portRangeFrom reads the inclusive loopback port range. Unset or invalid
// values keep the defaults; the result is clamped to [1024, 65535] and
// ordered.
func portRangeFrom(getenv func(string) string) (int, int) {
	start := envInt(getenv, portStartEnv, defaultPortStart)
	end := envInt(getenv, portEndEnv, defaultPortEnd)
	start = max(start, 1024)
	end = min(end, 65535)
	if end < start {
		start, end = end, start
	}
	return start, end
}

func envInt(getenv func(string) string, key string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(getenv(key)))
	if err != nil {
		return fallback
	}
	return n
}

// PortRange is the effective range taken from the environment.
func PortRange() (int, int) { return portRangeFrom(os.Getenv) }
