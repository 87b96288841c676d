// Package logger owns the process-wide zap logger and the masking helpers
// that keep credentials and network identifiers out of log output.
package logger

import (
	"net/netip"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// RequestIDKey is the context key under which the HTTP layer stores the
// request identifier.
type RequestIDKey struct{}

var (
	global *zap.Logger
	once   sync.Once
)

// New builds the process logger on first use and returns the same instance to
// every caller. Production emits JSON; other environments get the colored
// console encoder.
func New(env string) (*zap.Logger, error) {
	var err error
	once.Do(func() {
		cfg := zap.NewProductionConfig()
		if env != "production" {
			cfg = zap.NewDevelopmentConfig()
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		global, err = cfg.Build()
	})

	return global, err
}

// MaskIP hides the host-identifying tail of an address: IPv4 keeps the first
// two octets, IPv6 the first four groups. Unparseable input is masked
// entirely.
func MaskIP(ip string) string {
	if ip == "" {
		return ""
	}

	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "***"
	}
	addr = addr.Unmap()

	if addr.Is4() {
		octets := strings.Split(addr.String(), ".")
		return octets[0] + "." + octets[1] + ".*.*"
	}

	groups := strings.Split(addr.StringExpanded(), ":")
	return strings.Join(groups[:4], ":") + ":*:*:*:*"
}

// MaskString keeps the first and last two characters of a sensitive value.
// Short values are masked entirely.
func MaskString(s string) string {
	if s == "" {
		return ""
	}

	runes := []rune(s)
	if len(runes) <= 4 {
		return "***"
	}

	return string(runes[:2]) + "***" + string(runes[len(runes)-2:])
}
