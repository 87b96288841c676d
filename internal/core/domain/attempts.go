package domain

import (
	"strings"
	"time"
)

// AttemptPhase labels the lockout state machine position for a key.
type AttemptPhase string

const (
	// AttemptPhaseOpen means no failures are currently counted.
	AttemptPhaseOpen AttemptPhase = "open"
	// AttemptPhaseAccumulating means failures were counted but the threshold is not reached.
	AttemptPhaseAccumulating AttemptPhase = "accumulating"
	// AttemptPhaseLocked means the threshold was crossed and authentication is refused.
	AttemptPhaseLocked AttemptPhase = "locked"
)

// AttemptState is the governor's view of one key after an operation.
type AttemptState struct {
	Key         AttemptKey
	Phase       AttemptPhase
	Count       int64
	LockedUntil *time.Time
	RetryAfter  time.Duration
}

// Locked reports whether the state refuses authentication.
func (s AttemptState) Locked() bool {
	return s.Phase == AttemptPhaseLocked
}

// KeyStrategy selects how attempt counters are keyed.
type KeyStrategy string

const (
	// KeyStrategySourceUsername keys counters per (client address, claimed username)
	// pair so an attacker cannot lock a victim out from an unrelated address.
	KeyStrategySourceUsername KeyStrategy = "source_username"
	// KeyStrategyUsername keys counters per claimed username only.
	KeyStrategyUsername KeyStrategy = "username"
	// KeyStrategySource keys counters per client address only.
	KeyStrategySource KeyStrategy = "source"
)

// ParseKeyStrategy normalises textual input into a supported strategy.
func ParseKeyStrategy(value string) KeyStrategy {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(KeyStrategyUsername):
		return KeyStrategyUsername
	case string(KeyStrategySource):
		return KeyStrategySource
	default:
		return KeyStrategySourceUsername
	}
}

// AttemptKey is the composite identifier for one attempt counter.
type AttemptKey struct {
	Source   string
	Username string
	Strategy KeyStrategy
}

// NewAttemptKey builds a key under the supplied strategy. Username matching is
// case-insensitive; the source address is kept verbatim.
func NewAttemptKey(strategy KeyStrategy, source, username string) AttemptKey {
	return AttemptKey{
		Source:   strings.TrimSpace(source),
		Username: strings.ToLower(strings.TrimSpace(username)),
		Strategy: strategy,
	}
}

// String renders the storage identifier for the key.
func (k AttemptKey) String() string {
	switch k.Strategy {
	case KeyStrategyUsername:
		return k.Username
	case KeyStrategySource:
		return k.Source
	default:
		return k.Source + ":" + k.Username
	}
}
