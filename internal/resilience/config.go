package resilience

import "time"

// SourceCBConfig builds the circuit breaker Config wrapping a source
// fetch, using spec §5's named defaults: failure_threshold=3 consecutive
// failures to Open, reset_timeout=300s before trying half-open again.
func SourceCBConfig(onStateChange func(from, to State)) Config {
	cfg := DefaultConfig()
	cfg.MaxFailures = 3
	cfg.Timeout = 300 * time.Second
	cfg.HalfOpenMax = 2
	cfg.OnStateChange = onStateChange
	return cfg
}

// StrictCBConfig trips faster and stays open longer, for sources whose
// failure mode is expensive (e.g. paid APIs with rate-limit penalties).
func StrictCBConfig(onStateChange func(from, to State)) Config {
	cfg := DefaultConfig()
	cfg.MaxFailures = 3
	cfg.Timeout = 60 * time.Second
	cfg.HalfOpenMax = 1
	cfg.OnStateChange = onStateChange
	return cfg
}

// LenientCBConfig tolerates more transient failures before opening, for
// sources known to be flaky but cheap to retry.
func LenientCBConfig(onStateChange func(from, to State)) Config {
	cfg := DefaultConfig()
	cfg.MaxFailures = 10
	cfg.Timeout = 15 * time.Second
	cfg.HalfOpenMax = 5
	cfg.OnStateChange = onStateChange
	return cfg
}
