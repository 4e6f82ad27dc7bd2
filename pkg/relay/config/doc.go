// Package config provides configuration loading for the relay pipeline.
//
// Configuration is a flat-ish map of keys loaded from YAML or JSON
// files, with type-safe accessors that fall back to defaults:
//
//	cfg, err := config.FromFile("relay.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	workers := cfg.Int("worker_pool_size", 4)
//	ttl := cfg.Duration("idempotency_ttl", 5*time.Minute)
//
// Nested sections (retry, breaker, deadletter) are reached with
// Section:
//
//	attempts := cfg.Section("retry").Int("max_attempts", 3)
//
// relay.FromConfig converts a Config into processor options.
package config
