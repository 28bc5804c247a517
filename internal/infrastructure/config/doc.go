// Package config loads and validates SchoolHub Core configuration.
//
// Values are resolved in this order:
//   - built-in defaults
//   - the YAML file (SCHOOLHUB_CONFIG, default configs/config.yaml)
//   - SCHOOLHUB_* environment variables
//
// Validate runs last. The JWT secret has no default and must be at least
// 32 characters, so a fresh checkout refuses to start until one is set.
// Set secrets (JWT, MQTT and InfluxDB credentials, the seed admin password)
// through the environment rather than the file.
//
// Usage:
//
//	cfg, err := config.Load(config.PathFromEnv())
//	if err != nil {
//	    return err
//	}
//	codec, err := auth.NewTokenCodec(cfg.Security.JWT.Secret, cfg.AccessTokenTTL(), cfg.RefreshTokenTTL())
package config
