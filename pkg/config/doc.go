// Package config loads typed configuration from environment variables.
//
// It wraps github.com/joho/godotenv for .env files and
// github.com/caarlos0/env/v11 for struct parsing. Every parsed type is cached
// per prefix, so repeated Load calls are cheap and return the same values.
//
// # Usage
//
//	if err := config.LoadEnv("deploy/.env"); err != nil {
//	    return err
//	}
//
//	var cfg queue.Config
//	if err := config.Load(&cfg); err != nil {
//	    return err
//	}
//
// Load reads ./.env once per process when it exists. LoadEnv never overrides
// variables that are already present in the process environment.
//
// # Error Handling
//
// ErrParsingConfig, ErrLoadingEnvFile and ErrNilPointer can be matched with
// errors.Is. Parse failures are never cached.
//
// # Testing
//
// ResetCache clears all cached values. WithoutCache forces a single reload.
package config
