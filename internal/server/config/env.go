package config

import "github.com/kelseyhightower/envconfig"

// EnvPrefix prefixes every environment variable, e.g. ACCTX_DATABASE_DSN.
const EnvPrefix = "ACCTX"

// parseEnv overlays values from ACCTX_* environment variables. Variables
// that are not set leave the current value untouched. Panics on values
// that cannot be parsed, like the other loaders.
func parseEnv(config *Config) {
	if err := envconfig.Process(EnvPrefix, config); err != nil {
		panic(err)
	}
}
