package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/accountctx/internal/flagx"
	"github.com/dmitrijs2005/accountctx/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations use
// timex.Duration so both "24h" and integer nanoseconds are accepted. Absent
// fields keep whatever the previous layer set.
type JsonConfig struct {
	EndpointAddrGRPC                  *string         `json:"endpoint_addr_grpc"`
	EndpointAddrHTTP                  *string         `json:"endpoint_addr_http"`
	DatabaseDSN                       *string         `json:"database_dsn"`
	SecretKey                         *string         `json:"secret_key"`
	AccessTokenValidityDuration       *timex.Duration `json:"access_token_validity_duration"`
	VerificationTokenValidityDuration *timex.Duration `json:"verification_token_validity_duration"`
	SessionTTL                        *timex.Duration `json:"session_ttl"`
	MasterKey                         *string         `json:"master_key"`
	KDFIterations                     *int            `json:"kdf_iterations"`
	LoadRetryAttempts                 *int            `json:"load_retry_attempts"`
	LoadRetryBackoff                  *timex.Duration `json:"load_retry_backoff"`
	DeleteSweepInterval               *timex.Duration `json:"delete_sweep_interval"`
	RedisURL                          *string         `json:"redis_url"`
	LockTTL                           *timex.Duration `json:"lock_ttl"`
	S3RootUser                        *string         `json:"s3_root_user"`
	S3RootPassword                    *string         `json:"s3_root_password"`
	S3Bucket                          *string         `json:"s3_bucket"`
	S3Region                          *string         `json:"s3_region"`
	S3BaseEndpoint                    *string         `json:"s3_base_endpoint"`
	BlobThreshold                     *int            `json:"blob_threshold"`
	TrustForwardedProto               *bool           `json:"trust_forwarded_proto"`
	AllowedOrigins                    []string        `json:"allowed_origins"`
	LogFormat                         *string         `json:"log_format"`
}

// parseJson loads the file named by -c/-config in args, if any, and copies
// the fields it sets into config. Panics if the file cannot be read or is
// not valid JSON.
func parseJson(config *Config, args []string) {
	path := flagx.ConfigFilePath(args)
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.MasterKey, c.MasterKey)
	setString(&config.RedisURL, c.RedisURL)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.LogFormat, c.LogFormat)

	if c.AccessTokenValidityDuration != nil {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.VerificationTokenValidityDuration != nil {
		config.VerificationTokenValidityDuration = c.VerificationTokenValidityDuration.Duration
	}
	if c.SessionTTL != nil {
		config.SessionTTL = c.SessionTTL.Duration
	}
	if c.LoadRetryBackoff != nil {
		config.LoadRetryBackoff = c.LoadRetryBackoff.Duration
	}
	if c.LockTTL != nil {
		config.LockTTL = c.LockTTL.Duration
	}
	if c.DeleteSweepInterval != nil {
		config.DeleteSweepInterval = c.DeleteSweepInterval.Duration
	}
	if c.KDFIterations != nil {
		config.KDFIterations = *c.KDFIterations
	}
	if c.LoadRetryAttempts != nil {
		config.LoadRetryAttempts = *c.LoadRetryAttempts
	}
	if c.BlobThreshold != nil {
		config.BlobThreshold = *c.BlobThreshold
	}
	if c.TrustForwardedProto != nil {
		config.TrustForwardedProto = *c.TrustForwardedProto
	}
	if c.AllowedOrigins != nil {
		config.AllowedOrigins = c.AllowedOrigins
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
