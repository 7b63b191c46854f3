package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/smartctf/filevault/internal/flagx"
	"github.com/smartctf/filevault/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "1h" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON configuration
// files. After unmarshalling, its fields are copied into the runtime Config
// struct which uses time.Duration.
type JsonConfig struct {
	EndpointAddrHTTP            string         `json:"endpoint_addr_http"`
	DatabaseDSN                 string         `json:"database_dsn"`
	SecretKey                   string         `json:"secret_key"`
	AccessTokenValidityDuration timex.Duration `json:"access_token_validity_duration"`
	MaxUploadBytes              int64          `json:"max_upload_bytes"`
	BlobBackend                 string         `json:"blob_backend"`
	BlobRootDir                 string         `json:"blob_root_dir"`
	ScratchSweepInterval        timex.Duration `json:"scratch_sweep_interval"`
	ScratchMaxAge               timex.Duration `json:"scratch_max_age"`
	S3RootUser                  string         `json:"s3_root_user"`
	S3RootPassword              string         `json:"s3_root_password"`
	S3Bucket                    string         `json:"s3_bucket"`
	S3Region                    string         `json:"s3_region"`
	S3BaseEndpoint              string         `json:"s3_base_endpoint"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path is taken from the -c or -config command-line flags; when
// neither is set, no JSON file is loaded. If the file cannot be read or
// contains invalid JSON, the function panics. The caller merges these values
// with defaults and command-line flags as part of the full configuration
// process.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	// seed the DTO with current values so omitted JSON fields keep defaults
	c := &JsonConfig{
		EndpointAddrHTTP:            config.EndpointAddrHTTP,
		DatabaseDSN:                 config.DatabaseDSN,
		SecretKey:                   config.SecretKey,
		AccessTokenValidityDuration: timex.Duration{Duration: config.AccessTokenValidityDuration},
		MaxUploadBytes:              config.MaxUploadBytes,
		BlobBackend:                 config.BlobBackend,
		BlobRootDir:                 config.BlobRootDir,
		ScratchSweepInterval:        timex.Duration{Duration: config.ScratchSweepInterval},
		ScratchMaxAge:               timex.Duration{Duration: config.ScratchMaxAge},
		S3RootUser:                  config.S3RootUser,
		S3RootPassword:              config.S3RootPassword,
		S3Bucket:                    config.S3Bucket,
		S3Region:                    config.S3Region,
		S3BaseEndpoint:              config.S3BaseEndpoint,
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	config.EndpointAddrHTTP = c.EndpointAddrHTTP
	config.DatabaseDSN = c.DatabaseDSN
	config.SecretKey = c.SecretKey
	config.AccessTokenValidityDuration = time.Duration(c.AccessTokenValidityDuration.Duration)
	config.MaxUploadBytes = c.MaxUploadBytes
	config.BlobBackend = c.BlobBackend
	config.BlobRootDir = c.BlobRootDir
	config.ScratchSweepInterval = time.Duration(c.ScratchSweepInterval.Duration)
	config.ScratchMaxAge = time.Duration(c.ScratchMaxAge.Duration)
	config.S3RootUser = c.S3RootUser
	config.S3RootPassword = c.S3RootPassword
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
}
