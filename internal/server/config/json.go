package config

import (
	"encoding/json"
	"os"

	"github.com/hearthledger/hearthledger/internal/flagx"
	"github.com/hearthledger/hearthledger/internal/timex"
)

// JsonConfig is the JSON-file shape of Config. It uses timex.Duration for
// interval fields, which parses both string values such as "5m" and integer
// nanoseconds. It is an intermediate DTO: after unmarshalling, its fields
// are copied into the runtime Config.
type JsonConfig struct {
	EndpointAddrHTTP   string         `json:"endpoint_addr_http"`
	DatabaseDSN        string         `json:"database_dsn"`
	SecretKey          string         `json:"secret_key"`
	InvitationValidity timex.Duration `json:"invitation_validity"`
	ReportCacheTTL     timex.Duration `json:"report_cache_ttl"`
	BatchRetryBackoff  timex.Duration `json:"batch_retry_backoff"`
	LogBackend         string         `json:"log_backend"`
	S3RootUser         string         `json:"s3_root_user"`
	S3RootPassword     string         `json:"s3_root_password"`
	S3Bucket           string         `json:"s3_bucket"`
	S3Region           string         `json:"s3_region"`
	S3BaseEndpoint     string         `json:"s3_base_endpoint"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance. The file path comes from the -c/-config flags; when
// neither is set, no JSON file is loaded. The file must be readable and
// valid JSON, otherwise the function panics.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	config.EndpointAddrHTTP = c.EndpointAddrHTTP
	config.DatabaseDSN = c.DatabaseDSN
	config.SecretKey = c.SecretKey
	config.InvitationValidity = c.InvitationValidity.Duration
	config.ReportCacheTTL = c.ReportCacheTTL.Duration
	config.BatchRetryBackoff = c.BatchRetryBackoff.Duration
	config.LogBackend = c.LogBackend
	config.S3RootUser = c.S3RootUser
	config.S3RootPassword = c.S3RootPassword
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
}
