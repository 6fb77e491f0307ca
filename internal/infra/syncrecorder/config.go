package syncrecorder

import (
	"os"
)

// Config selects where drain run summaries are written. Local builds use InfluxDB, gcloud
// builds stream into BigQuery.
type Config struct {
	Disabled bool
	InfluxDB InfluxDBConfig
	BigQuery BigQueryConfig
}

type InfluxDBConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

func (c InfluxDBConfig) configured() bool {
	return c.Token != "" && c.Org != ""
}

type BigQueryConfig struct {
	ProjectID string
	Dataset   string
	Table     string
}

func LoadConfig() *Config {
	return &Config{
		Disabled: os.Getenv("SYNC_RESULTS_DISABLED") == "true",
		InfluxDB: InfluxDBConfig{
			URL:    envOr("INFLUXDB_URL", "http://localhost:8086"),
			Token:  os.Getenv("INFLUXDB_TOKEN"),
			Org:    os.Getenv("INFLUXDB_ORG"),
			Bucket: envOr("INFLUXDB_BUCKET", "sync_results"),
		},
		BigQuery: BigQueryConfig{
			ProjectID: envOr("BIGQUERY_PROJECT_ID", os.Getenv("GOOGLE_CLOUD_PROJECT")),
			Dataset:   envOr("BIGQUERY_DATASET", "remind_engine"),
			Table:     envOr("BIGQUERY_TABLE", "drain_runs"),
		},
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
