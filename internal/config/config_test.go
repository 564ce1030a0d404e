package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("PRIMARY_SECRET_KEY", "primary-secret")
	t.Setenv("SECONDARY_SECRET_KEY", "secondary-secret")

	cfg, err := Load("testdata/valid_config.yaml")

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "data/jobs.json", cfg.Store.Path)
	assert.Equal(t, 50, cfg.Store.LockRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.Store.LockRetryInterval)
	assert.Equal(t, "http://localhost:8001", cfg.Backends.Primary.BaseURL)
	assert.Equal(t, 2*time.Second, cfg.Worker.PollInterval)
	assert.False(t, cfg.Database.Enabled)
	assert.False(t, cfg.RabbitMQ.Enabled)
}

func TestLoad_ExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("PRIMARY_SECRET_KEY", "primary-secret")
	t.Setenv("SECONDARY_SECRET_KEY", "secondary-secret")

	cfg, err := Load("testdata/valid_config.yaml")

	require.NoError(t, err)
	assert.Equal(t, "primary-secret", cfg.Backends.Primary.SecretKey)
	assert.Equal(t, "secondary-secret", cfg.Backends.Secondary.SecretKey)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("testdata/does_not_exist.yaml")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_MalformedFile(t *testing.T) {
	_, err := Load("testdata/malformed.yaml")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Store:  StoreConfig{Path: "data/jobs.json"},
		Backends: BackendsConfig{
			Primary:   BackendConfig{BaseURL: "http://localhost:8001", SecretKey: "a"},
			Secondary: BackendConfig{BaseURL: "http://localhost:8002", SecretKey: "b"},
		},
		Worker: WorkerConfig{PollInterval: 2 * time.Second},
	}
}

func TestValidateAPIConfig(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.ValidateAPIConfig())

	cfg = validConfig()
	cfg.Server.Port = 0
	assert.Error(t, cfg.ValidateAPIConfig())

	cfg = validConfig()
	cfg.Store.Path = ""
	assert.Error(t, cfg.ValidateAPIConfig())
}

func TestValidateWorkerConfig(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.ValidateWorkerConfig())

	cfg = validConfig()
	cfg.Store.Path = ""
	assert.Error(t, cfg.ValidateWorkerConfig())

	cfg = validConfig()
	cfg.Backends.Primary.BaseURL = ""
	assert.Error(t, cfg.ValidateWorkerConfig())

	cfg = validConfig()
	cfg.Backends.Secondary.SecretKey = ""
	assert.Error(t, cfg.ValidateWorkerConfig())

	cfg = validConfig()
	cfg.Worker.PollInterval = -time.Second
	assert.Error(t, cfg.ValidateWorkerConfig())
}

func TestValidateSharedCollaborators(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Enabled = true
	assert.Error(t, cfg.ValidateAPIConfig(), "enabled database requires connection details")

	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.Database = "inspection"
	assert.NoError(t, cfg.ValidateAPIConfig())

	cfg.RabbitMQ.Enabled = true
	assert.Error(t, cfg.ValidateAPIConfig(), "enabled rabbitmq requires connection details")

	cfg.RabbitMQ.Host = "localhost"
	cfg.RabbitMQ.Port = 5672
	cfg.RabbitMQ.Exchange.Name = "jobs.events"
	assert.NoError(t, cfg.ValidateAPIConfig())
}
