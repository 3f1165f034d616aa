package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{
		"MODEL_CHOICE", "OPENAI_BASE_URL", "LMSTUDIO_API_HOST", "OPENAI_API_KEY",
		"NEO4J_URI", "NEO4J_USER", "NEO4J_PASSWORD",
		"CHRONICLE_SEARCH_LIMIT", "CHRONICLE_CLEAR_DATA",
	} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()

	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, DefaultAPIKey, cfg.APIKey)
	assert.Equal(t, DefaultNeo4jURI, cfg.Neo4jURI)
	assert.Equal(t, DefaultNeo4jUser, cfg.Neo4jUser)
	assert.Equal(t, DefaultNeo4jPassword, cfg.Neo4jPassword)
	assert.Equal(t, DefaultSearchLimit, cfg.SearchLimit)
	assert.False(t, cfg.ClearOnStart)
	require.NoError(t, cfg.Validate())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("MODEL_CHOICE", "qwen2.5-7b-instruct")
	t.Setenv("OPENAI_BASE_URL", "http://10.0.0.5:1234/v1")
	t.Setenv("OPENAI_API_KEY", "secret")
	t.Setenv("NEO4J_URI", "bolt://db:7687")
	t.Setenv("NEO4J_USER", "graph")
	t.Setenv("NEO4J_PASSWORD", "hunter2")
	t.Setenv("CHRONICLE_SEARCH_LIMIT", "25")
	t.Setenv("CHRONICLE_CLEAR_DATA", "true")

	cfg := FromEnv()

	assert.Equal(t, "qwen2.5-7b-instruct", cfg.Model)
	assert.Equal(t, "http://10.0.0.5:1234/v1", cfg.BaseURL)
	assert.Equal(t, "secret", cfg.APIKey)
	assert.Equal(t, "bolt://db:7687", cfg.Neo4jURI)
	assert.Equal(t, "graph", cfg.Neo4jUser)
	assert.Equal(t, "hunter2", cfg.Neo4jPassword)
	assert.Equal(t, 25, cfg.SearchLimit)
	assert.True(t, cfg.ClearOnStart)
}

func TestFromEnvLegacyHostAlias(t *testing.T) {
	t.Setenv("OPENAI_BASE_URL", "")
	t.Setenv("LMSTUDIO_API_HOST", "http://127.0.0.1:1234/v1")

	cfg := FromEnv()
	assert.Equal(t, "http://127.0.0.1:1234/v1", cfg.BaseURL)
}

func TestFromEnvMalformedValues(t *testing.T) {
	t.Setenv("CHRONICLE_SEARCH_LIMIT", "lots")
	t.Setenv("CHRONICLE_CLEAR_DATA", "yes please")

	cfg := FromEnv()
	assert.Equal(t, DefaultSearchLimit, cfg.SearchLimit)
	assert.False(t, cfg.ClearOnStart)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"empty model", func(c *Config) { c.Model = "" }, true},
		{"empty base URL", func(c *Config) { c.BaseURL = "" }, true},
		{"empty neo4j URI", func(c *Config) { c.Neo4jURI = "" }, true},
		{"zero search limit", func(c *Config) { c.SearchLimit = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Model:       DefaultModel,
				BaseURL:     DefaultBaseURL,
				APIKey:      DefaultAPIKey,
				Neo4jURI:    DefaultNeo4jURI,
				SearchLimit: DefaultSearchLimit,
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
