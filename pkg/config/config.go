// Package config provides the immutable runtime configuration for chronicle.
//
// Configuration is read from the environment exactly once at startup via
// FromEnv and passed by reference into the session and its collaborators.
// Nothing in the rest of the codebase reads environment variables directly.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Defaults match a local LM Studio endpoint and a local Neo4j instance,
// which is the setup the agent is normally demonstrated against.
const (
	DefaultModel   = "llama-3.2-1b-instruct"
	DefaultBaseURL = "http://localhost:1234/v1"
	DefaultAPIKey  = "lm-studio"

	DefaultNeo4jURI      = "bolt://localhost:7687"
	DefaultNeo4jUser     = "neo4j"
	DefaultNeo4jPassword = "password"

	// DefaultSearchLimit bounds how many facts a single graph search returns.
	DefaultSearchLimit = 10
)

// Config holds all runtime settings. It is constructed once at startup and
// never mutated afterwards.
type Config struct {
	// Generation backend (OpenAI-compatible chat completions API).
	Model   string
	BaseURL string
	APIKey  string

	// Fact store (Neo4j).
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string

	// SearchLimit is the maximum number of facts returned per graph search.
	SearchLimit int

	// ClearOnStart wipes the graph and rebuilds indices at session start.
	// Destructive, so it is opt-in: the -clear flag or CHRONICLE_CLEAR_DATA.
	ClearOnStart bool
}

// FromEnv builds a Config from environment variables, falling back to the
// defaults above for anything unset.
//
// Recognized variables: MODEL_CHOICE, OPENAI_BASE_URL (with LMSTUDIO_API_HOST
// as a legacy alias), OPENAI_API_KEY, NEO4J_URI, NEO4J_USER, NEO4J_PASSWORD,
// CHRONICLE_SEARCH_LIMIT, CHRONICLE_CLEAR_DATA.
func FromEnv() *Config {
	baseURL := getenv("OPENAI_BASE_URL", "")
	if baseURL == "" {
		baseURL = getenv("LMSTUDIO_API_HOST", DefaultBaseURL)
	}

	return &Config{
		Model:         getenv("MODEL_CHOICE", DefaultModel),
		BaseURL:       baseURL,
		APIKey:        getenv("OPENAI_API_KEY", DefaultAPIKey),
		Neo4jURI:      getenv("NEO4J_URI", DefaultNeo4jURI),
		Neo4jUser:     getenv("NEO4J_USER", DefaultNeo4jUser),
		Neo4jPassword: getenv("NEO4J_PASSWORD", DefaultNeo4jPassword),
		SearchLimit:   getenvInt("CHRONICLE_SEARCH_LIMIT", DefaultSearchLimit),
		ClearOnStart:  getenvBool("CHRONICLE_CLEAR_DATA", false),
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("model must not be empty")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base URL must not be empty")
	}
	if c.Neo4jURI == "" {
		return fmt.Errorf("neo4j URI must not be empty")
	}
	if c.SearchLimit <= 0 {
		return fmt.Errorf("search limit must be positive, got %d", c.SearchLimit)
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
