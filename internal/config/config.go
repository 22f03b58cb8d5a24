// Package config loads and validates the worker configuration from the
// environment, optionally seeded by a .env file.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/NicoRio42/mapant-fr-worker/internal/constants"
)

// DefaultBaseURL is the production mapant.fr API.
const DefaultBaseURL = "https://mapant.fr"

// Config carries the identity and target of a worker process.
type Config struct {
	// WorkerID identifies this worker against the API.
	WorkerID string
	// Token is the secret paired with WorkerID.
	Token string
	// BaseURL is the root of the mapant.fr API, without a trailing slash.
	BaseURL string
}

// Load reads the worker configuration from the environment. A .env file in
// the working directory is honored when present but never overrides
// variables that are already set.
func Load() (Config, error) {
	// A missing .env file is fine, deployments may rely on plain env vars.
	_ = godotenv.Load()

	cfg := Config{
		WorkerID: os.Getenv(constants.EnvWorkerID),
		Token:    os.Getenv(constants.EnvToken),
		BaseURL:  GetEnv(constants.EnvBaseURL, DefaultBaseURL),
	}

	if cfg.WorkerID == "" {
		return Config{}, fmt.Errorf("%s environment variable is not set", constants.EnvWorkerID)
	}
	if cfg.Token == "" {
		return Config{}, fmt.Errorf("%s environment variable is not set", constants.EnvToken)
	}

	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	return cfg, nil
}

// Authorization returns the value of the Authorization header expected by
// the mapant.fr API: "Bearer {worker_id}.{token}".
func (c Config) Authorization() string {
	return fmt.Sprintf("Bearer %s.%s", c.WorkerID, c.Token)
}

// GetEnv retrieves the value of an environment variable with a fallback
// value. A variable that is set but empty falls back too.
func GetEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
