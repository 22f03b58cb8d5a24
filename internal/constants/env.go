// Package constants provides centralized definitions of constants used throughout the application
package constants

// Environment variable names
const (
	// EnvWorkerID is the environment variable containing the worker identifier
	// assigned by the mapant.fr administrators
	EnvWorkerID = "MAPANT_API_WORKER_ID"

	// EnvToken is the environment variable containing the secret token paired
	// with the worker identifier
	EnvToken = "MAPANT_API_TOKEN"

	// EnvBaseURL is the environment variable overriding the base URL of the
	// mapant.fr API, mainly for staging and local development
	EnvBaseURL = "MAPANT_API_BASE_URL"
)
