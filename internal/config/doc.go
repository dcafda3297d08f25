// Package config handles configuration loading, parsing, and validation
// from various sources (environment variables, files). It provides type-safe
// access to the settings the tracker service needs while keeping
// configuration details separate from business logic.
package config
