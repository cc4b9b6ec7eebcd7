// Package config loads and validates the service configuration.
package config
