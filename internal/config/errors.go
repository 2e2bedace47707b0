package config

import "errors"

var (
	// ErrInvalidConfig wraps every Validate failure.
	ErrInvalidConfig = errors.New("periodrank: invalid config")
	// ErrUnknownDriver is joined with ErrInvalidConfig when store_driver names no backend.
	ErrUnknownDriver = errors.New("periodrank: unknown store driver")
	// ErrLoadConfig wraps failures reading the .env, YAML or environment layers.
	ErrLoadConfig = errors.New("periodrank: load config failed")
)
