// Package config loads and validates chat-bridge configuration from YAML,
// expanding ${VAR} environment references and parsing duration strings.
package config
