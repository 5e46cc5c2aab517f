// Package config loads relayhub configuration from YAML.
//
// Config files support ${VAR} environment variable expansion. Loading is
// split into Load (raw), LoadWithDefaults, and LoadAndValidate; the process
// entry point uses LoadAndValidate.
package config
