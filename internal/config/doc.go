// Package config loads the avauthz service configuration from YAML.
//
// Values may reference environment variables as ${VAR} or ${VAR:-default};
// "$$" escapes a literal dollar sign. Sections that are left out keep the
// defaults from DefaultConfig. A Watcher reloads the file on change and
// hands the new configuration to a callback, which the service uses to swap
// the policy engine configuration at runtime.
package config
