// Package config loads gtm-factory configuration from YAML or TOML files.
//
// Environment variables in the form ${VAR_NAME} are expanded before parsing,
// so secrets such as API keys can stay out of the file:
//
//	model:
//	  provider: anthropic
//	  api_key: ${ANTHROPIC_API_KEY}
//
// Durations are written as Go duration strings ("90s", "5m").
package config
