// Package config loads the realtime agent's YAML configuration.
//
// Values of the form ${VAR} are expanded from the environment, and a .env
// file next to the config is loaded first. Variables already set in the
// environment take precedence over the .env file.
package config
