// Package config loads the cabletap CLI configuration from YAML.
//
// Values of the form ${VAR} are expanded from the environment before
// parsing, so secrets stay out of config files.
package config
