// Package config loads the configuration of the Mirror Control Container.
//
// Load layers, lowest precedence first:
//  1. baseline defaults (LoadBaseline, Defaults)
//  2. a .env file in the working directory, if present
//  3. a YAML file named by MCC_CONFIG, or mcc.yaml if it exists
//  4. MCC_* environment variables
//
// The result is validated before it is returned.
package config
