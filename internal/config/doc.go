// Package config loads the datastore configuration from an optional YAML
// file and DATASTORE_* environment variables. Environment values win.
package config
