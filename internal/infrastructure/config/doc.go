// Package config handles loading and validating dashsync configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with DASHSYNC_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - The backend bearer token and API token should come from the environment
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Sync.PollInterval)
package config
