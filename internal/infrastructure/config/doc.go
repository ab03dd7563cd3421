// Package config handles loading and validating Perimeter Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with PERIMETER_* environment variables
//   - Validation of required fields (all failures reported together)
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (broker passwords, tokens, the JWT secret) should be
//     set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Site.Name)
package config
