// Package config handles loading and validating the Vera bridge configuration.
//
// This package manages:
//   - Loading configuration from an optional YAML file
//   - Loading a .env file into the process environment
//   - Overriding with environment variables
//   - Validation of required fields
//
// Security Considerations:
//   - The MQTT password should be set via MQTT_PASSWORD, not the YAML file
//   - The config and .env files should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml", ".env")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Controller.Host)
package config
