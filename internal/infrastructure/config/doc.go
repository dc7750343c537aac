// Package config handles loading and validating deckscan configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (DECKSCAN_SECTION_KEY)
//   - Validation of required fields (every problem is reported at once)
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (MQTT password, InfluxDB token, S3 keys) should be
//     set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/deckscan.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Instrument.Name, cfg.Deck.LayoutFile)
package config
