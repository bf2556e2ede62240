// Package config handles loading and validating Tracker Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//   - Watching the file for runtime-mutable tracking toggles
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Tracking.CameraControllerSerial)
//
// Only the camera-controller serial and the two tracking toggles are applied
// live by the watcher. Slot capacities, binding mode and transport settings
// require a restart.
package config
