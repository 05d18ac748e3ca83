// Package config provides centralized configuration management for the
// omnichannel pipeline. It handles loading configuration from multiple sources,
// validation, and the working directory layout of a run.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Environment variables (highest priority)
//	2. YAML configuration file
//	3. Default values (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern OMNI_<SECTION>_<KEY>:
//
//	OMNI_PIPELINE_AREA=Leipzig
//	OMNI_PIPELINE_TREAT_DISTANCE_KM=50
//	OMNI_STORAGE_SOURCE=bigquery
//	OMNI_GEOCODING_PROVIDERS=google,geonames
//	OMNI_LOGGING_LEVEL=debug
//
// # Storage Source
//
// The storage source is always explicit. "local" reads and writes files under
// storage.local_dir; "bigquery" reads and writes tables in
// storage.bigquery.project / storage.bigquery.dataset. Nothing in the pipeline
// inspects the environment on its own.
//
// # Usage
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    return err
//	}
//	paths, err := config.GetPaths(cfg.Paths, "")
//
// # Testing
//
// Use config.Default() for a configuration that needs no environment
// variables or external resources.
package config
