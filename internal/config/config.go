package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"omnichannel/pkg/contracts/domain"
)

// EnvPrefix namespaces all environment variables, e.g. OMNI_PIPELINE_AREA
const EnvPrefix = "OMNI"

// Config represents the complete application configuration
type Config struct {
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
	Pipeline  PipelineConfig  `yaml:"pipeline" envconfig:"PIPELINE"`
	Geocoding GeocodingConfig `yaml:"geocoding" envconfig:"GEOCODING"`
	Storage   StorageConfig   `yaml:"storage" envconfig:"STORAGE"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn warning error"`
	Format   string `yaml:"format" envconfig:"FORMAT" validate:"eq=json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	DataDir string `yaml:"data_dir" envconfig:"DATA_DIR" validate:"required"`
	LogsDir string `yaml:"logs_dir" envconfig:"LOGS_DIR" validate:"required"`
}

// PipelineConfig holds the policy parameters of every stage
type PipelineConfig struct {
	TreatDistanceKm  float64  `yaml:"treat_distance_km" envconfig:"TREAT_DISTANCE_KM" validate:"gt=0"`
	Countries        []string `yaml:"countries" envconfig:"COUNTRIES" validate:"min=1,dive,oneof=DE AT CH"`
	EarlyStoreCutoff string   `yaml:"early_store_cutoff" envconfig:"EARLY_STORE_CUTOFF" validate:"required,datetime=2006-01-02"`
	IgnoredStores    []string `yaml:"ignored_stores" envconfig:"IGNORED_STORES"`
	ExcludedStores   []string `yaml:"excluded_stores" envconfig:"EXCLUDED_STORES"`

	Area           string   `yaml:"area" envconfig:"AREA"`
	CohortAreas    []string `yaml:"cohort_areas" envconfig:"COHORT_AREAS"`
	AnchorArea     string   `yaml:"anchor_area" envconfig:"ANCHOR_AREA"`
	QuartersBefore int      `yaml:"quarters_before" envconfig:"QUARTERS_BEFORE" validate:"min=0"`
	QuartersAfter  int      `yaml:"quarters_after" envconfig:"QUARTERS_AFTER" validate:"min=0"`
	Neighbours     int      `yaml:"neighbours" envconfig:"NEIGHBOURS" validate:"min=1"`

	BaselineQuarter string `yaml:"baseline_quarter" envconfig:"BASELINE_QUARTER" validate:"required"`
	DropMissingGeo  bool   `yaml:"drop_missing_geo" envconfig:"DROP_MISSING_GEO"`

	ScaleMethod    string   `yaml:"scale_method" envconfig:"SCALE_METHOD" validate:"omitempty,oneof=minmax meannormal standard"`
	ScaleColumns   []string `yaml:"scale_columns" envconfig:"SCALE_COLUMNS"`
	Winsorize      bool     `yaml:"winsorize" envconfig:"WINSORIZE"`
	WinsorLower    float64  `yaml:"winsor_lower" envconfig:"WINSOR_LOWER" validate:"gte=0,lt=0.5"`
	WinsorUpper    float64  `yaml:"winsor_upper" envconfig:"WINSOR_UPPER" validate:"gte=0,lt=0.5"`
	ExtraSCMFields []string `yaml:"extra_scm_fields" envconfig:"EXTRA_SCM_FIELDS"`
}

// EarlyStoreDate returns the parsed early-store cutoff
func (p PipelineConfig) EarlyStoreDate() time.Time {
	t, err := time.Parse("2006-01-02", p.EarlyStoreCutoff)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Baseline returns the parsed baseline quarter
func (p PipelineConfig) Baseline() domain.Quarter {
	q, err := domain.ParseQuarter(p.BaselineQuarter)
	if err != nil {
		return domain.Quarter{}
	}
	return q
}

// GeocodingConfig configures the geocoding provider chain
type GeocodingConfig struct {
	// Providers lists the sources in priority order: google, geonames, centroids
	Providers     []string      `yaml:"providers" envconfig:"PROVIDERS" validate:"dive,oneof=google geonames centroids"`
	GoogleAPIKey  string        `yaml:"google_api_key" envconfig:"GOOGLE_API_KEY"`
	GeoNamesFile  string        `yaml:"geonames_file" envconfig:"GEONAMES_FILE"`
	CentroidFile  string        `yaml:"centroid_file" envconfig:"CENTROID_FILE"`
	RatePerSecond float64       `yaml:"rate_per_second" envconfig:"RATE_PER_SECOND" validate:"gt=0"`
	Burst         int           `yaml:"burst" envconfig:"BURST" validate:"min=1"`
	Workers       int           `yaml:"workers" envconfig:"WORKERS" validate:"min=1,max=64"`
	Timeout       time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	CacheDir      string        `yaml:"cache_dir" envconfig:"CACHE_DIR"`
	CacheInMemory bool          `yaml:"cache_in_memory" envconfig:"CACHE_IN_MEMORY"`
}

// StorageConfig selects where tables are loaded from and saved to
type StorageConfig struct {
	Source          string         `yaml:"source" envconfig:"SOURCE" validate:"oneof=local bigquery"`
	LocalDir        string         `yaml:"local_dir" envconfig:"LOCAL_DIR"`
	CredentialsFile string         `yaml:"credentials_file" envconfig:"CREDENTIALS_FILE"`
	BigQuery        BigQueryConfig `yaml:"bigquery" envconfig:"BIGQUERY"`
	Tables          TablesConfig   `yaml:"tables" envconfig:"TABLES"`

	// SchemaOverrides pins warehouse column types, e.g. treatment_store_distance: FLOAT
	SchemaOverrides map[string]string `yaml:"schema_overrides" envconfig:"SCHEMA_OVERRIDES"`
}

// BigQueryConfig identifies the warehouse dataset
type BigQueryConfig struct {
	Project  string `yaml:"project" envconfig:"PROJECT"`
	Dataset  string `yaml:"dataset" envconfig:"DATASET"`
	Location string `yaml:"location" envconfig:"LOCATION"`
}

// TablesConfig names the inputs and outputs of the pipeline.
// Local names are file names (csv, xlsx, parquet or gs:// objects);
// BigQuery names are table ids inside the dataset.
type TablesConfig struct {
	Orders     string `yaml:"orders" envconfig:"ORDERS" validate:"required"`
	Stores     string `yaml:"stores" envconfig:"STORES" validate:"required"`
	Covariates string `yaml:"covariates" envconfig:"COVARIATES"`
	Cleaned    string `yaml:"cleaned" envconfig:"CLEANED"`
	Geo        string `yaml:"geo" envconfig:"GEO"`
	Annotated  string `yaml:"annotated" envconfig:"ANNOTATED"`
	Panel      string `yaml:"panel" envconfig:"PANEL"`
	Matched    string `yaml:"matched" envconfig:"MATCHED"`
	Matches    string `yaml:"matches" envconfig:"MATCHES"`
	DiD        string `yaml:"did" envconfig:"DID"`
	Cohort     string `yaml:"cohort" envconfig:"COHORT"`
	SCM        string `yaml:"scm" envconfig:"SCM"`
	AltControl string `yaml:"alt_control" envconfig:"ALT_CONTROL"`
}

// TelemetryConfig configures tracing, metrics and the status server
type TelemetryConfig struct {
	ServiceName    string  `yaml:"service_name" envconfig:"SERVICE_NAME"`
	Environment    string  `yaml:"environment" envconfig:"ENVIRONMENT"`
	TraceExporter  string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" validate:"oneof=stdout none"`
	MetricExporter string  `yaml:"metric_exporter" envconfig:"METRIC_EXPORTER" validate:"oneof=prometheus none"`
	SampleRatio    float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO" validate:"gte=0,lte=1"`
	PushgatewayURL string  `yaml:"pushgateway_url" envconfig:"PUSHGATEWAY_URL" validate:"omitempty,url"`
	StatusAddr     string  `yaml:"status_addr" envconfig:"STATUS_ADDR"`
}

// Load loads configuration from defaults, an optional YAML file and
// environment variables, in increasing order of precedence.
// An empty path searches the usual locations.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = getConfigFilePath()
	}
	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays the YAML file onto cfg
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

var validate = validator.New()

// Validate checks struct constraints and cross-field rules
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	if _, err := domain.ParseQuarter(c.Pipeline.BaselineQuarter); err != nil {
		return fmt.Errorf("pipeline.baseline_quarter: %w", err)
	}

	if c.Pipeline.Winsorize && c.Pipeline.ScaleMethod == "" {
		return fmt.Errorf("pipeline.winsorize requires pipeline.scale_method")
	}

	for _, p := range c.Geocoding.Providers {
		switch p {
		case "google":
			if c.Geocoding.GoogleAPIKey == "" {
				return fmt.Errorf("geocoding provider google requires geocoding.google_api_key")
			}
		case "geonames":
			if c.Geocoding.GeoNamesFile == "" {
				return fmt.Errorf("geocoding provider geonames requires geocoding.geonames_file")
			}
		case "centroids":
			if c.Geocoding.CentroidFile == "" {
				return fmt.Errorf("geocoding provider centroids requires geocoding.centroid_file")
			}
		}
	}

	if c.Storage.Source == "bigquery" {
		if c.Storage.BigQuery.Project == "" || c.Storage.BigQuery.Dataset == "" {
			return fmt.Errorf("storage source bigquery requires storage.bigquery.project and storage.bigquery.dataset")
		}
	}

	if c.Logging.Output != "console" && c.Logging.FilePath == "" {
		return fmt.Errorf("logging.file_path is required for output %q", c.Logging.Output)
	}

	return nil
}

// RequireArea returns the configured analysis area or a descriptive error
func (c *Config) RequireArea() (string, error) {
	area := strings.TrimSpace(c.Pipeline.Area)
	if area == "" {
		return "", fmt.Errorf("pipeline.area is not set")
	}
	return area, nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	locations := []string{
		"omnichannel.yaml",
		"configs/omnichannel.yaml",
		"../configs/omnichannel.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return "" // No config file found, use env vars only
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/omnichannel.log",
		},
		Paths: PathsConfig{
			DataDir: "data",
			LogsDir: "logs",
		},
		Pipeline: PipelineConfig{
			TreatDistanceKm:  50,
			Countries:        []string{domain.CountryGermany},
			EarlyStoreCutoff: "2013-04-01",
			ExcludedStores:   []string{"Schaffhausen", "Basel", "Zurich"},
			QuartersBefore:   12,
			QuartersAfter:    12,
			Neighbours:       1,
			BaselineQuarter:  "2013Q2",
			DropMissingGeo:   true,
			WinsorLower:      0.05,
			WinsorUpper:      0.05,
		},
		Geocoding: GeocodingConfig{
			RatePerSecond: 10,
			Burst:         5,
			Workers:       8,
			Timeout:       10 * time.Second,
			CacheDir:      "data/cache/geocode",
		},
		Storage: StorageConfig{
			Source:   "local",
			LocalDir: "data",
			Tables: TablesConfig{
				Orders:     "raw/orders.csv",
				Stores:     "raw/stores.csv",
				Covariates: "raw/socio_economic.csv",
				Cleaned:    "interim/orders_clean.csv",
				Geo:        "interim/geo.csv",
				Annotated:  "interim/orders_annotated.csv",
				Panel:      "processed/panel.csv",
				Matched:    "processed/panel_matched.csv",
				Matches:    "processed/matches.csv",
				DiD:        "processed/did_regression.csv",
				Cohort:     "processed/did_cohort.csv",
				SCM:        "processed/scm_panel.csv",
				AltControl: "processed/alternative_control.csv",
			},
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "omnichannel",
			Environment:    "development",
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			SampleRatio:    1.0,
		},
	}
}
