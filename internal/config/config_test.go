package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omnichannel/pkg/contracts/domain"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 50.0, cfg.Pipeline.TreatDistanceKm)
	assert.Equal(t, []string{"DE"}, cfg.Pipeline.Countries)
	assert.Equal(t, time.Date(2013, time.April, 1, 0, 0, 0, 0, time.UTC), cfg.Pipeline.EarlyStoreDate())
	assert.Equal(t, []string{"Schaffhausen", "Basel", "Zurich"}, cfg.Pipeline.ExcludedStores)
	assert.Equal(t, 12, cfg.Pipeline.QuartersBefore)
	assert.Equal(t, 12, cfg.Pipeline.QuartersAfter)
	assert.Equal(t, 1, cfg.Pipeline.Neighbours)
	assert.Equal(t, domain.Quarter{Year: 2013, Q: 2}, cfg.Pipeline.Baseline())
	assert.Equal(t, "local", cfg.Storage.Source)
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		yaml        string
		wantErr     bool
		validateCfg func(*testing.T, *Config)
	}{
		{
			name: "defaults with no file and no env",
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "info", cfg.Logging.Level)
				assert.Equal(t, 50.0, cfg.Pipeline.TreatDistanceKm)
			},
		},
		{
			name: "file overrides defaults",
			yaml: "pipeline:\n  area: Leipzig\n  treat_distance_km: 30\n  neighbours: 3\n",
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "Leipzig", cfg.Pipeline.Area)
				assert.Equal(t, 30.0, cfg.Pipeline.TreatDistanceKm)
				assert.Equal(t, 3, cfg.Pipeline.Neighbours)
				assert.Equal(t, 12, cfg.Pipeline.QuartersAfter)
			},
		},
		{
			name: "env overrides file",
			yaml: "pipeline:\n  area: Leipzig\n",
			env: map[string]string{
				"OMNI_PIPELINE_AREA":      "Hamburg",
				"OMNI_PIPELINE_COUNTRIES": "DE,AT",
				"OMNI_LOGGING_LEVEL":      "debug",
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "Hamburg", cfg.Pipeline.Area)
				assert.Equal(t, []string{"DE", "AT"}, cfg.Pipeline.Countries)
				assert.Equal(t, "debug", cfg.Logging.Level)
			},
		},
		{
			name:    "unsupported country rejected",
			env:     map[string]string{"OMNI_PIPELINE_COUNTRIES": "FR"},
			wantErr: true,
		},
		{
			name:    "bad baseline quarter rejected",
			env:     map[string]string{"OMNI_PIPELINE_BASELINE_QUARTER": "2013-04"},
			wantErr: true,
		},
		{
			name:    "unknown storage source rejected",
			env:     map[string]string{"OMNI_STORAGE_SOURCE": "s3"},
			wantErr: true,
		},
		{
			name:    "bigquery without dataset rejected",
			env:     map[string]string{"OMNI_STORAGE_SOURCE": "bigquery", "OMNI_STORAGE_BIGQUERY_PROJECT": "p"},
			wantErr: true,
		},
		{
			name:    "google provider without key rejected",
			env:     map[string]string{"OMNI_GEOCODING_PROVIDERS": "google"},
			wantErr: true,
		},
		{
			name:    "malformed early store cutoff rejected",
			env:     map[string]string{"OMNI_PIPELINE_EARLY_STORE_CUTOFF": "01/04/2013"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			path := filepath.Join(t.TempDir(), "missing.yaml")
			if tt.yaml != "" {
				require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0644))
			} else {
				path = ""
			}

			cfg, err := Load(path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.validateCfg(t, cfg)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestRequireArea(t *testing.T) {
	cfg := Default()
	_, err := cfg.RequireArea()
	assert.Error(t, err)

	cfg.Pipeline.Area = " Leipzig "
	area, err := cfg.RequireArea()
	require.NoError(t, err)
	assert.Equal(t, "Leipzig", area)
}
