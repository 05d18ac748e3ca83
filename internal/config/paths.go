package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Paths contains the resolved working directories of a pipeline run.
// Relative entries in PathsConfig are resolved against baseDir.
type Paths struct {
	BaseDir      string
	DataDir      string
	RawDir       string
	InterimDir   string
	ProcessedDir string
	CacheDir     string
	LogsDir      string
}

// GetPaths resolves the configured directories.
// An empty baseDir means the current working directory.
func GetPaths(cfg PathsConfig, baseDir string) (*Paths, error) {
	if baseDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		baseDir = wd
	}

	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory %s: %w", baseDir, err)
	}

	dataDir := resolve(abs, cfg.DataDir)

	return &Paths{
		BaseDir:      abs,
		DataDir:      dataDir,
		RawDir:       filepath.Join(dataDir, "raw"),
		InterimDir:   filepath.Join(dataDir, "interim"),
		ProcessedDir: filepath.Join(dataDir, "processed"),
		CacheDir:     filepath.Join(dataDir, "cache"),
		LogsDir:      resolve(abs, cfg.LogsDir),
	}, nil
}

func resolve(base, p string) string {
	if p == "" {
		return base
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// EnsureDirectories creates all required directories if they don't exist
func (p *Paths) EnsureDirectories() error {
	directories := []string{
		p.DataDir,
		p.RawDir,
		p.InterimDir,
		p.ProcessedDir,
		p.CacheDir,
		p.LogsDir,
	}

	for _, dir := range directories {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// Resolve returns a path relative to the base directory
func (p *Paths) Resolve(subpath string) string {
	return resolve(p.BaseDir, subpath)
}

// FileExists reports whether path exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// LogPathResolution logs the resolved directories
func (p *Paths) LogPathResolution(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("Path resolution summary",
		slog.Group("directories",
			slog.String("base", p.BaseDir),
			slog.String("data", p.DataDir),
			slog.String("raw", p.RawDir),
			slog.String("interim", p.InterimDir),
			slog.String("processed", p.ProcessedDir),
			slog.String("cache", p.CacheDir),
			slog.String("logs", p.LogsDir),
		))
}
