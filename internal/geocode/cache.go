package geocode

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// CacheConfig holds configuration for the lookup cache.
type CacheConfig struct {
	// Path is the directory for the cache files. Ignored when InMemory is true.
	Path string

	// InMemory keeps the cache in RAM only. Useful for testing.
	InMemory bool

	// Logger receives Badger's internal messages. Nil silences them.
	Logger *slog.Logger
}

// Cache memoises geocoding results across runs, keyed by provider and
// postal code. It is safe for concurrent use.
type Cache struct {
	db *badger.DB
}

// cachedResolution is the stored form; JSON cannot encode NaN
type cachedResolution struct {
	Latitude  *float64 `json:"lat,omitempty"`
	Longitude *float64 `json:"lng,omitempty"`
	Address   string   `json:"address"`
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenCache opens the cache database. The caller must Close it.
func OpenCache(cfg CacheConfig) (*Cache, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent cache")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open geocode cache: %w", err)
	}

	return &Cache{db: db}, nil
}

// Get returns a cached resolution
func (c *Cache) Get(key string) (Resolution, bool, error) {
	var stored cachedResolution
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &stored)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Resolution{}, false, nil
	}
	if err != nil {
		return Resolution{}, false, fmt.Errorf("read cache key %s: %w", key, err)
	}

	res := Unresolved(stored.Address)
	if stored.Latitude != nil && stored.Longitude != nil {
		res.Latitude = *stored.Latitude
		res.Longitude = *stored.Longitude
	}
	return res, true, nil
}

// Put stores a resolution
func (c *Cache) Put(key string, res Resolution) error {
	stored := cachedResolution{Address: res.Address}
	if !math.IsNaN(res.Latitude) && !math.IsNaN(res.Longitude) {
		lat, lng := res.Latitude, res.Longitude
		stored.Latitude = &lat
		stored.Longitude = &lng
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode cache value: %w", err)
	}

	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// Close closes the underlying database
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}
