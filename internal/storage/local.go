package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	gcs "cloud.google.com/go/storage"
	"github.com/go-gota/gota/dataframe"
	"github.com/xuri/excelize/v2"
	"google.golang.org/api/option"

	apperrors "omnichannel/internal/errors"
	"omnichannel/internal/tables"
)

const gcsScheme = "gs://"

// Local reads and writes table files under a base directory. Names starting
// with gs:// address Cloud Storage objects instead.
type Local struct {
	dir         string
	credentials string
	logger      *slog.Logger

	mu     sync.Mutex
	client *gcs.Client
}

// NewLocal creates a file store rooted at dir. credentials is an optional
// service account file used for gs:// names.
func NewLocal(dir, credentials string, logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{dir: dir, credentials: credentials, logger: logger}
}

// Load reads a .csv, .xlsx or .parquet table
func (l *Local) Load(ctx context.Context, name string) (dataframe.DataFrame, error) {
	if err := requireName(name); err != nil {
		return dataframe.DataFrame{}, err
	}

	var records [][]string
	var err error
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".csv":
		var data []byte
		if data, err = l.read(ctx, name); err == nil {
			records, err = decodeCSV(data)
		}
	case ".xlsx":
		var data []byte
		if data, err = l.read(ctx, name); err == nil {
			records, err = decodeXLSX(data)
		}
	case ".parquet":
		records, err = l.readParquet(ctx, name)
	default:
		return dataframe.DataFrame{}, apperrors.NewConfigError(fmt.Sprintf("unsupported table format %q for %s", ext, name), nil)
	}
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("load %s: %w", name, err)
	}
	if len(records) == 0 {
		return dataframe.DataFrame{}, apperrors.NewParsingError(fmt.Sprintf("table %s has no header row", name), nil)
	}

	l.logger.Info("table loaded", slog.String("table", name), slog.Int("rows", len(records)-1))
	return tables.LoadStrings(records), nil
}

// Save writes df as .csv or .xlsx, creating parent directories
func (l *Local) Save(ctx context.Context, df dataframe.DataFrame, name string, _ Overrides) error {
	if err := requireName(name); err != nil {
		return err
	}
	if df.Err != nil {
		return fmt.Errorf("save %s: %w", name, df.Err)
	}

	var buf bytes.Buffer
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".csv":
		if err := df.WriteCSV(&buf); err != nil {
			return apperrors.NewStorageError(fmt.Sprintf("encode %s", name), err)
		}
	case ".xlsx":
		if err := encodeXLSX(&buf, df.Records()); err != nil {
			return apperrors.NewStorageError(fmt.Sprintf("encode %s", name), err)
		}
	default:
		return apperrors.NewConfigError(fmt.Sprintf("unsupported output format %q for %s", ext, name), nil)
	}

	if err := l.write(ctx, name, buf.Bytes()); err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	l.logger.Info("table saved", slog.String("table", name), slog.Int("rows", df.Nrow()))
	return nil
}

// Close releases the Cloud Storage client if one was opened
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.client == nil {
		return nil
	}
	err := l.client.Close()
	l.client = nil
	return err
}

func (l *Local) path(name string) string {
	if filepath.IsAbs(name) || l.dir == "" {
		return name
	}
	return filepath.Join(l.dir, name)
}

func (l *Local) read(ctx context.Context, name string) ([]byte, error) {
	if strings.HasPrefix(name, gcsScheme) {
		return l.readObject(ctx, name)
	}
	data, err := os.ReadFile(l.path(name))
	if err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("read %s", name), err)
	}
	return data, nil
}

func (l *Local) write(ctx context.Context, name string, data []byte) error {
	if strings.HasPrefix(name, gcsScheme) {
		return l.writeObject(ctx, name, data)
	}
	path := l.path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("create directory for %s", name), err)
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("write %s", name), err)
	}
	return nil
}

// parseObject splits gs://bucket/object
func parseObject(name string) (bucket, object string, err error) {
	rest := strings.TrimPrefix(name, gcsScheme)
	bucket, object, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", apperrors.NewConfigError(fmt.Sprintf("invalid object name %q, want gs://bucket/object", name), nil)
	}
	return bucket, object, nil
}

func (l *Local) gcsClient(ctx context.Context) (*gcs.Client, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.client != nil {
		return l.client, nil
	}

	var opts []option.ClientOption
	if l.credentials != "" {
		opts = append(opts, option.WithCredentialsFile(l.credentials))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, apperrors.NewStorageError("create cloud storage client", err)
	}
	l.client = client
	return client, nil
}

func (l *Local) readObject(ctx context.Context, name string) ([]byte, error) {
	bucket, object, err := parseObject(name)
	if err != nil {
		return nil, err
	}
	client, err := l.gcsClient(ctx)
	if err != nil {
		return nil, err
	}

	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("open %s", name), err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("read %s", name), err)
	}
	return data, nil
}

func (l *Local) writeObject(ctx context.Context, name string, data []byte) error {
	bucket, object, err := parseObject(name)
	if err != nil {
		return err
	}
	client, err := l.gcsClient(ctx)
	if err != nil {
		return err
	}

	w := client.Bucket(bucket).Object(object).NewWriter(ctx)
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return apperrors.NewStorageError(fmt.Sprintf("upload %s", name), err)
	}
	if err := w.Close(); err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("finalize %s", name), err)
	}
	return nil
}

func decodeCSV(data []byte) ([][]string, error) {
	df := dataframe.ReadCSV(bytes.NewReader(data),
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
	)
	if df.Err != nil {
		return nil, apperrors.NewParsingError("decode csv", df.Err)
	}
	return df.Records(), nil
}

// decodeXLSX reads the first sheet; short rows are padded to the header width
func decodeXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.NewParsingError("open workbook", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperrors.NewParsingError("workbook has no sheets", nil)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, apperrors.NewParsingError(fmt.Sprintf("read sheet %s", sheets[0]), err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	width := len(rows[0])
	records := make([][]string, 0, len(rows))
	for _, row := range rows {
		if len(row) > width {
			row = row[:width]
		}
		padded := make([]string, width)
		copy(padded, row)
		records = append(records, padded)
	}
	return records, nil
}

func encodeXLSX(w io.Writer, records [][]string) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, record := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		row := make([]interface{}, len(record))
		for j, v := range record {
			row[j] = v
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	_, err := f.WriteTo(w)
	return err
}
