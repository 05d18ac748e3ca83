package storage

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"omnichannel/internal/config"
	apperrors "omnichannel/internal/errors"
	"omnichannel/internal/tables"
)

// BigQuery stores tables in one dataset
type BigQuery struct {
	client  *bigquery.Client
	dataset string
	logger  *slog.Logger
}

// NewBigQuery connects to the dataset named in cfg
func NewBigQuery(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (*BigQuery, error) {
	if cfg.BigQuery.Project == "" || cfg.BigQuery.Dataset == "" {
		return nil, apperrors.NewConfigError("bigquery storage needs a project and a dataset", nil)
	}
	if logger == nil {
		logger = slog.Default()
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := bigquery.NewClient(ctx, cfg.BigQuery.Project, opts...)
	if err != nil {
		return nil, apperrors.NewStorageError("create bigquery client", err)
	}
	if cfg.BigQuery.Location != "" {
		client.Location = cfg.BigQuery.Location
	}

	return &BigQuery{client: client, dataset: cfg.BigQuery.Dataset, logger: logger}, nil
}

// Load reads every row of the table. A missing table is a configuration error.
func (b *BigQuery) Load(ctx context.Context, name string) (dataframe.DataFrame, error) {
	if err := requireName(name); err != nil {
		return dataframe.DataFrame{}, err
	}
	table := b.client.Dataset(b.dataset).Table(name)

	md, err := table.Metadata(ctx)
	if err != nil {
		if isNotFound(err) {
			return dataframe.DataFrame{}, apperrors.NewConfigError(fmt.Sprintf("table %s.%s does not exist", b.dataset, name), err)
		}
		return dataframe.DataFrame{}, apperrors.NewStorageError(fmt.Sprintf("describe %s", name), err)
	}

	header := make([]string, len(md.Schema))
	for i, f := range md.Schema {
		header[i] = f.Name
	}
	records := [][]string{header}

	it := table.Read(ctx)
	for {
		var row []bigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return dataframe.DataFrame{}, apperrors.NewStorageError(fmt.Sprintf("read %s", name), err)
		}
		record := make([]string, len(header))
		for i := range record {
			if i < len(row) {
				record[i] = formatValue(row[i])
			}
		}
		records = append(records, record)
	}

	b.logger.Info("table loaded",
		slog.String("dataset", b.dataset),
		slog.String("table", name),
		slog.Int("rows", len(records)-1))
	return tables.LoadStrings(records), nil
}

// Save replaces the table's contents. An existing table keeps its schema;
// otherwise one is generated from the frame.
func (b *BigQuery) Save(ctx context.Context, df dataframe.DataFrame, name string, overrides Overrides) error {
	if err := requireName(name); err != nil {
		return err
	}
	if df.Err != nil {
		return fmt.Errorf("save %s: %w", name, df.Err)
	}
	table := b.client.Dataset(b.dataset).Table(name)

	var schema bigquery.Schema
	md, err := table.Metadata(ctx)
	switch {
	case err == nil:
		schema = md.Schema
	case isNotFound(err):
		if schema, err = GenerateSchema(df, overrides); err != nil {
			return fmt.Errorf("save %s: %w", name, err)
		}
	default:
		return apperrors.NewStorageError(fmt.Sprintf("describe %s", name), err)
	}

	payload, err := loadPayload(df)
	if err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("encode %s", name), err)
	}

	src := bigquery.NewReaderSource(bytes.NewReader(payload))
	src.SourceFormat = bigquery.CSV
	src.SkipLeadingRows = 1
	src.Schema = schema

	loader := table.LoaderFrom(src)
	loader.WriteDisposition = bigquery.WriteTruncate
	loader.CreateDisposition = bigquery.CreateIfNeeded

	job, err := loader.Run(ctx)
	if err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("start load of %s", name), err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("wait for load of %s", name), err)
	}
	if err := status.Err(); err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("load %s", name), err).WithContext("job_id", job.ID())
	}

	b.logger.Info("table saved",
		slog.String("dataset", b.dataset),
		slog.String("table", name),
		slog.Int("rows", df.Nrow()),
		slog.String("job_id", job.ID()))
	return nil
}

// Close releases the client
func (b *BigQuery) Close() error {
	return b.client.Close()
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

// loadPayload renders the frame as CSV with missing numbers left blank, which
// the load job reads as NULL
func loadPayload(df dataframe.DataFrame) ([]byte, error) {
	names := df.Names()
	cols := make([][]string, len(names))
	for i, name := range names {
		s := df.Col(name)
		values := s.Records()
		if s.Type() != series.String {
			for j, v := range values {
				if v == "NaN" {
					values[j] = ""
				}
			}
		}
		cols[i] = values
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(names); err != nil {
		return nil, err
	}
	record := make([]string, len(names))
	for r := 0; r < df.Nrow(); r++ {
		for i := range cols {
			record[i] = cols[i][r]
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func formatValue(v bigquery.Value) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}
