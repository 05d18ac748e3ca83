package storage

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/file"

	apperrors "omnichannel/internal/errors"
)

const parquetBatch = 8192

// batchReader is the ReadBatch method shared by the typed column chunk readers
type batchReader[T any] func(batchSize int64, values []T, defLvls, repLvls []int16) (int64, int, error)

func (l *Local) readParquet(ctx context.Context, name string) ([][]string, error) {
	var pf *file.Reader
	var err error
	if strings.HasPrefix(name, gcsScheme) {
		data, readErr := l.readObject(ctx, name)
		if readErr != nil {
			return nil, readErr
		}
		pf, err = file.NewParquetReader(bytes.NewReader(data))
	} else {
		pf, err = file.OpenParquetFile(l.path(name), false)
	}
	if err != nil {
		return nil, apperrors.NewParsingError("open parquet file", err)
	}
	defer pf.Close()

	return parquetRecords(pf)
}

// parquetRecords renders a flat parquet file as text records with a header row
func parquetRecords(pf *file.Reader) ([][]string, error) {
	schema := pf.MetaData().Schema
	header := make([]string, schema.NumColumns())
	for i := range header {
		col := schema.Column(i)
		if col.MaxRepetitionLevel() > 0 {
			return nil, apperrors.NewParsingError(fmt.Sprintf("column %s is repeated", col.Name()), nil)
		}
		header[i] = col.Name()
	}

	records := [][]string{header}
	for g := 0; g < pf.NumRowGroups(); g++ {
		rg := pf.RowGroup(g)
		rows := int(rg.NumRows())
		columns := make([][]string, len(header))
		for i := range header {
			values, err := readParquetColumn(rg, i, rows, schema.Column(i).MaxDefinitionLevel())
			if err != nil {
				return nil, apperrors.NewParsingError(fmt.Sprintf("row group %d column %s", g, header[i]), err)
			}
			columns[i] = values
		}
		for r := 0; r < rows; r++ {
			record := make([]string, len(header))
			for i := range header {
				if r < len(columns[i]) {
					record[i] = columns[i][r]
				}
			}
			records = append(records, record)
		}
	}
	return records, nil
}

func readParquetColumn(rg *file.RowGroupReader, idx, rows int, maxDef int16) ([]string, error) {
	col, err := rg.Column(idx)
	if err != nil {
		return nil, err
	}

	switch reader := col.(type) {
	case *file.ByteArrayColumnChunkReader:
		return drain[parquet.ByteArray](reader.ReadBatch, rows, maxDef, func(v parquet.ByteArray) string {
			return string(v)
		})
	case *file.Float64ColumnChunkReader:
		return drain[float64](reader.ReadBatch, rows, maxDef, func(v float64) string {
			return strconv.FormatFloat(v, 'g', -1, 64)
		})
	case *file.Float32ColumnChunkReader:
		return drain[float32](reader.ReadBatch, rows, maxDef, func(v float32) string {
			return strconv.FormatFloat(float64(v), 'g', -1, 32)
		})
	case *file.Int64ColumnChunkReader:
		return drain[int64](reader.ReadBatch, rows, maxDef, func(v int64) string {
			return strconv.FormatInt(v, 10)
		})
	case *file.Int32ColumnChunkReader:
		return drain[int32](reader.ReadBatch, rows, maxDef, func(v int32) string {
			return strconv.FormatInt(int64(v), 10)
		})
	case *file.BooleanColumnChunkReader:
		return drain[bool](reader.ReadBatch, rows, maxDef, strconv.FormatBool)
	default:
		return nil, fmt.Errorf("unsupported physical type %s", col.Type())
	}
}

// drain reads a column to the end. Values come back packed, so null slots
// are located through the definition levels.
func drain[T any](read batchReader[T], rows int, maxDef int16, format func(T) string) ([]string, error) {
	out := make([]string, 0, rows)
	values := make([]T, parquetBatch)
	defLvls := make([]int16, parquetBatch)

	for len(out) < rows {
		total, _, err := read(parquetBatch, values, defLvls, nil)
		if err != nil {
			return nil, err
		}
		if total == 0 {
			break
		}
		next := 0
		for i := 0; i < int(total); i++ {
			if maxDef > 0 && defLvls[i] < maxDef {
				out = append(out, "")
				continue
			}
			out = append(out, format(values[next]))
			next++
		}
	}
	return out, nil
}
