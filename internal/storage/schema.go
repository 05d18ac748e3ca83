package storage

import (
	"fmt"
	"sort"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	apperrors "omnichannel/internal/errors"
)

// Overrides maps column names to the warehouse type they must be stored as
type Overrides map[string]bigquery.FieldType

// GenerateSchema derives a nullable BigQuery schema from the frame's column
// types. Columns named in overrides take the overriding type.
func GenerateSchema(df dataframe.DataFrame, overrides Overrides) (bigquery.Schema, error) {
	names := df.Names()
	types := df.Types()

	known := make(map[string]bool, len(names))
	schema := make(bigquery.Schema, 0, len(names))
	for i, name := range names {
		known[name] = true
		ft := fieldType(types[i])
		if o, ok := overrides[name]; ok {
			ft = o
		}
		schema = append(schema, &bigquery.FieldSchema{Name: name, Type: ft})
	}

	var unknown []string
	for name := range overrides {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, apperrors.NewConfigError(fmt.Sprintf("schema overrides name unknown columns %s", strings.Join(unknown, ", ")), nil)
	}
	return schema, nil
}

func fieldType(t series.Type) bigquery.FieldType {
	switch t {
	case series.Float:
		return bigquery.FloatFieldType
	case series.Int:
		return bigquery.IntegerFieldType
	case series.Bool:
		return bigquery.BooleanFieldType
	default:
		return bigquery.StringFieldType
	}
}

// ParseOverrides converts configured type names such as "float" or
// "INTEGER" into overrides
func ParseOverrides(m map[string]string) (Overrides, error) {
	if len(m) == 0 {
		return nil, nil
	}
	out := make(Overrides, len(m))
	for col, name := range m {
		ft := bigquery.FieldType(strings.ToUpper(strings.TrimSpace(name)))
		switch ft {
		case bigquery.StringFieldType, bigquery.FloatFieldType, bigquery.IntegerFieldType,
			bigquery.BooleanFieldType, bigquery.DateFieldType, bigquery.TimestampFieldType,
			bigquery.NumericFieldType:
			out[col] = ft
		default:
			return nil, apperrors.NewConfigError(fmt.Sprintf("schema override for %s has unknown type %q", col, name), nil)
		}
	}
	return out, nil
}

// For keeps the overrides that name columns of df
func (o Overrides) For(df dataframe.DataFrame) Overrides {
	if len(o) == 0 {
		return nil
	}
	out := make(Overrides)
	for _, name := range df.Names() {
		if ft, ok := o[name]; ok {
			out[name] = ft
		}
	}
	return out
}
