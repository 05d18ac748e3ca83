package tables

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	apperrors "omnichannel/internal/errors"
)

// LoadStrings builds a frame from records whose first row is the header,
// keeping every column as text
func LoadStrings(records [][]string) dataframe.DataFrame {
	return dataframe.LoadRecords(records,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
}

// reader reads named columns of a frame
type reader struct {
	df    dataframe.DataFrame
	names map[string]bool
	table string
}

func newReader(df dataframe.DataFrame, table string, required ...string) (*reader, error) {
	if df.Err != nil {
		return nil, apperrors.NewParsingError(fmt.Sprintf("read %s frame", table), df.Err)
	}
	r := &reader{df: df, names: make(map[string]bool), table: table}
	for _, n := range df.Names() {
		r.names[n] = true
	}
	var missing []string
	for _, n := range required {
		if !r.names[n] {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return nil, apperrors.NewParsingError(fmt.Sprintf("%s frame is missing columns %s", table, strings.Join(missing, ", ")), nil)
	}
	return r, nil
}

func (r *reader) rows() int { return r.df.Nrow() }

func (r *reader) has(name string) bool { return r.names[name] }

// strings returns the column's records, or empty strings when absent
func (r *reader) strings(name string) []string {
	if !r.has(name) {
		return make([]string, r.rows())
	}
	return r.df.Col(name).Records()
}

// floats parses a column; empty and NA cells are NaN, absent columns all NaN
func (r *reader) floats(name string) ([]float64, error) {
	out := make([]float64, r.rows())
	if !r.has(name) {
		for i := range out {
			out[i] = math.NaN()
		}
		return out, nil
	}
	for i, s := range r.df.Col(name).Records() {
		v, err := parseFloat(s)
		if err != nil {
			return nil, apperrors.NewParsingError(fmt.Sprintf("%s.%s row %d", r.table, name, i), err)
		}
		out[i] = v
	}
	return out, nil
}

// ints parses an integer column; float renderings such as "3.0" are accepted
func (r *reader) ints(name string) ([]int, error) {
	values, err := r.floats(name)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			out[i] = 0
			continue
		}
		if v != math.Trunc(v) {
			return nil, apperrors.NewParsingError(fmt.Sprintf("%s.%s row %d is not an integer: %v", r.table, name, i, v), nil)
		}
		out[i] = int(v)
	}
	return out, nil
}

func parseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "na", "nan", "<nil>", "null", "none":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}
