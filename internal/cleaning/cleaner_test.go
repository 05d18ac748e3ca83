package cleaning

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omnichannel/internal/infrastructure"
	"omnichannel/pkg/contracts/domain"
)

func validRaw() domain.RawOrder {
	return domain.RawOrder{
		OrderNumber:      "1001",
		ItemLineNumber:   "1",
		CancellationFlag: "false",
		ReturnQuantity:   "",
		WebshopCountry:   "DE",
		OrderDate:        "2013-05-14",
		ShippingPostCode: " 04109 ",
		NetOrderValue:    "49.6",
		QuantitySold:     "1",
	}
}

func TestCleanOne(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*domain.RawOrder)
		wantReason DropReason
		check      func(*testing.T, domain.Order)
	}{
		{
			name: "valid line is normalized",
			check: func(t *testing.T, o domain.Order) {
				assert.Equal(t, int64(1001), o.OrderNumber)
				assert.Equal(t, "04109", o.PostCode)
				assert.Equal(t, 50.0, o.NetOrderValue)
				assert.Equal(t, 0, o.ReturnQuantity)
				assert.Equal(t, "2013Q2", o.YearQuarter.String())
				assert.Equal(t, "2013-05", o.YearMonth.String())
			},
		},
		{
			name:       "cancelled line dropped",
			mutate:     func(r *domain.RawOrder) { r.CancellationFlag = "True" },
			wantReason: DropCancelled,
		},
		{
			name:       "missing cancellation flag dropped",
			mutate:     func(r *domain.RawOrder) { r.CancellationFlag = "" },
			wantReason: DropCancelled,
		},
		{
			name:       "NaN cancellation flag dropped",
			mutate:     func(r *domain.RawOrder) { r.CancellationFlag = "NaN" },
			wantReason: DropCancelled,
		},
		{
			name:   "numeric false flag kept",
			mutate: func(r *domain.RawOrder) { r.CancellationFlag = "0" },
			check: func(t *testing.T, o domain.Order) {
				assert.Equal(t, int64(1001), o.OrderNumber)
			},
		},
		{
			name:   "FH maps to DE",
			mutate: func(r *domain.RawOrder) { r.WebshopCountry = "FH" },
			check: func(t *testing.T, o domain.Order) {
				assert.Equal(t, "DE", o.Country)
			},
		},
		{
			name:       "UNKNOWN country dropped",
			mutate:     func(r *domain.RawOrder) { r.WebshopCountry = "UNKNOWN" },
			wantReason: DropUnknownCountry,
		},
		{
			name:       "other country dropped",
			mutate:     func(r *domain.RawOrder) { r.WebshopCountry = "FR" },
			wantReason: DropUnsupportedCountry,
		},
		{
			name:       "non numeric order number dropped",
			mutate:     func(r *domain.RawOrder) { r.OrderNumber = "A-17" },
			wantReason: DropInvalidNumber,
		},
		{
			name:   "integral float order number accepted",
			mutate: func(r *domain.RawOrder) { r.OrderNumber = "1001.0" },
			check: func(t *testing.T, o domain.Order) {
				assert.Equal(t, int64(1001), o.OrderNumber)
			},
		},
		{
			name:       "non numeric value dropped",
			mutate:     func(r *domain.RawOrder) { r.NetOrderValue = "n/a" },
			wantReason: DropInvalidNumber,
		},
		{
			name:       "DE four character postal code rejected",
			mutate:     func(r *domain.RawOrder) { r.ShippingPostCode = "1234" },
			wantReason: DropInvalidPostCode,
		},
		{
			name:   "DE five character postal code accepted",
			mutate: func(r *domain.RawOrder) { r.ShippingPostCode = "12345" },
			check: func(t *testing.T, o domain.Order) {
				assert.Equal(t, "12345", o.PostCode)
			},
		},
		{
			name: "AT postal code with leading zero rejected",
			mutate: func(r *domain.RawOrder) {
				r.WebshopCountry = "AT"
				r.ShippingPostCode = "0123"
			},
			wantReason: DropInvalidPostCode,
		},
		{
			name: "CH four character postal code accepted",
			mutate: func(r *domain.RawOrder) {
				r.WebshopCountry = "CH"
				r.ShippingPostCode = "8001"
			},
			check: func(t *testing.T, o domain.Order) {
				assert.Equal(t, "CH", o.Country)
			},
		},
		{
			name:       "empty postal code dropped",
			mutate:     func(r *domain.RawOrder) { r.ShippingPostCode = "   " },
			wantReason: DropInvalidPostCode,
		},
		{
			name:       "negative value dropped",
			mutate:     func(r *domain.RawOrder) { r.NetOrderValue = "-5" },
			wantReason: DropNonPositiveValue,
		},
		{
			name:       "value rounding to zero dropped",
			mutate:     func(r *domain.RawOrder) { r.NetOrderValue = "0.4" },
			wantReason: DropNonPositiveValue,
		},
		{
			name:   "half values round to even",
			mutate: func(r *domain.RawOrder) { r.NetOrderValue = "2.5" },
			check: func(t *testing.T, o domain.Order) {
				assert.Equal(t, 2.0, o.NetOrderValue)
			},
		},
		{
			name:   "returned line keeps quantity",
			mutate: func(r *domain.RawOrder) { r.ReturnQuantity = "1.0" },
			check: func(t *testing.T, o domain.Order) {
				assert.Equal(t, 1, o.ReturnQuantity)
				assert.True(t, o.Returned())
			},
		},
		{
			name:       "garbage return quantity dropped",
			mutate:     func(r *domain.RawOrder) { r.ReturnQuantity = "lots" },
			wantReason: DropInvalidReturn,
		},
		{
			name:       "unparseable date dropped",
			mutate:     func(r *domain.RawOrder) { r.OrderDate = "yesterday" },
			wantReason: DropInvalidDate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := validRaw()
			if tt.mutate != nil {
				tt.mutate(&raw)
			}

			order, reason, ok := CleanOne(raw)
			if tt.wantReason != "" {
				assert.False(t, ok)
				assert.Equal(t, tt.wantReason, reason)
				return
			}
			require.True(t, ok, "unexpected drop: %s", reason)
			tt.check(t, order)
		})
	}
}

func TestCleanSortsAndReports(t *testing.T) {
	late := validRaw()
	late.OrderNumber = "2"
	late.OrderDate = "2014-01-02"

	early := validRaw()
	early.OrderNumber = "1"
	early.OrderDate = "2012-12-31"

	sameDay := validRaw()
	sameDay.OrderNumber = "3"
	sameDay.OrderDate = "2014-01-02"

	bad := validRaw()
	bad.NetOrderValue = "-5"

	cancelled := validRaw()
	cancelled.CancellationFlag = "1"

	var buf bytes.Buffer
	cleaner := NewCleaner(infrastructure.NewLogger("info", &buf))

	orders, report := cleaner.Clean(context.Background(), []domain.RawOrder{late, bad, early, cancelled, sameDay})

	require.Len(t, orders, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{orders[0].OrderNumber, orders[1].OrderNumber, orders[2].OrderNumber})
	assert.Equal(t, time.Date(2012, 12, 31, 0, 0, 0, 0, time.UTC), orders[0].OrderDate)
	assert.Equal(t, "2012Q4", orders[0].YearQuarter.String())

	assert.Equal(t, 5, report.Input)
	assert.Equal(t, 3, report.Output)
	assert.Equal(t, 2, report.DroppedTotal())
	assert.Equal(t, 1, report.Dropped[DropNonPositiveValue])
	assert.Equal(t, 1, report.Dropped[DropCancelled])
	assert.Contains(t, buf.String(), `"rows_dropped":2`)
}

func TestCleanEmptyInput(t *testing.T) {
	orders, report := NewCleaner(nil).Clean(context.Background(), nil)
	assert.Empty(t, orders)
	assert.Zero(t, report.Output)
	assert.Zero(t, report.DroppedTotal())
}
