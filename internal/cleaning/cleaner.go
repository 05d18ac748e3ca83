package cleaning

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"omnichannel/internal/infrastructure"
	"omnichannel/pkg/contracts/domain"
)

// DropReason names the rule that rejected a raw order line
type DropReason string

const (
	DropCancelled          DropReason = "cancelled"
	DropUnknownCountry     DropReason = "unknown_country"
	DropUnsupportedCountry DropReason = "unsupported_country"
	DropInvalidNumber      DropReason = "invalid_number"
	DropInvalidReturn      DropReason = "invalid_return_quantity"
	DropInvalidPostCode    DropReason = "invalid_post_code"
	DropNonPositiveValue   DropReason = "non_positive_value"
	DropInvalidDate        DropReason = "invalid_date"
)

// legacyCountryCodes are webshop codes that map onto a supported country
var legacyCountryCodes = map[string]string{
	"FH": domain.CountryGermany,
}

// unknownCountry marks orders without a usable shipping country
const unknownCountry = "UNKNOWN"

// orderDateLayouts lists the accepted order_date encodings
var orderDateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04:05-07:00",
	"02.01.2006",
}

// Report counts what the cleaner kept and why it dropped the rest
type Report struct {
	Input   int                `json:"input"`
	Output  int                `json:"output"`
	Dropped map[DropReason]int `json:"dropped"`
}

// DroppedTotal returns the number of rejected rows
func (r Report) DroppedTotal() int {
	total := 0
	for _, n := range r.Dropped {
		total += n
	}
	return total
}

// DroppedByReason returns the drop counts keyed by plain strings
func (r Report) DroppedByReason() map[string]int {
	out := make(map[string]int, len(r.Dropped))
	for k, v := range r.Dropped {
		out[string(k)] = v
	}
	return out
}

// Cleaner normalizes raw webshop order lines.
// Malformed rows are dropped silently and only counted in the Report.
type Cleaner struct {
	logger *slog.Logger
}

// NewCleaner creates a cleaner
func NewCleaner(logger *slog.Logger) *Cleaner {
	return &Cleaner{logger: infrastructure.WithComponent(logger, "cleaning")}
}

// Clean applies the cleaning rules to every raw line and returns the kept
// orders sorted by order date (ties keep input order).
func (c *Cleaner) Clean(ctx context.Context, raws []domain.RawOrder) ([]domain.Order, Report) {
	report := Report{Input: len(raws), Dropped: make(map[DropReason]int)}
	orders := make([]domain.Order, 0, len(raws))

	for _, raw := range raws {
		order, reason, ok := CleanOne(raw)
		if !ok {
			report.Dropped[reason]++
			continue
		}
		orders = append(orders, order)
	}

	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].OrderDate.Before(orders[j].OrderDate)
	})

	report.Output = len(orders)

	c.logger.InfoContext(ctx, "Orders cleaned",
		slog.Int("rows_in", report.Input),
		slog.Int("rows_out", report.Output),
		slog.Int("rows_dropped", report.DroppedTotal()),
		slog.Any("dropped_by_reason", report.DroppedByReason()))

	return orders, report
}

// CleanOne applies the cleaning rules to a single raw line.
// When the line is rejected, the returned reason names the first failing rule.
func CleanOne(raw domain.RawOrder) (domain.Order, DropReason, bool) {
	if !isFalse(raw.CancellationFlag) {
		return domain.Order{}, DropCancelled, false
	}

	returned, ok := parseReturnQuantity(raw.ReturnQuantity)
	if !ok {
		return domain.Order{}, DropInvalidReturn, false
	}

	country := strings.ToUpper(strings.TrimSpace(raw.WebshopCountry))
	if mapped, ok := legacyCountryCodes[country]; ok {
		country = mapped
	}
	if country == "" || country == unknownCountry {
		return domain.Order{}, DropUnknownCountry, false
	}
	if !domain.IsSupportedCountry(country) {
		return domain.Order{}, DropUnsupportedCountry, false
	}

	orderNumber, ok := parseInteger(raw.OrderNumber)
	if !ok {
		return domain.Order{}, DropInvalidNumber, false
	}
	lineNumber, ok := parseInteger(raw.ItemLineNumber)
	if !ok {
		return domain.Order{}, DropInvalidNumber, false
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw.NetOrderValue), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return domain.Order{}, DropInvalidNumber, false
	}

	postCode := strings.TrimSpace(raw.ShippingPostCode)
	if !ValidPostCode(country, postCode) {
		return domain.Order{}, DropInvalidPostCode, false
	}

	value = math.RoundToEven(value)
	if value <= 0 {
		return domain.Order{}, DropNonPositiveValue, false
	}

	orderDate, ok := parseOrderDate(raw.OrderDate)
	if !ok {
		return domain.Order{}, DropInvalidDate, false
	}

	return domain.Order{
		OrderNumber:    orderNumber,
		ItemLineNumber: lineNumber,
		Country:        country,
		OrderDate:      orderDate,
		PostCode:       postCode,
		NetOrderValue:  value,
		ReturnQuantity: returned,
		YearQuarter:    domain.QuarterOf(orderDate),
		YearMonth:      domain.MonthOf(orderDate),
	}, "", true
}

// ValidPostCode checks the per-country postal code format.
// DE codes have exactly 5 characters; AT and CH codes have exactly 4
// characters and never start with "0".
func ValidPostCode(country, postCode string) bool {
	if postCode == "" {
		return false
	}
	switch country {
	case domain.CountryGermany:
		return len(postCode) == 5
	case domain.CountryAustria, domain.CountrySwitzerland:
		return len(postCode) == 4 && !strings.HasPrefix(postCode, "0")
	}
	return false
}

// isFalse accepts only an explicit false; an empty or NA flag is not one
func isFalse(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "0", "false", "f", "no", "n":
		return true
	}
	return false
}

// parseReturnQuantity treats a missing value as no return
func parseReturnQuantity(s string) (int, bool) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "nan", "null", "none", "<na>":
		return 0, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || f < 0 {
		return 0, false
	}
	return int(f), true
}

// parseInteger accepts integers and integral floats such as "12.0"
func parseInteger(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}

func parseOrderDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range orderDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
