package domain

import "time"

// Supported webshop countries
const (
	CountryGermany     = "DE"
	CountryAustria     = "AT"
	CountrySwitzerland = "CH"
)

// countryNames maps ISO codes to the names geocoders report in addresses
var countryNames = map[string]string{
	CountryGermany:     "Germany",
	CountryAustria:     "Austria",
	CountrySwitzerland: "Switzerland",
}

// CountryName returns the English country name for a supported ISO code.
// Unknown codes are returned unchanged.
func CountryName(code string) string {
	if name, ok := countryNames[code]; ok {
		return name
	}
	return code
}

// IsSupportedCountry reports whether code is one of DE, AT or CH
func IsSupportedCountry(code string) bool {
	_, ok := countryNames[code]
	return ok
}

// RawOrder is a single order line exactly as exported by the webshop.
// All fields are kept as text; the cleaning stage is the coercion point.
type RawOrder struct {
	OrderNumber      string `json:"order_number"`
	ItemLineNumber   string `json:"item_line_number"`
	CancellationFlag string `json:"cancellation_flag"`
	ReturnQuantity   string `json:"return_quantity"`
	WebshopCountry   string `json:"webshop_country"`
	OrderDate        string `json:"order_date"`
	ShippingPostCode string `json:"shipping_post_code"`
	NetOrderValue    string `json:"net_order_value_euros"`
	QuantitySold     string `json:"quantity_sold"`
}

// Order is a cleaned order line
type Order struct {
	OrderNumber    int64     `json:"order_number"`
	ItemLineNumber int64     `json:"item_line_number"`
	Country        string    `json:"webshop_country"`
	OrderDate      time.Time `json:"order_date"`
	PostCode       string    `json:"shipping_post_code"`
	NetOrderValue  float64   `json:"net_order_value_euros"`
	ReturnQuantity int       `json:"return_quantity"`
	YearQuarter    Quarter   `json:"year_quarter"`
	YearMonth      Month     `json:"year_month"`
}

// Returned reports whether the line was returned
func (o Order) Returned() bool {
	return o.ReturnQuantity > 0
}

// GeoKey returns the key used to join the order to its geo record
func (o Order) GeoKey() GeoKey {
	return GeoKey{Country: o.Country, PostCode: o.PostCode}
}

// Group classifies a postal code relative to the store network
type Group string

const (
	GroupTreatmentStore Group = "Treatment_Store"
	GroupEarlyStore     Group = "Early_Store"
	GroupNonStore       Group = "Non_Store"
	GroupMatchedControl Group = "Matched_Control"
)

// IsValid reports whether g is a known group
func (g Group) IsValid() bool {
	switch g {
	case GroupTreatmentStore, GroupEarlyStore, GroupNonStore, GroupMatchedControl:
		return true
	}
	return false
}

// AnnotatedOrder is an order with its treatment assignment.
// Exactly one of TreatmentStoreDistance and NonTreatedStoreDistance is set,
// the other is NaN.
type AnnotatedOrder struct {
	Order
	Treatment               int     `json:"Treatment"`
	Post                    int     `json:"Post"`
	Group                   Group   `json:"Group"`
	Store                   string  `json:"treatment_store"`
	OpeningQuarter          Quarter `json:"treatment_store_opening_date"`
	TreatmentStoreDistance  float64 `json:"treatment_store_distance"`
	NonTreatedStoreDistance float64 `json:"non_treated_store_distance"`
}
