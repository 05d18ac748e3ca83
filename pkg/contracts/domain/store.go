package domain

import (
	"fmt"
	"strings"
	"time"
)

// StoreDateLayout is the DD/MM/YYYY layout store metadata uses for opening dates
const StoreDateLayout = "02/01/2006"

// Store is a physical store location. Stores are identified by city.
type Store struct {
	ID          string    `json:"city" validate:"required"`
	OpeningDate time.Time `json:"opening_date"`
	Latitude    float64   `json:"latitude" validate:"min=-90,max=90"`
	Longitude   float64   `json:"longitude" validate:"min=-180,max=180"`
}

// OpeningQuarter returns the quarter in which the store opened
func (s Store) OpeningQuarter() Quarter {
	return QuarterOf(s.OpeningDate)
}

// OpenedBefore reports whether the store opened strictly before t
func (s Store) OpenedBefore(t time.Time) bool {
	return s.OpeningDate.Before(t)
}

// ParseStoreDate parses an opening date in DD/MM/YYYY form
func ParseStoreDate(s string) (time.Time, error) {
	t, err := time.Parse(StoreDateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid store opening date %q: %w", s, err)
	}
	return t, nil
}

// StoreSet is an immutable, ordered collection of stores.
// The order is the store metadata order and drives tie-breaks.
type StoreSet struct {
	stores []Store
	index  map[string]int
}

// NewStoreSet creates a store set, rejecting empty or duplicate ids
func NewStoreSet(stores []Store) (*StoreSet, error) {
	set := &StoreSet{
		stores: make([]Store, 0, len(stores)),
		index:  make(map[string]int, len(stores)),
	}
	for _, s := range stores {
		if s.ID == "" {
			return nil, fmt.Errorf("store id cannot be empty")
		}
		if _, exists := set.index[s.ID]; exists {
			return nil, fmt.Errorf("duplicate store %s", s.ID)
		}
		set.index[s.ID] = len(set.stores)
		set.stores = append(set.stores, s)
	}
	return set, nil
}

// Len returns the number of stores
func (s *StoreSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.stores)
}

// All returns a copy of the stores in metadata order
func (s *StoreSet) All() []Store {
	if s == nil {
		return nil
	}
	out := make([]Store, len(s.stores))
	copy(out, s.stores)
	return out
}

// IDs returns store ids in metadata order
func (s *StoreSet) IDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, len(s.stores))
	for i, st := range s.stores {
		ids[i] = st.ID
	}
	return ids
}

// Get looks up a store by id
func (s *StoreSet) Get(id string) (Store, bool) {
	if s == nil {
		return Store{}, false
	}
	i, ok := s.index[id]
	if !ok {
		return Store{}, false
	}
	return s.stores[i], true
}

// Position returns the metadata position of a store, or -1
func (s *StoreSet) Position(id string) int {
	if s == nil {
		return -1
	}
	if i, ok := s.index[id]; ok {
		return i
	}
	return -1
}
