package matching

import (
	"fmt"

	apperrors "omnichannel/internal/errors"
	"omnichannel/pkg/contracts/domain"
)

// Window is an event window of quarters around the opening of one store
type Window struct {
	Area   string
	Before int
	After  int
}

// NewWindow validates the window against the store network
func NewWindow(area string, before, after int, stores *domain.StoreSet) (Window, error) {
	if _, ok := stores.Get(area); !ok {
		return Window{}, apperrors.NewConfigError(fmt.Sprintf("unknown analysis area %q", area), nil).
			WithContext("stores", stores.IDs())
	}
	if before < 0 || after < 0 {
		return Window{}, apperrors.NewConfigError(fmt.Sprintf("window bounds must be non-negative, got %d/%d", before, after), nil)
	}
	return Window{Area: area, Before: before, After: after}, nil
}

// Contains reports whether a quarters-since-opening offset lies in the window
func (w Window) Contains(offset int) bool {
	return offset >= -w.Before && offset <= w.After
}

// Select keeps the area's own postal codes and every untreated postal code,
// relabels rows of other stores as controls of the area and cuts the panel to
// the window. Each input row appears at most once in the result.
func (w Window) Select(panel []domain.PanelRow) []domain.PanelRow {
	out := make([]domain.PanelRow, 0, len(panel))
	for _, r := range panel {
		if r.TreatmentStore != w.Area && r.Treatment != 0 {
			continue
		}
		offset, ok := r.QuartersSince(w.Area)
		if !ok || !w.Contains(offset) {
			continue
		}
		row := r.Clone()
		if row.TreatmentStore != w.Area {
			row.TreatmentStore = domain.ControlLabel(w.Area)
		}
		out = append(out, row)
	}
	return out
}
