// Package matching prepares the panel of one analysis area: it attaches
// covariates, cuts the event window around the area's opening and pairs
// every treated postal code with its nearest untreated neighbours.
package matching
