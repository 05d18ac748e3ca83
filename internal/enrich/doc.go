// Package enrich resolves the distinct postal codes of the cleaned orders and
// measures their distance to every store.
//
// Coordinate policy: the primary source wins only when its address ends in
// Germany, Switzerland or Austria; otherwise the secondary, then the tertiary
// source is used; with no usable result the coordinates and all distances
// are NaN. Distances are haversine kilometres on the mean Earth radius,
// rounded to whole kilometres.
package enrich
