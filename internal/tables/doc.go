// Package tables converts between typed pipeline records and the gota
// DataFrames exchanged with storage.
//
// Loaded frames may carry any column types; readers go through each
// column's string records so postal codes keep their leading zeros.
// Frames built here are typed so warehouse schemas can be derived from them.
package tables
