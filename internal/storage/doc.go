// Package storage loads and saves pipeline tables.
//
// Two sources exist. The local store reads CSV, XLSX and Parquet files from
// a base directory or from gs:// objects and writes CSV or XLSX. The
// BigQuery store reads and writes tables of one dataset, reusing the schema
// of an existing table or generating one from the frame's column types.
// The source is chosen by configuration; nothing in this package consults
// the environment.
package storage
