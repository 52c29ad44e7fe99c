// Package sqlite persists near filter runs and per-revolution statistics.
//
// Schema changes live in migrations/ and are applied with golang-migrate
// from the embedded filesystem when a Store is opened. Point data is not
// stored; each revolution keeps its Stats and intensity/distance summary.
package sqlite
