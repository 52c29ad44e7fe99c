// Package monitor exposes the running near filter over HTTP and renders
// revolutions as charts: an interactive go-echarts scatter on the debug
// index and periodic gonum/plot PNGs on disk.
package monitor
