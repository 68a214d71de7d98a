// Package scheduler drives the market ticker.
// It handles:
// - A self re-arming timer aligned to :00/:15/:30/:45 exchange time
// - The ticker digest while the market is open
// - Prediction resolution at market open and close
// - A nightly purge of stale predictions
//
// The main scheduler is implemented in jobs.go
package scheduler
