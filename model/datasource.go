package model

import "time"

// SourceStatus is the reachability state of an external data source.
type SourceStatus string

const (
	SourceOnline   SourceStatus = "online"
	SourceOffline  SourceStatus = "offline"
	SourceDegraded SourceStatus = "degraded"
	SourceFetching SourceStatus = "fetching"
	SourceError    SourceStatus = "error"
)

// DataSource is a feed that can corroborate aircraft state reports.
// Aircraft reference sources by Name, not by ID.
type DataSource struct {
	ID          int          `json:"id"`
	Name        string       `json:"name"`
	Status      SourceStatus `json:"status"`
	LastUpdated time.Time    `json:"lastUpdated"`
}
