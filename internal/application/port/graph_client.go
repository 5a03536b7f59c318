package port

import (
	"context"
	"time"
)

// OrganizationMetrics is the raw result of querying the graph API for one
// organization, before it becomes a snapshot.
type OrganizationMetrics struct {
	OrganizationID     string
	ResolvedGraphID    string // provider-side id after ROR resolution
	TotalPublications  int
	RecentPublications int
	DataSources        []DataSourceMetrics
	// Partial marks a result where publication counts were obtained but part
	// of the data source listing could not be fetched.
	Partial bool
}

// DataSourceMetrics describes one repository or CRIS system of an
// organization as reported by the provider.
type DataSourceMetrics struct {
	ID          string
	Name        string
	Type        string
	LastUpdated *time.Time // nil when the provider omits it
}

// GraphClient is the port to the scholarly graph provider.
type GraphClient interface {
	// FetchOrganization collects publication and data source metrics for the
	// organization identified by its ROR id.
	FetchOrganization(ctx context.Context, rorID string) (*OrganizationMetrics, error)

	// TestConnection verifies credentials and reachability with a minimal
	// authenticated request.
	TestConnection(ctx context.Context) error
}
