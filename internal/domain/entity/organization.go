package entity

// Organization is immutable reference data loaded once per process from the
// organizations file. It is never mutated by the pipeline.
type Organization struct {
	ID            string
	Name          string
	Acronym       string
	Group         string // KNAW / NFU / NWO / TO2 / University / ...
	RORID         string
	DataSourceIDs []string
}

// DataSourceType distinguishes repositories from CRIS systems.
type DataSourceType string

const (
	SourceRepository DataSourceType = "repository"
	SourceCRIS       DataSourceType = "CRIS"
)

// DataSource is a repository or CRIS system associated with an organization.
// The organization link is a weak back-reference, not ownership.
type DataSource struct {
	ID             string
	OrganizationID string
	Type           DataSourceType
	Name           string
}
