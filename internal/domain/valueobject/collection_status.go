package valueobject

import "fmt"

// CollectionStatus describes the outcome of one collection attempt for an
// organization.
type CollectionStatus string

const (
	StatusSuccess CollectionStatus = "success"
	StatusPartial CollectionStatus = "partial"
	StatusFailed  CollectionStatus = "failed"
)

func (s CollectionStatus) Validate() error {
	switch s {
	case StatusSuccess, StatusPartial, StatusFailed:
		return nil
	default:
		return fmt.Errorf("invalid collection status: %q", string(s))
	}
}

func (s CollectionStatus) String() string {
	return string(s)
}

// Usable reports whether a snapshot with this status carries metric values
// trustworthy enough to serve as a comparison baseline. Failed snapshots
// never do.
func (s CollectionStatus) Usable() bool {
	return s == StatusSuccess || s == StatusPartial
}
