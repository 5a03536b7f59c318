package port

import "github.com/dreschagin/research-monitor/internal/domain/entity"

// OrganizationRegistry provides the monitored organization roster.
type OrganizationRegistry interface {
	// All returns every registered organization in registry order.
	All() []entity.Organization

	// Find returns the organization with the given id, or false.
	Find(id string) (entity.Organization, bool)
}
