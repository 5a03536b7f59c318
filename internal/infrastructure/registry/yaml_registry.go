package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dreschagin/research-monitor/internal/domain/entity"
)

// registryFile is the on-disk roster layout.
type registryFile struct {
	Organizations []organizationEntry `yaml:"organizations"`
}

type organizationEntry struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Acronym string `yaml:"acronym"`
	Group   string `yaml:"group"`
	RORID   string `yaml:"ror_id"`
}

// YAMLRegistry is a port.OrganizationRegistry backed by a YAML roster file,
// loaded once at startup.
type YAMLRegistry struct {
	organizations []entity.Organization
	byID          map[string]entity.Organization
}

// LoadYAMLRegistry reads and validates the roster file.
func LoadYAMLRegistry(path string) (*YAMLRegistry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry file: %w", err)
	}
	return ParseYAMLRegistry(raw)
}

// ParseYAMLRegistry builds a registry from raw YAML.
func ParseYAMLRegistry(raw []byte) (*YAMLRegistry, error) {
	var file registryFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse registry file: %w", err)
	}
	if len(file.Organizations) == 0 {
		return nil, fmt.Errorf("registry file lists no organizations")
	}

	reg := &YAMLRegistry{
		organizations: make([]entity.Organization, 0, len(file.Organizations)),
		byID:          make(map[string]entity.Organization, len(file.Organizations)),
	}
	for i, entry := range file.Organizations {
		if entry.ID == "" {
			return nil, fmt.Errorf("organization #%d: id is required", i+1)
		}
		if entry.RORID == "" {
			return nil, fmt.Errorf("organization %s: ror_id is required", entry.ID)
		}
		if _, dup := reg.byID[entry.ID]; dup {
			return nil, fmt.Errorf("organization %s: duplicate id", entry.ID)
		}
		org := entity.Organization{
			ID:      entry.ID,
			Name:    entry.Name,
			Acronym: entry.Acronym,
			Group:   entry.Group,
			RORID:   entry.RORID,
		}
		reg.organizations = append(reg.organizations, org)
		reg.byID[org.ID] = org
	}
	return reg, nil
}

// All returns the roster in file order.
func (r *YAMLRegistry) All() []entity.Organization {
	out := make([]entity.Organization, len(r.organizations))
	copy(out, r.organizations)
	return out
}

// Find returns the organization with the given id.
func (r *YAMLRegistry) Find(id string) (entity.Organization, bool) {
	org, ok := r.byID[id]
	return org, ok
}
