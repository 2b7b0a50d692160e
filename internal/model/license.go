package model

import (
	"time"

	"github.com/google/uuid"
)

// NodeLicense is a license record attached to a node. A node without its own
// record inherits the nearest ancestor's via the recursive ascendant query.
type NodeLicense struct {
	ID               string `gorm:"primaryKey;uuid;not null"`
	LicenseID        string `gorm:"not null"` // e.g. "CC-BY-4.0"
	Name             string `gorm:"not null"`
	Year             string
	CopyrightHolders string // JSON array of names

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (NodeLicense) TableName() string {
	return "node_licenses"
}

// Copy returns a new record with the same content and a fresh id. Clones
// share a copied record, never the same row.
func (l *NodeLicense) Copy() *NodeLicense {
	return &NodeLicense{
		ID:               uuid.New().String(),
		LicenseID:        l.LicenseID,
		Name:             l.Name,
		Year:             l.Year,
		CopyrightHolders: l.CopyrightHolders,
	}
}
