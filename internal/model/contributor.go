package model

import "time"

// Contributor is a (user, node) record carrying permission flags, public
// visibility and presentation order. Every node keeps at least one admin
// contributor and, while any contributor is visible, at least one visible
// contributor.
type Contributor struct {
	ID      string `gorm:"primaryKey;uuid;not null"`
	UserID  string `gorm:"uuid;not null;uniqueIndex:idx_contributors_user_node"`
	NodeID  string `gorm:"uuid;not null;uniqueIndex:idx_contributors_user_node;index"`
	Read    bool   `gorm:"not null;default:false"`
	Write   bool   `gorm:"not null;default:false"`
	Admin   bool   `gorm:"not null;default:false"`
	Visible bool   `gorm:"not null;default:false"`

	Order int `gorm:"column:_order;not null;default:0"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Contributor) TableName() string {
	return "contributors"
}
