package model

import "time"

// Institution can be affiliated with users and nodes. A node affiliation is
// only allowed when the acting user is affiliated with the institution.
type Institution struct {
	ID   string `gorm:"primaryKey;uuid;not null"`
	Name string `gorm:"not null;uniqueIndex"`

	CreatedAt time.Time
}

func (Institution) TableName() string {
	return "institutions"
}
