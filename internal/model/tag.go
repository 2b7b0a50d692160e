package model

import "time"

// Tag is a node label. System tags are machine written and excluded from
// user tag listings.
type Tag struct {
	ID     string `gorm:"primaryKey;uuid;not null"`
	Name   string `gorm:"not null;uniqueIndex:idx_tags_name_system"`
	System bool   `gorm:"not null;default:false;uniqueIndex:idx_tags_name_system"`

	CreatedAt time.Time
}

func (Tag) TableName() string {
	return "tags"
}
