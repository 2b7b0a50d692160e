package model

import "time"

// User is the acting principal referenced by contributors and logs.
type User struct {
	ID       string `gorm:"primaryKey;uuid;not null"`
	Username string `gorm:"not null;uniqueIndex"`
	Fullname string
	IsActive bool `gorm:"default:true"`

	Institutions []*Institution `gorm:"many2many:user_institutions"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (User) TableName() string {
	return "users"
}
