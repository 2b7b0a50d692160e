package model

import "gorm.io/gorm"

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Institution{},
		&NodeLicense{},
		&Node{},
		&Guid{},
		&NodeRelation{},
		&Contributor{},
		&NodeLog{},
		&Tag{},
		&PrivateLink{},
	)
}
