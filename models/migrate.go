package models

import "gorm.io/gorm"

// AutoMigrate creates or updates every table the application uses
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Team{},
		&TeamAdminAssignment{},
		&TeamAdminPermission{},
		&Task{},
		&Subtask{},
		&Message{},
		&ActivityLog{},
		&UserLogin{},
	)
}
