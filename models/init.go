package models

import "gorm.io/gorm"

// EnsureBootstrapAdmin creates the first admin account if no user with that email exists
func EnsureBootstrapAdmin(db *gorm.DB, email, fullName, passwordHash string) error {
	admin := User{
		Email:        email,
		FullName:     fullName,
		PasswordHash: passwordHash,
		Role:         RoleAdmin,
		Status:       StatusActive,
	}
	return db.Where("email = ?", email).FirstOrCreate(&admin).Error
}
