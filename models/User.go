package models

import "gorm.io/gorm"

// User represents an operator account. Its ID is stamped as the author of
// BOMs, BOM items, production orders and ledger adjustments.
type User struct {
	gorm.Model
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	Name         string
}
