package main

import "time"

// APIToken stores hashed bearer tokens that resolve callers to their
// user ID. The engine itself trusts whatever identity this layer hands it.
type APIToken struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    string `gorm:"index"`
	Label     string
	TokenHash string `gorm:"uniqueIndex"`
	RevokedAt *time.Time
	CreatedAt time.Time
}
