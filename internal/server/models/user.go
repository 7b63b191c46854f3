// Package models defines server-side data models persisted in the database.
package models

import "time"

// User is the identity anchor. A user owns zero or more Ownership rows;
// deleting a user cascades to its ownerships but never to shared content.
type User struct {
	ID           int64
	UserName     string
	PasswordHash string
	CreatedAt    time.Time
}
