// Package models holds the persistent records of the palette server.
package models

import "time"

type User struct {
	ID        string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
