package models

import "time"

// MaxOccupantsLimit is the hard occupancy ceiling for any booked room.
const MaxOccupantsLimit = 100

type BookedRoom struct {
	ID           int64      `json:"id" db:"id"`
	Name         string     `json:"name" db:"name"`
	UserID       int64      `json:"user_id" db:"user_id"`
	Lobby        bool       `json:"lobby" db:"lobby"`
	Password     *string    `json:"password,omitempty" db:"password"`
	MaxOccupants int        `json:"max_occupants" db:"max_occupants"`
	ExpiryDate   *time.Time `json:"expiry_date,omitempty" db:"expiry_date"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}
