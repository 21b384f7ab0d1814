package models

import "time"

type User struct {
	ID                   int64      `json:"id" db:"id"`
	Email                string     `json:"email" db:"email"`
	IsActiveHost         bool       `json:"is_active_host" db:"is_active_host"`
	MaxBookings          int        `json:"max_bookings" db:"max_bookings"`
	HostMinutes          int        `json:"host_minutes" db:"host_minutes"`
	HostSessionStartTime *time.Time `json:"host_session_start_time,omitempty" db:"host_session_start_time"`
	CreatedAt            time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at" db:"updated_at"`
}
