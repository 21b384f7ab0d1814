package database

import (
	"context"
	"errors"
	"meet-backend/internal/models"
	"time"

	"github.com/jackc/pgx/v5"
)

const roomColumns = `
	id,
	name,
	user_id,
	lobby,
	password,
	max_occupants,
	expiry_date,
	created_at,
	updated_at`

func scanRoom(row pgx.Row) (*models.BookedRoom, error) {
	var room models.BookedRoom
	err := row.Scan(
		&room.ID,
		&room.Name,
		&room.UserID,
		&room.Lobby,
		&room.Password,
		&room.MaxOccupants,
		&room.ExpiryDate,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &room, nil
}

type CreateBookingParams struct {
	Name         string
	UserID       int64
	Lobby        bool
	Password     *string
	MaxOccupants int
	ExpiryDate   *time.Time
}

func (q *Queries) CreateBooking(ctx context.Context, arg CreateBookingParams) (*models.BookedRoom, error) {
	query := `
		INSERT INTO meet.booked_rooms (name, user_id, lobby, password, max_occupants, expiry_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING` + roomColumns

	room, err := scanRoom(q.db.QueryRow(ctx, query,
		arg.Name,
		arg.UserID,
		arg.Lobby,
		arg.Password,
		arg.MaxOccupants,
		arg.ExpiryDate,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrRoomTaken
		}
		return nil, err
	}
	return room, nil
}

// GetBookingByName returns nil, nil when the room is not booked.
func (q *Queries) GetBookingByName(ctx context.Context, name string) (*models.BookedRoom, error) {
	query := `SELECT` + roomColumns + ` FROM meet.booked_rooms WHERE name = $1`

	room, err := scanRoom(q.db.QueryRow(ctx, query, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return room, nil
}

func (q *Queries) RoomExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM meet.booked_rooms WHERE name = $1)`
	err := q.db.QueryRow(ctx, query, name).Scan(&exists)
	return exists, err
}

func (q *Queries) CountBookingsByUser(ctx context.Context, userID int64) (int, error) {
	var count int
	err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM meet.booked_rooms WHERE user_id = $1`, userID).Scan(&count)
	return count, err
}

func (q *Queries) ListBookingsByUser(ctx context.Context, userID int64) ([]models.BookedRoom, error) {
	query := `SELECT` + roomColumns + ` FROM meet.booked_rooms WHERE user_id = $1 ORDER BY created_at, id`
	rows, err := q.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rooms := []models.BookedRoom{}
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, *room)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rooms, nil
}

// DeleteBooking removes the named room only when userID owns it.
func (q *Queries) DeleteBooking(ctx context.Context, userID int64, name string) (bool, error) {
	res, err := q.db.Exec(ctx, `DELETE FROM meet.booked_rooms WHERE user_id = $1 AND name = $2`, userID, name)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// GetRoomOwner returns nil, nil when the room is not booked.
func (q *Queries) GetRoomOwner(ctx context.Context, name string) (*models.User, error) {
	query := `
		SELECT` + userColumns + `
		FROM meet.users
		WHERE id = (SELECT user_id FROM meet.booked_rooms WHERE name = $1)`

	user, err := scanUser(q.db.QueryRow(ctx, query, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}
