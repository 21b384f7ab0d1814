package database

import (
	"context"
	"errors"
	"meet-backend/internal/models"
	"time"

	"github.com/jackc/pgx/v5"
)

const userColumns = `
	id,
	email,
	is_active_host,
	max_bookings,
	host_minutes,
	host_session_start_time,
	created_at,
	updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.IsActiveHost,
		&user.MaxBookings,
		&user.HostMinutes,
		&user.HostSessionStartTime,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail returns nil, nil when no such user exists.
func (q *Queries) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT` + userColumns + ` FROM meet.users WHERE email = $1`

	user, err := scanUser(q.db.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// UpsertUser creates the user row for email, or touches the existing one.
func (q *Queries) UpsertUser(ctx context.Context, email string) (*models.User, error) {
	query := `
		INSERT INTO meet.users (email) VALUES ($1)
		ON CONFLICT (email) DO UPDATE SET updated_at = NOW()
		RETURNING` + userColumns

	return scanUser(q.db.QueryRow(ctx, query, email))
}

func (q *Queries) DeleteUserByEmail(ctx context.Context, email string) (bool, error) {
	res, err := q.db.Exec(ctx, `DELETE FROM meet.users WHERE email = $1`, email)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// SetMaxBookings reports false when no user has the given email.
func (q *Queries) SetMaxBookings(ctx context.Context, email string, maxBookings int) (bool, error) {
	query := `UPDATE meet.users SET max_bookings = $2, updated_at = NOW() WHERE email = $1`
	res, err := q.db.Exec(ctx, query, email, maxBookings)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// StartHostSession marks the user as an active host. A user that is already
// hosting keeps the original start time.
func (q *Queries) StartHostSession(ctx context.Context, email string, at time.Time) (*models.User, error) {
	query := `
		UPDATE meet.users
		SET is_active_host = TRUE, host_session_start_time = $2, updated_at = NOW()
		WHERE email = $1 AND NOT is_active_host
		RETURNING` + userColumns

	user, err := scanUser(q.db.QueryRow(ctx, query, email, at))
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	user, err = q.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// EndHostSession adds the elapsed session time, rounded up to whole minutes,
// to the host counter and clears the session. Ending a session that was never
// started is a no-op.
func (q *Queries) EndHostSession(ctx context.Context, email string, at time.Time) (*models.User, error) {
	query := `
		UPDATE meet.users
		SET host_minutes = host_minutes +
				GREATEST(0, CEIL(EXTRACT(EPOCH FROM ($2::timestamptz - host_session_start_time)) / 60))::int,
			is_active_host = FALSE,
			host_session_start_time = NULL,
			updated_at = NOW()
		WHERE email = $1 AND is_active_host
		RETURNING` + userColumns

	user, err := scanUser(q.db.QueryRow(ctx, query, email, at))
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	user, err = q.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// UpdateUserEmail follows an address change made at the identity provider.
func (q *Queries) UpdateUserEmail(ctx context.Context, oldEmail, newEmail string) (bool, error) {
	query := `UPDATE meet.users SET email = $2, updated_at = NOW() WHERE email = $1`
	res, err := q.db.Exec(ctx, query, oldEmail, newEmail)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}
