package database

import (
	"context"
	"fmt"
	"meet-backend/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
	*Queries
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:    pool,
		Queries: New(pool),
	}
}

func (s *Store) ExecTx(ctx context.Context, fn func(*Queries) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	q := New(tx)
	err = fn(q)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("tx err: %v, rb err: %v", err, rbErr)
		}
		return err
	}

	return tx.Commit(ctx)
}

// BookRoom checks the user's quota and inserts the booking in one
// transaction. The user row is locked so concurrent bookings by the same
// user cannot both pass the quota check.
func (s *Store) BookRoom(ctx context.Context, arg CreateBookingParams) (*models.BookedRoom, error) {
	var room *models.BookedRoom
	err := s.ExecTx(ctx, func(q *Queries) error {
		var maxBookings int
		err := q.db.QueryRow(ctx, `SELECT max_bookings FROM meet.users WHERE id = $1 FOR UPDATE`, arg.UserID).Scan(&maxBookings)
		if err != nil {
			return fmt.Errorf("lock user %d: %w", arg.UserID, err)
		}

		count, err := q.CountBookingsByUser(ctx, arg.UserID)
		if err != nil {
			return err
		}
		if count >= maxBookings {
			return ErrQuotaExceeded
		}

		room, err = q.CreateBooking(ctx, arg)
		return err
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) GetPool() *pgxpool.Pool {
	return s.pool
}
