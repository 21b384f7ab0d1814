package api

import (
	"context"
	"encoding/json"
	"errors"
	"meet-backend/internal/database"
	"meet-backend/internal/logger"
	"meet-backend/internal/models"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// RoomSettings is what the conferencing gateway applies when a host opens a
// room.
type RoomSettings struct {
	MaxOccupants int    `json:"max_occupants"`
	Lobby        bool   `json:"lobby"`
	Password     string `json:"password"`
}

type CreateBookingRequest struct {
	RoomName     string     `json:"roomName"`
	Lobby        bool       `json:"lobby"`
	Password     *string    `json:"password,omitempty"`
	MaxOccupants *int       `json:"maxOccupants,omitempty"`
	ExpiryDate   *time.Time `json:"expiryDate,omitempty"`
}

type BookingResponse struct {
	RoomName     string     `json:"roomName"`
	Lobby        bool       `json:"lobby"`
	Password     *string    `json:"password,omitempty"`
	MaxOccupants int        `json:"maxOccupants"`
	ExpiryDate   *time.Time `json:"expiryDate,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

type RoomAvailabilityResponse struct {
	Available bool   `json:"available"`
	RoomName  string `json:"roomName"`
}

func newBookingResponse(room *models.BookedRoom) BookingResponse {
	return BookingResponse{
		RoomName:     room.Name,
		Lobby:        room.Lobby,
		Password:     room.Password,
		MaxOccupants: room.MaxOccupants,
		ExpiryDate:   room.ExpiryDate,
		CreatedAt:    room.CreatedAt,
	}
}

func normalizeRoomName(name string) string {
	return strings.TrimSpace(name)
}

func clampOccupants(n *int) int {
	if n == nil {
		return models.MaxOccupantsLimit
	}
	return max(1, min(*n, models.MaxOccupantsLimit))
}

// @Summary      Room settings for the conferencing gateway
// @Description  Returns the settings for a room. Unbooked rooms get the defaults; rooms booked by someone other than email are refused.
// @Tags         bookings
// @Produce      json
// @Security     SharedSecret
// @Param        room   query  string  true   "Room name"
// @Param        email  query  string  false  "Host email"
// @Success      200  {object}  RoomSettings
// @Failure      400  {object}  errorResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Failure      504  {object}  errorResponse
// @Router       /manage-booking [get]
func (s *Server) GetBookingHandler(w http.ResponseWriter, r *http.Request) {
	roomName := normalizeRoomName(r.URL.Query().Get("room"))
	if roomName == "" {
		writeError(w, http.StatusBadRequest, "room is required")
		return
	}
	email := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("email")))

	ctx, cancel := context.WithTimeout(r.Context(), s.lookupTimeout)
	defer cancel()

	room, owner, err := s.lookupBooking(ctx, roomName)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Warn(r.Context(), "booking lookup timed out", zap.String("room", roomName))
			writeError(w, http.StatusGatewayTimeout, "Booking lookup timed out")
			return
		}
		logger.Error(r.Context(), "booking lookup failed", zap.String("room", roomName), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to look up booking")
		return
	}

	if room == nil {
		writeJSON(w, http.StatusOK, RoomSettings{MaxOccupants: models.MaxOccupantsLimit})
		return
	}
	if owner == nil || owner.Email != email {
		writeError(w, http.StatusForbidden, "Room is booked by another user")
		return
	}

	settings := RoomSettings{MaxOccupants: room.MaxOccupants, Lobby: room.Lobby}
	if room.Password != nil {
		settings.Password = *room.Password
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) lookupBooking(ctx context.Context, name string) (*models.BookedRoom, *models.User, error) {
	room, err := s.store.GetBookingByName(ctx, name)
	if err != nil || room == nil {
		return nil, nil, err
	}
	owner, err := s.store.GetRoomOwner(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	return room, owner, nil
}

// @Summary      Book a room
// @Description  Books a room name for the authenticated user, subject to their booking quota.
// @Tags         bookings
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        booking  body  CreateBookingRequest  true  "Booking"
// @Success      201  {object}  BookingResponse
// @Failure      400  {object}  errorResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse "Booking quota exhausted"
// @Failure      404  {object}  errorResponse
// @Failure      409  {object}  errorResponse "Room name taken"
// @Router       /manage-booking [post]
func (s *Server) CreateBookingHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())

	var req CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	roomName := normalizeRoomName(req.RoomName)
	if roomName == "" {
		writeError(w, http.StatusBadRequest, "roomName is required")
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), claims.Email)
	if err != nil {
		logger.Error(r.Context(), "get user failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to retrieve user data")
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}

	room, err := s.store.BookRoom(r.Context(), database.CreateBookingParams{
		Name:         roomName,
		UserID:       user.ID,
		Lobby:        req.Lobby,
		Password:     req.Password,
		MaxOccupants: clampOccupants(req.MaxOccupants),
		ExpiryDate:   req.ExpiryDate,
	})
	switch {
	case errors.Is(err, database.ErrQuotaExceeded):
		writeError(w, http.StatusForbidden, "Booking limit reached")
		return
	case errors.Is(err, database.ErrRoomTaken):
		writeError(w, http.StatusConflict, "Room name is already booked")
		return
	case err != nil:
		logger.Error(r.Context(), "book room failed", zap.String("room", roomName), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to book room")
		return
	}

	logger.Info(r.Context(), "room booked", zap.String("room", room.Name), zap.Int64("user_id", user.ID))
	writeJSON(w, http.StatusCreated, newBookingResponse(room))
}

// @Summary      Cancel a booking
// @Tags         bookings
// @Produce      json
// @Security     BearerAuth
// @Param        roomName  query  string  true  "Room name"
// @Success      200  {object}  map[string]bool
// @Failure      400  {object}  errorResponse
// @Failure      401  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /manage-booking [delete]
func (s *Server) DeleteBookingHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())

	roomName := normalizeRoomName(r.URL.Query().Get("roomName"))
	if roomName == "" {
		writeError(w, http.StatusBadRequest, "roomName is required")
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), claims.Email)
	if err != nil {
		logger.Error(r.Context(), "get user failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to retrieve user data")
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}

	deleted, err := s.store.DeleteBooking(r.Context(), user.ID, roomName)
	if err != nil {
		logger.Error(r.Context(), "delete booking failed", zap.String("room", roomName), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to delete booking")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Booking not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// @Summary      Check room availability
// @Tags         bookings
// @Produce      json
// @Security     BearerAuth
// @Param        roomName  query  string  true  "Room name"
// @Success      200  {object}  RoomAvailabilityResponse
// @Failure      400  {object}  errorResponse
// @Failure      401  {object}  errorResponse
// @Router       /room-availability [get]
func (s *Server) RoomAvailabilityHandler(w http.ResponseWriter, r *http.Request) {
	roomName := normalizeRoomName(r.URL.Query().Get("roomName"))
	if roomName == "" {
		writeError(w, http.StatusBadRequest, "roomName is required")
		return
	}

	exists, err := s.store.RoomExists(r.Context(), roomName)
	if err != nil {
		logger.Error(r.Context(), "room availability failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to check availability")
		return
	}

	writeJSON(w, http.StatusOK, RoomAvailabilityResponse{Available: !exists, RoomName: roomName})
}
