package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"meet-backend/internal/database"
	"meet-backend/internal/logger"
	"meet-backend/internal/metrics"
	"meet-backend/internal/webhook"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

type AckResponse struct {
	Received bool `json:"received"`
}

func readRawBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
}

// acceptWebhook schedules fn and acknowledges the delivery. A runner that is
// shutting down refuses the task, and the sender is told to retry.
func (s *Server) acceptWebhook(w http.ResponseWriter, r *http.Request, task string, fn func(ctx context.Context) error) {
	if !s.runner.Go(r.Context(), task, fn) {
		writeError(w, http.StatusServiceUnavailable, "Shutting down")
		return
	}
	writeJSON(w, http.StatusOK, AckResponse{Received: true})
}

// @Summary      Billing provider webhook
// @Description  Verifies the Paddle-Signature header, acknowledges, then applies the event in the background.
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Param        Paddle-Signature  header  string  true  "ts=<unix>;h1=<hex hmac>"
// @Success      200  {object}  AckResponse
// @Failure      400  {object}  errorResponse
// @Failure      401  {object}  errorResponse
// @Router       /paddle-webhook [post]
func (s *Server) PaddleWebhookHandler(w http.ResponseWriter, r *http.Request) {
	body, err := readRawBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Could not read body")
		return
	}

	ok := webhook.VerifyPaddleSignature(body, r.Header.Get(webhook.HeaderPaddleSignature), s.config.Paddle.WebhookSecret, s.now())
	metrics.WebhookVerified("paddle", ok)
	if !ok {
		logger.Warn(r.Context(), "billing webhook signature rejected")
		writeError(w, http.StatusUnauthorized, "Invalid signature")
		return
	}

	s.acceptWebhook(w, r, "paddle-webhook", func(ctx context.Context) error {
		event, err := webhook.ExtractPaddleEvent(body)
		if err != nil {
			metrics.WebhookProcessed("paddle", "unknown", "invalid")
			return fmt.Errorf("extract billing event: %w", err)
		}
		logger.Info(ctx, "billing event received",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type))

		res, err := s.applier.Apply(ctx, event)
		if err != nil {
			metrics.WebhookProcessed("paddle", event.Type, "error")
			return fmt.Errorf("apply %s %s: %w", event.Type, event.ID, err)
		}
		metrics.WebhookProcessed("paddle", event.Type, res.String())
		return nil
	})
}

// @Summary      Identity provider webhook
// @Description  Verifies the X-Keycloak-Signature header, acknowledges, then syncs the account change to billing and CRM in the background.
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Param        X-Keycloak-Signature  header  string  true  "hex hmac of the body"
// @Success      200  {object}  AckResponse
// @Failure      400  {object}  errorResponse
// @Failure      401  {object}  errorResponse
// @Router       /keycloak-webhook [post]
func (s *Server) KeycloakWebhookHandler(w http.ResponseWriter, r *http.Request) {
	body, err := readRawBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Could not read body")
		return
	}

	ok := webhook.VerifyKeycloakSignature(body, r.Header.Get(webhook.HeaderKeycloakSignature), s.config.Keycloak.WebhookSecret)
	metrics.WebhookVerified("keycloak", ok)
	if !ok {
		logger.Warn(r.Context(), "identity webhook signature rejected")
		writeError(w, http.StatusUnauthorized, "Invalid signature")
		return
	}

	s.acceptWebhook(w, r, "keycloak-webhook", func(ctx context.Context) error {
		event, err := webhook.ExtractKeycloakEvent(body)
		if err != nil {
			metrics.WebhookProcessed("keycloak", "unknown", "invalid")
			return fmt.Errorf("extract identity event: %w", err)
		}
		logger.Info(ctx, "identity event received",
			zap.String("type", event.Type),
			zap.String("user_id", event.UserID))

		if _, err := s.profiles.Handle(ctx, event); err != nil {
			metrics.WebhookProcessed("keycloak", event.Type, "error")
			return err
		}
		metrics.WebhookProcessed("keycloak", event.Type, "ok")
		return nil
	})
}

// Conferencing gateway events.
const (
	ProsodyHostJoined    = "host-joined"
	ProsodyHostLeft      = "host-left"
	ProsodyRoomDestroyed = "room-destroyed"
)

type ProsodyEvent struct {
	Event string `json:"event"`
	Room  string `json:"room"`
	Email string `json:"email"`
}

// @Summary      Conferencing gateway webhook
// @Description  Tracks host sessions. host-joined starts a session, host-left and room-destroyed end it and add the elapsed minutes.
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Security     SharedSecret
// @Param        event  body  ProsodyEvent  true  "Gateway event"
// @Success      200  {object}  AckResponse
// @Failure      400  {object}  errorResponse
// @Failure      401  {object}  errorResponse
// @Router       /prosody-webhook [post]
func (s *Server) ProsodyWebhookHandler(w http.ResponseWriter, r *http.Request) {
	var event ProsodyEvent
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBody)).Decode(&event); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	email := strings.ToLower(strings.TrimSpace(event.Email))
	if email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	var apply func(ctx context.Context) error
	at := s.now()
	switch event.Event {
	case ProsodyHostJoined:
		apply = func(ctx context.Context) error {
			_, err := s.store.StartHostSession(ctx, email, at)
			return err
		}
	case ProsodyHostLeft, ProsodyRoomDestroyed:
		apply = func(ctx context.Context) error {
			user, err := s.store.EndHostSession(ctx, email, at)
			if err == nil {
				logger.Info(ctx, "host session ended", zap.Int("host_minutes", user.HostMinutes))
			}
			return err
		}
	default:
		writeError(w, http.StatusBadRequest, "Unknown event")
		return
	}

	s.acceptWebhook(w, r, "prosody-webhook", func(ctx context.Context) error {
		logger.Info(ctx, "gateway event", zap.String("event", event.Event), zap.String("room", event.Room))
		err := apply(ctx)
		if errors.Is(err, database.ErrUserNotFound) {
			metrics.WebhookProcessed("prosody", event.Event, "no_user")
			logger.Warn(ctx, "gateway event for unknown user")
			return nil
		}
		if err != nil {
			metrics.WebhookProcessed("prosody", event.Event, "error")
			return fmt.Errorf("%s: %w", event.Event, err)
		}
		metrics.WebhookProcessed("prosody", event.Event, "ok")
		return nil
	})
}
