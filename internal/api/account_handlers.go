package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"meet-backend/internal/crm"
	"meet-backend/internal/keycloak"
	"meet-backend/internal/logger"
	"meet-backend/internal/models"
	"meet-backend/internal/paddle"
	"meet-backend/internal/webhook"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

type DBUserResponse struct {
	User        *models.User        `json:"user"`
	BookedRooms []models.BookedRoom `json:"bookedRooms"`
}

// @Summary      Get current account
// @Description  Returns the local account of the authenticated user together with their booked rooms.
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  DBUserResponse
// @Failure      401  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      500  {object}  errorResponse
// @Router       /db-user [get]
func (s *Server) GetDBUserHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())

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

	rooms, err := s.store.ListBookingsByUser(r.Context(), user.ID)
	if err != nil {
		logger.Error(r.Context(), "list bookings failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to retrieve bookings")
		return
	}

	writeJSON(w, http.StatusOK, DBUserResponse{User: user, BookedRooms: rooms})
}

// DeletionResult reports, per system, whether the account is gone from it.
type DeletionResult struct {
	Keycloak bool `json:"keycloak"`
	Paddle   bool `json:"paddle"`
	CRM      bool `json:"crm"`
	Database bool `json:"database"`
}

func (d DeletionResult) status() int {
	switch {
	case d.Keycloak && d.Paddle && d.CRM && d.Database:
		return http.StatusOK
	case !d.Keycloak && !d.Paddle && !d.CRM && !d.Database:
		return http.StatusInternalServerError
	default:
		return http.StatusMultiStatus
	}
}

// @Summary      Delete an account everywhere
// @Description  Removes the account from the identity provider, cancels billing subscriptions, deletes the CRM contact and the local record. Absent records count as deleted.
// @Tags         users
// @Produce      json
// @Security     SharedSecret
// @Param        email  query  string  true  "Account email"
// @Success      200  {object}  DeletionResult
// @Success      207  {object}  DeletionResult
// @Failure      400  {object}  errorResponse
// @Failure      401  {object}  errorResponse
// @Failure      500  {object}  DeletionResult
// @Router       /db-user [delete]
func (s *Server) DeleteDBUserHandler(w http.ResponseWriter, r *http.Request) {
	email := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("email")))
	if email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}
	ctx := r.Context()

	identityUser, identityErr := s.identity.FindUserByEmail(ctx, email)
	if errors.Is(identityErr, keycloak.ErrUserNotFound) {
		identityErr = nil
	}
	if identityErr != nil {
		logger.Error(ctx, "identity lookup failed", zap.Error(identityErr))
		identityUser = nil
	}

	var result DeletionResult

	if err := s.cancelBilling(ctx, email, identityUser); err != nil {
		logger.Error(ctx, "billing cleanup failed", zap.Error(err))
	} else {
		result.Paddle = true
	}

	if err := s.contacts.DeleteContact(ctx, email); err != nil && !errors.Is(err, crm.ErrContactNotFound) {
		logger.Error(ctx, "crm contact delete failed", zap.Error(err))
	} else {
		result.CRM = true
	}

	if _, err := s.store.DeleteUserByEmail(ctx, email); err != nil {
		logger.Error(ctx, "local user delete failed", zap.Error(err))
	} else {
		result.Database = true
	}

	switch {
	case identityErr != nil:
	case identityUser == nil:
		result.Keycloak = true
	default:
		if err := s.identity.DeleteUser(ctx, identityUser.ID); err != nil && !errors.Is(err, keycloak.ErrUserNotFound) {
			logger.Error(ctx, "identity user delete failed", zap.Error(err))
		} else {
			result.Keycloak = true
		}
	}

	logger.Info(ctx, "account deletion finished",
		zap.Bool("keycloak", result.Keycloak),
		zap.Bool("paddle", result.Paddle),
		zap.Bool("crm", result.CRM),
		zap.Bool("database", result.Database))
	writeJSON(w, result.status(), result)
}

func (s *Server) resolveCustomerID(ctx context.Context, email string, identityUser *keycloak.User) (string, error) {
	if identityUser != nil {
		if id := identityUser.Attribute(webhook.AttrCustomerID); id != "" {
			return id, nil
		}
	}
	customer, err := s.billing.FindCustomerByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	return customer.ID, nil
}

func (s *Server) cancelBilling(ctx context.Context, email string, identityUser *keycloak.User) error {
	customerID, err := s.resolveCustomerID(ctx, email, identityUser)
	if errors.Is(err, paddle.ErrCustomerNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	subs, err := s.billing.ListActiveSubscriptions(ctx, customerID)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}
	for _, sub := range subs {
		if err := s.billing.CancelSubscription(ctx, sub.ID); err != nil {
			return err
		}
	}
	return nil
}

type PortalResponse struct {
	URL string `json:"url"`
}

// @Summary      Billing portal link
// @Tags         billing
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  PortalResponse
// @Failure      401  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      500  {object}  errorResponse
// @Router       /paddle-customer-portal [get]
func (s *Server) CustomerPortalHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())
	ctx := r.Context()

	identityUser, err := s.identity.FindUserByEmail(ctx, claims.Email)
	if err != nil && !errors.Is(err, keycloak.ErrUserNotFound) {
		logger.Error(ctx, "identity lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to create portal session")
		return
	}

	customerID, err := s.resolveCustomerID(ctx, claims.Email, identityUser)
	if errors.Is(err, paddle.ErrCustomerNotFound) {
		writeError(w, http.StatusNotFound, "No billing account found")
		return
	}
	if err != nil {
		logger.Error(ctx, "billing customer lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to create portal session")
		return
	}

	var subscriptionIDs []string
	if identityUser != nil {
		if id := identityUser.Attribute(webhook.AttrSubscriptionID); id != "" {
			subscriptionIDs = []string{id}
		}
	}

	url, err := s.billing.CreatePortalSession(ctx, customerID, subscriptionIDs)
	if errors.Is(err, paddle.ErrCustomerNotFound) {
		writeError(w, http.StatusNotFound, "No billing account found")
		return
	}
	if err != nil {
		logger.Error(ctx, "portal session failed", zap.String("customer_id", customerID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to create portal session")
		return
	}

	writeJSON(w, http.StatusOK, PortalResponse{URL: url})
}

type RegistrationRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type RegistrationResponse struct {
	CustomerID string `json:"customerId"`
	UserID     int64  `json:"userId"`
}

// @Summary      Provision a new signup
// @Description  Creates or reuses the billing customer, links it on the identity account, creates the local account and subscribes the contact to the mailing list.
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     SharedSecret
// @Param        registration  body  RegistrationRequest  true  "New account"
// @Success      201  {object}  RegistrationResponse
// @Failure      400  {object}  errorResponse
// @Failure      401  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      500  {object}  errorResponse
// @Router       /registration-flow [post]
func (s *Server) RegistrationFlowHandler(w http.ResponseWriter, r *http.Request) {
	var req RegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}
	name := strings.TrimSpace(req.FirstName + " " + req.LastName)
	ctx := r.Context()

	identityUser, err := s.identity.FindUserByEmail(ctx, email)
	if errors.Is(err, keycloak.ErrUserNotFound) {
		writeError(w, http.StatusNotFound, "Identity account not found")
		return
	}
	if err != nil {
		logger.Error(ctx, "identity lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Registration failed")
		return
	}

	customer, err := s.billing.CreateCustomer(ctx, email, name)
	if err != nil {
		logger.Error(ctx, "billing customer create failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Registration failed")
		return
	}

	if identityUser.Attribute(webhook.AttrCustomerID) != customer.ID {
		identityUser.SetAttribute(webhook.AttrCustomerID, customer.ID)
		if err := s.identity.UpdateUser(ctx, identityUser); err != nil {
			logger.Error(ctx, "link billing customer failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Registration failed")
			return
		}
	}

	user, err := s.store.UpsertUser(ctx, email)
	if err != nil {
		logger.Error(ctx, "local user upsert failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Registration failed")
		return
	}

	err = s.contacts.UpsertContact(ctx, email, map[string]any{
		"FIRSTNAME": req.FirstName,
		"LASTNAME":  req.LastName,
	})
	if err != nil {
		logger.Error(ctx, "crm contact upsert failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Registration failed")
		return
	}

	logger.Info(ctx, "registration provisioned",
		zap.String("customer_id", customer.ID),
		zap.Int64("user_id", user.ID))
	writeJSON(w, http.StatusCreated, RegistrationResponse{CustomerID: customer.ID, UserID: user.ID})
}
