package webhook

import (
	"context"
	"errors"
	"fmt"
	"meet-backend/internal/crm"
	"meet-backend/internal/keycloak"
	"meet-backend/internal/logger"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Identity provider event types this service reacts to.
const (
	KeycloakRegister      = "REGISTER"
	KeycloakVerifyEmail   = "VERIFY_EMAIL"
	KeycloakUpdateProfile = "UPDATE_PROFILE"
	KeycloakUpdateEmail   = "UPDATE_EMAIL"
	KeycloakDeleteAccount = "DELETE_ACCOUNT"
)

type IdentityReader interface {
	GetUser(ctx context.Context, id string) (*keycloak.User, error)
}

type CustomerUpdater interface {
	UpdateCustomer(ctx context.Context, id, email, name string) error
}

type ContactSyncer interface {
	UpsertContact(ctx context.Context, email string, attrs map[string]any) error
	UpdateContact(ctx context.Context, email string, attrs map[string]any) error
}

type LocalUsers interface {
	UpdateUserEmail(ctx context.Context, oldEmail, newEmail string) (bool, error)
	DeleteUserByEmail(ctx context.Context, email string) (bool, error)
}

// SyncOutcome records each downstream system separately; one failing does not
// stop the other.
type SyncOutcome struct {
	Billing error
	CRM     error
}

func (o SyncOutcome) Err() error {
	return errors.Join(o.Billing, o.CRM)
}

// ProfileSync propagates identity provider account events to billing, CRM and
// the local database.
type ProfileSync struct {
	Users    IdentityReader
	Billing  CustomerUpdater
	Contacts ContactSyncer
	Local    LocalUsers
}

func contactAttributes(u *keycloak.User) map[string]any {
	return map[string]any{
		"EMAIL":     u.Email,
		"FIRSTNAME": u.FirstName,
		"LASTNAME":  u.LastName,
	}
}

func (p *ProfileSync) Handle(ctx context.Context, event KeycloakEvent) (SyncOutcome, error) {
	switch event.Type {
	case KeycloakUpdateProfile, KeycloakUpdateEmail:
		return p.syncProfile(ctx, event)
	case KeycloakRegister, KeycloakVerifyEmail:
		user, err := p.Users.GetUser(ctx, event.UserID)
		if err != nil {
			return SyncOutcome{}, fmt.Errorf("get identity user %s: %w", event.UserID, err)
		}
		out := SyncOutcome{CRM: p.Contacts.UpsertContact(ctx, user.Email, contactAttributes(user))}
		return out, out.Err()
	case KeycloakDeleteAccount:
		email := strings.ToLower(event.Details["email"])
		if email == "" {
			logger.Warn(ctx, "account deletion without email", zap.String("user_id", event.UserID))
			return SyncOutcome{}, nil
		}
		if _, err := p.Local.DeleteUserByEmail(ctx, email); err != nil {
			return SyncOutcome{}, fmt.Errorf("delete local user: %w", err)
		}
		return SyncOutcome{}, nil
	default:
		logger.Info(ctx, "identity event ignored", zap.String("type", event.Type))
		return SyncOutcome{}, nil
	}
}

func (p *ProfileSync) syncProfile(ctx context.Context, event KeycloakEvent) (SyncOutcome, error) {
	user, err := p.Users.GetUser(ctx, event.UserID)
	if err != nil {
		return SyncOutcome{}, fmt.Errorf("get identity user %s: %w", event.UserID, err)
	}

	newEmail := strings.ToLower(user.Email)
	previous := strings.ToLower(event.Details["previous_email"])
	if previous != "" && previous != newEmail {
		if _, err := p.Local.UpdateUserEmail(ctx, previous, newEmail); err != nil {
			return SyncOutcome{}, fmt.Errorf("rename local user: %w", err)
		}
	}
	contactKey := newEmail
	if previous != "" {
		contactKey = previous
	}

	var out SyncOutcome
	var g errgroup.Group
	g.Go(func() error {
		customerID := user.Attribute(AttrCustomerID)
		if customerID == "" {
			return nil
		}
		if err := p.Billing.UpdateCustomer(ctx, customerID, newEmail, user.FullName()); err != nil {
			out.Billing = fmt.Errorf("update billing customer: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		attrs := contactAttributes(user)
		err := p.Contacts.UpdateContact(ctx, contactKey, attrs)
		if errors.Is(err, crm.ErrContactNotFound) {
			err = p.Contacts.UpsertContact(ctx, newEmail, attrs)
		}
		if err != nil {
			out.CRM = fmt.Errorf("update crm contact: %w", err)
		}
		return nil
	})
	_ = g.Wait()

	if out.Billing != nil {
		logger.Error(ctx, "profile sync to billing failed", zap.Error(out.Billing))
	}
	if out.CRM != nil {
		logger.Error(ctx, "profile sync to crm failed", zap.Error(out.CRM))
	}
	return out, out.Err()
}
