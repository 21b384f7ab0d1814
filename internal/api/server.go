package api

import (
	"context"
	"meet-backend/internal/auth"
	"meet-backend/internal/config"
	"meet-backend/internal/crm"
	"meet-backend/internal/database"
	"meet-backend/internal/keycloak"
	"meet-backend/internal/paddle"
	"meet-backend/internal/webhook"
	"meet-backend/internal/websocket"
	"meet-backend/internal/worker"
	"time"

	"go.uber.org/zap"
)

// bookingLookupTimeout bounds the conferencing gateway's booking lookup.
const bookingLookupTimeout = 5 * time.Second

type Identity interface {
	GetUser(ctx context.Context, id string) (*keycloak.User, error)
	FindUserByEmail(ctx context.Context, email string) (*keycloak.User, error)
	FindUserByAttribute(ctx context.Context, name, value string) (*keycloak.User, error)
	UpdateUser(ctx context.Context, user *keycloak.User) error
	DeleteUser(ctx context.Context, id string) error
}

type Billing interface {
	GetCustomer(ctx context.Context, id string) (*paddle.Customer, error)
	FindCustomerByEmail(ctx context.Context, email string) (*paddle.Customer, error)
	CreateCustomer(ctx context.Context, email, name string) (*paddle.Customer, error)
	UpdateCustomer(ctx context.Context, id, email, name string) error
	ListActiveSubscriptions(ctx context.Context, customerID string) ([]paddle.Subscription, error)
	CancelSubscription(ctx context.Context, id string) error
	CreatePortalSession(ctx context.Context, customerID string, subscriptionIDs []string) (string, error)
}

type Contacts interface {
	UpsertContact(ctx context.Context, email string, attrs map[string]any) error
	UpdateContact(ctx context.Context, email string, attrs map[string]any) error
	DeleteContact(ctx context.Context, email string) error
}

var (
	_ Identity = (*keycloak.Client)(nil)
	_ Billing  = (*paddle.Client)(nil)
	_ Contacts = (*crm.Client)(nil)
)

type Providers struct {
	Identity Identity
	Billing  Billing
	Contacts Contacts
}

type Server struct {
	config   *config.Config
	log      *zap.Logger
	store    *database.Store
	identity Identity
	billing  Billing
	contacts Contacts
	verifier *auth.Verifier
	runner   *worker.Runner
	wsHub    *websocket.Hub
	applier  *webhook.Applier
	profiles *webhook.ProfileSync

	now           func() time.Time
	lookupTimeout time.Duration
}

func NewServer(cfg *config.Config, log *zap.Logger, store *database.Store, providers Providers, verifier *auth.Verifier, runner *worker.Runner, wsHub *websocket.Hub) *Server {
	return &Server{
		config:   cfg,
		log:      log,
		store:    store,
		identity: providers.Identity,
		billing:  providers.Billing,
		contacts: providers.Contacts,
		verifier: verifier,
		runner:   runner,
		wsHub:    wsHub,
		applier: &webhook.Applier{
			Accounts:  providers.Identity,
			Customers: providers.Billing,
			Quotas:    store,
			Contacts:  providers.Contacts,
			Events:    wsHub,
		},
		profiles: &webhook.ProfileSync{
			Users:    providers.Identity,
			Billing:  providers.Billing,
			Contacts: providers.Contacts,
			Local:    store,
		},
		now:           time.Now,
		lookupTimeout: bookingLookupTimeout,
	}
}
