package webhook

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"meet-backend/internal/keycloak"
	"meet-backend/internal/logger"
	"meet-backend/internal/paddle"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Identity attributes holding the billing linkage of an account.
const (
	AttrSubscriptionID     = "paddle_subscription_id"
	AttrSubscriptionStatus = "paddle_subscription_status"
	AttrCollectionMode     = "paddle_collection_mode"
	AttrCustomerID         = "paddle_customer_id"
	AttrScheduledChange    = "paddle_scheduled_change"
	AttrProductIDs         = "paddle_product_ids"
	AttrPriceIDs           = "paddle_price_ids"
	AttrQuantities         = "paddle_quantities"
	AttrLastUpdate         = "paddle_last_update"
)

// EventSubscriptionUpdated is published to the account events stream after a
// subscription change was applied.
const EventSubscriptionUpdated = "subscription.updated"

type ApplyResult int

const (
	ApplyUpdated ApplyResult = iota
	ApplySkippedNoUser
	ApplySkippedStale
	ApplyIgnored
)

func (r ApplyResult) String() string {
	switch r {
	case ApplyUpdated:
		return "updated"
	case ApplySkippedNoUser:
		return "no_user"
	case ApplySkippedStale:
		return "stale"
	case ApplyIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

type AccountStore interface {
	FindUserByAttribute(ctx context.Context, name, value string) (*keycloak.User, error)
	FindUserByEmail(ctx context.Context, email string) (*keycloak.User, error)
	UpdateUser(ctx context.Context, user *keycloak.User) error
}

type CustomerLookup interface {
	GetCustomer(ctx context.Context, id string) (*paddle.Customer, error)
}

type QuotaStore interface {
	SetMaxBookings(ctx context.Context, email string, maxBookings int) (bool, error)
}

type ContactUpdater interface {
	UpdateContact(ctx context.Context, email string, attrs map[string]any) error
}

type Publisher interface {
	Publish(email, eventType string, payload any)
}

// Applier applies billing events to the identity record that owns the
// subscription. Updates are last-write-wins on the event's occurred_at, so
// redelivered and out-of-order events are harmless.
type Applier struct {
	Accounts  AccountStore
	Customers CustomerLookup
	Quotas    QuotaStore
	Contacts  ContactUpdater
	Events    Publisher

	// The stored timestamp is read and written in separate calls, so
	// deliveries for one subscription are serialized within this process.
	stripes [32]sync.Mutex
}

func (a *Applier) lock(subscriptionID string) func() {
	h := fnv.New32a()
	h.Write([]byte(subscriptionID))
	mu := &a.stripes[h.Sum32()%uint32(len(a.stripes))]
	mu.Lock()
	return mu.Unlock
}

func (a *Applier) Apply(ctx context.Context, event PaddleEvent) (ApplyResult, error) {
	switch {
	case event.Subscription != nil:
		return a.ApplySubscription(ctx, *event.Subscription, event.OccurredAt)
	case event.Transaction != nil:
		return a.ApplyTransaction(ctx, event.Type, *event.Transaction)
	default:
		logger.Info(ctx, "billing event ignored", zap.String("event_type", event.Type))
		return ApplyIgnored, nil
	}
}

func (a *Applier) findAccount(ctx context.Context, sub SubscriptionData) (*keycloak.User, error) {
	user, err := a.Accounts.FindUserByAttribute(ctx, AttrSubscriptionID, sub.ID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, keycloak.ErrUserNotFound) {
		return nil, fmt.Errorf("find account by subscription %s: %w", sub.ID, err)
	}

	if sub.CustomerID == "" {
		return nil, nil
	}
	customer, err := a.Customers.GetCustomer(ctx, sub.CustomerID)
	if errors.Is(err, paddle.ErrCustomerNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get customer %s: %w", sub.CustomerID, err)
	}

	user, err = a.Accounts.FindUserByEmail(ctx, customer.Email)
	if errors.Is(err, keycloak.ErrUserNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find account by email: %w", err)
	}
	return user, nil
}

func (a *Applier) ApplySubscription(ctx context.Context, sub SubscriptionData, occurredAt time.Time) (ApplyResult, error) {
	defer a.lock(sub.ID)()

	user, err := a.findAccount(ctx, sub)
	if err != nil {
		return 0, err
	}
	if user == nil {
		logger.Info(ctx, "no account for subscription",
			zap.String("subscription_id", sub.ID),
			zap.String("customer_id", sub.CustomerID))
		return ApplySkippedNoUser, nil
	}

	if stored, err := time.Parse(time.RFC3339Nano, user.Attribute(AttrLastUpdate)); err == nil && !occurredAt.After(stored) {
		logger.Info(ctx, "stale subscription event skipped",
			zap.String("subscription_id", sub.ID),
			zap.Time("stored", stored),
			zap.Time("incoming", occurredAt))
		return ApplySkippedStale, nil
	}

	productIDs := make([]string, 0, len(sub.Items))
	priceIDs := make([]string, 0, len(sub.Items))
	quantities := make([]string, 0, len(sub.Items))
	total := 0
	for _, item := range sub.Items {
		productIDs = append(productIDs, item.ProductID)
		priceIDs = append(priceIDs, item.PriceID)
		quantities = append(quantities, strconv.Itoa(item.Quantity))
		total += item.Quantity
	}

	// The quota goes first: once the timestamp below is stored, a redelivery
	// of this event is skipped as stale.
	if a.Quotas != nil && user.Email != "" {
		quota := 0
		if sub.Status == "active" || sub.Status == "trialing" {
			quota = total
		}
		if _, err := a.Quotas.SetMaxBookings(ctx, user.Email, quota); err != nil {
			return 0, fmt.Errorf("sync booking quota: %w", err)
		}
	}

	user.SetAttribute(AttrSubscriptionID, sub.ID)
	user.SetAttribute(AttrSubscriptionStatus, sub.Status)
	user.SetAttribute(AttrCollectionMode, sub.CollectionMode)
	user.SetAttribute(AttrCustomerID, sub.CustomerID)
	user.SetAttribute(AttrScheduledChange, string(sub.ScheduledChange))
	user.Attributes[AttrProductIDs] = productIDs
	user.Attributes[AttrPriceIDs] = priceIDs
	user.Attributes[AttrQuantities] = quantities
	user.SetAttribute(AttrLastUpdate, occurredAt.UTC().Format(time.RFC3339Nano))

	if err := a.Accounts.UpdateUser(ctx, user); err != nil {
		return 0, fmt.Errorf("persist subscription %s: %w", sub.ID, err)
	}
	logger.Info(ctx, "subscription applied",
		zap.String("subscription_id", sub.ID),
		zap.String("status", sub.Status),
		zap.String("user_id", user.ID))

	if a.Events != nil && user.Email != "" {
		a.Events.Publish(user.Email, EventSubscriptionUpdated, map[string]string{
			"subscription_id": sub.ID,
			"status":          sub.Status,
		})
	}

	return ApplyUpdated, nil
}

// ApplyTransaction mirrors completed payments into the CRM contact. Other
// transaction events carry nothing this service stores.
func (a *Applier) ApplyTransaction(ctx context.Context, eventType string, txn TransactionData) (ApplyResult, error) {
	if eventType != "transaction.completed" || txn.CustomerID == "" || a.Contacts == nil {
		logger.Info(ctx, "transaction event ignored",
			zap.String("event_type", eventType),
			zap.String("transaction_id", txn.ID))
		return ApplyIgnored, nil
	}

	customer, err := a.Customers.GetCustomer(ctx, txn.CustomerID)
	if errors.Is(err, paddle.ErrCustomerNotFound) {
		return ApplySkippedNoUser, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get customer %s: %w", txn.CustomerID, err)
	}

	err = a.Contacts.UpdateContact(ctx, customer.Email, map[string]any{
		"PLAN_STATUS":     txn.Status,
		"SUBSCRIPTION_ID": txn.SubscriptionID,
	})
	if err != nil {
		return 0, fmt.Errorf("update contact for transaction %s: %w", txn.ID, err)
	}
	return ApplyUpdated, nil
}
