package webhook

import (
	"context"
	"meet-backend/internal/keycloak"
	"meet-backend/internal/paddle"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var (
	t1 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 = t1.Add(time.Minute)
)

func subscription(status string, quantity int) SubscriptionData {
	return SubscriptionData{
		ID:             "sub_01",
		Status:         status,
		CustomerID:     "ctm_01",
		CollectionMode: "automatic",
		Items:          []LineItem{{ProductID: "pro_01", PriceID: "pri_01", Quantity: quantity}},
	}
}

func newApplier(accounts *fakeAccounts) (*Applier, *fakeQuotas, *fakePublisher) {
	quotas := &fakeQuotas{}
	events := &fakePublisher{}
	return &Applier{
		Accounts: accounts,
		Customers: &fakeCustomers{customers: map[string]*paddle.Customer{
			"ctm_01": {ID: "ctm_01", Email: "owner@example.com"},
		}},
		Quotas: quotas,
		Events: events,
	}, quotas, events
}

func TestApplySubscription_FallsBackToCustomerEmail(t *testing.T) {
	accounts := newFakeAccounts(&keycloak.User{ID: "u1", Email: "owner@example.com"})
	applier, quotas, events := newApplier(accounts)

	res, err := applier.ApplySubscription(context.Background(), subscription("active", 3), t1)
	require.NoError(t, err)
	require.Equal(t, ApplyUpdated, res)

	u := accounts.get("u1")
	require.Equal(t, "sub_01", u.Attribute(AttrSubscriptionID))
	require.Equal(t, "active", u.Attribute(AttrSubscriptionStatus))
	require.Equal(t, "automatic", u.Attribute(AttrCollectionMode))
	require.Equal(t, "ctm_01", u.Attribute(AttrCustomerID))
	require.Equal(t, []string{"pro_01"}, u.Attributes[AttrProductIDs])
	require.Equal(t, []string{"pri_01"}, u.Attributes[AttrPriceIDs])
	require.Equal(t, []string{"3"}, u.Attributes[AttrQuantities])
	require.Equal(t, t1.Format(time.RFC3339Nano), u.Attribute(AttrLastUpdate))

	require.Equal(t, 3, quotas.quotas["owner@example.com"])
	require.Equal(t, []published{{"owner@example.com", EventSubscriptionUpdated}}, events.events)
}

func TestApplySubscription_NoUserIsNotAnError(t *testing.T) {
	applier, _, events := newApplier(newFakeAccounts())

	res, err := applier.ApplySubscription(context.Background(), subscription("active", 1), t1)
	require.NoError(t, err)
	require.Equal(t, ApplySkippedNoUser, res)
	require.Empty(t, events.events)

	sub := subscription("active", 1)
	sub.CustomerID = "ctm_unknown"
	res, err = applier.ApplySubscription(context.Background(), sub, t1)
	require.NoError(t, err)
	require.Equal(t, ApplySkippedNoUser, res)
}

func TestApplySubscription_OutOfOrderKeepsNewest(t *testing.T) {
	accounts := newFakeAccounts(&keycloak.User{ID: "u1", Email: "owner@example.com"})
	applier, quotas, _ := newApplier(accounts)
	ctx := context.Background()

	res, err := applier.ApplySubscription(ctx, subscription("paused", 5), t2)
	require.NoError(t, err)
	require.Equal(t, ApplyUpdated, res)

	res, err = applier.ApplySubscription(ctx, subscription("active", 2), t1)
	require.NoError(t, err)
	require.Equal(t, ApplySkippedStale, res)

	u := accounts.get("u1")
	require.Equal(t, "paused", u.Attribute(AttrSubscriptionStatus))
	require.Equal(t, []string{"5"}, u.Attributes[AttrQuantities])
	require.Equal(t, 0, quotas.quotas["owner@example.com"])
	require.Equal(t, 1, accounts.updates)
}

func TestApplySubscription_InOrderEndsAtNewest(t *testing.T) {
	accounts := newFakeAccounts(&keycloak.User{ID: "u1", Email: "owner@example.com"})
	applier, _, _ := newApplier(accounts)
	ctx := context.Background()

	_, err := applier.ApplySubscription(ctx, subscription("active", 2), t1)
	require.NoError(t, err)
	res, err := applier.ApplySubscription(ctx, subscription("canceled", 2), t2)
	require.NoError(t, err)
	require.Equal(t, ApplyUpdated, res)

	u := accounts.get("u1")
	require.Equal(t, "canceled", u.Attribute(AttrSubscriptionStatus))
	require.Equal(t, t2.Format(time.RFC3339Nano), u.Attribute(AttrLastUpdate))
}

func TestApplySubscription_DuplicateDeliveryIsNoop(t *testing.T) {
	accounts := newFakeAccounts(&keycloak.User{ID: "u1", Email: "owner@example.com"})
	applier, _, events := newApplier(accounts)
	ctx := context.Background()

	_, err := applier.ApplySubscription(ctx, subscription("active", 2), t1)
	require.NoError(t, err)
	res, err := applier.ApplySubscription(ctx, subscription("active", 2), t1)
	require.NoError(t, err)
	require.Equal(t, ApplySkippedStale, res)
	require.Equal(t, 1, accounts.updates)
	require.Len(t, events.events, 1)
}

func TestApplySubscription_QuotaFailureLeavesEventRetryable(t *testing.T) {
	accounts := newFakeAccounts(&keycloak.User{ID: "u1", Email: "owner@example.com"})
	applier, quotas, _ := newApplier(accounts)
	ctx := context.Background()

	quotas.err = errUpstream
	_, err := applier.ApplySubscription(ctx, subscription("active", 4), t1)
	require.ErrorIs(t, err, errUpstream)
	require.Empty(t, accounts.get("u1").Attribute(AttrLastUpdate))
	require.Zero(t, accounts.updates)

	quotas.err = nil
	res, err := applier.ApplySubscription(ctx, subscription("active", 4), t1)
	require.NoError(t, err)
	require.Equal(t, ApplyUpdated, res)
	require.Equal(t, 4, quotas.quotas["owner@example.com"])
	require.Equal(t, t1.Format(time.RFC3339Nano), accounts.get("u1").Attribute(AttrLastUpdate))
}

func TestApplySubscription_UnparsableStoredTimestampCountsAsAbsent(t *testing.T) {
	accounts := newFakeAccounts(&keycloak.User{
		ID:         "u1",
		Email:      "owner@example.com",
		Attributes: map[string][]string{AttrSubscriptionID: {"sub_01"}, AttrLastUpdate: {"garbage"}},
	})
	applier, _, _ := newApplier(accounts)

	res, err := applier.ApplySubscription(context.Background(), subscription("active", 1), t1)
	require.NoError(t, err)
	require.Equal(t, ApplyUpdated, res)
}

func TestApplySubscription_LookupFailureIsReturned(t *testing.T) {
	accounts := newFakeAccounts()
	accounts.findErr = errUpstream
	applier, _, _ := newApplier(accounts)

	_, err := applier.ApplySubscription(context.Background(), subscription("active", 1), t1)
	require.ErrorIs(t, err, errUpstream)
}

func TestApply_DispatchesOnVariant(t *testing.T) {
	contacts := &fakeContacts{contacts: map[string]map[string]any{"owner@example.com": {}}}
	applier, _, _ := newApplier(newFakeAccounts())
	applier.Contacts = contacts
	ctx := context.Background()

	res, err := applier.Apply(ctx, PaddleEvent{Type: "customer.updated", OccurredAt: t1})
	require.NoError(t, err)
	require.Equal(t, ApplyIgnored, res)

	res, err = applier.Apply(ctx, PaddleEvent{
		Type:       "transaction.completed",
		OccurredAt: t1,
		Transaction: &TransactionData{
			ID: "txn_01", Status: "completed", CustomerID: "ctm_01", SubscriptionID: "sub_01",
		},
	})
	require.NoError(t, err)
	require.Equal(t, ApplyUpdated, res)
	require.Equal(t, "completed", contacts.contacts["owner@example.com"]["PLAN_STATUS"])

	res, err = applier.Apply(ctx, PaddleEvent{
		Type:        "transaction.created",
		OccurredAt:  t1,
		Transaction: &TransactionData{ID: "txn_02", CustomerID: "ctm_01"},
	})
	require.NoError(t, err)
	require.Equal(t, ApplyIgnored, res)
}
