package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrMissingData      = errors.New("webhook payload has no data")
	ErrMissingEventType = errors.New("webhook payload has no event type")
	ErrMissingEntityID  = errors.New("webhook payload data has no id")
)

type LineItem struct {
	ProductID string `json:"product_id"`
	PriceID   string `json:"price_id"`
	Quantity  int    `json:"quantity"`
}

type SubscriptionData struct {
	ID              string
	Status          string
	CustomerID      string
	CollectionMode  string
	ScheduledChange json.RawMessage
	Items           []LineItem
}

type TransactionData struct {
	ID             string
	Status         string
	CustomerID     string
	SubscriptionID string
	CollectionMode string
	Items          []LineItem
}

// PaddleEvent is a billing webhook normalized at the boundary. At most one of
// Subscription and Transaction is set, chosen by the event type prefix.
type PaddleEvent struct {
	ID           string
	Type         string
	OccurredAt   time.Time
	Subscription *SubscriptionData
	Transaction  *TransactionData
}

type rawPaddleEvent struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt string          `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

type rawItem struct {
	Quantity int `json:"quantity"`
	Price    struct {
		ID        string `json:"id"`
		ProductID string `json:"product_id"`
	} `json:"price"`
	Product struct {
		ID string `json:"id"`
	} `json:"product"`
}

type rawEntity struct {
	ID              string          `json:"id"`
	Status          string          `json:"status"`
	CustomerID      string          `json:"customer_id"`
	SubscriptionID  string          `json:"subscription_id"`
	CollectionMode  string          `json:"collection_mode"`
	ScheduledChange json.RawMessage `json:"scheduled_change"`
	Items           []rawItem       `json:"items"`
}

func (e rawEntity) lineItems() []LineItem {
	items := make([]LineItem, 0, len(e.Items))
	for _, it := range e.Items {
		productID := it.Price.ProductID
		if productID == "" {
			productID = it.Product.ID
		}
		items = append(items, LineItem{
			ProductID: productID,
			PriceID:   it.Price.ID,
			Quantity:  it.Quantity,
		})
	}
	return items
}

// ExtractPaddleEvent decodes a billing webhook body.
func ExtractPaddleEvent(raw []byte) (PaddleEvent, error) {
	var env rawPaddleEvent
	if err := json.Unmarshal(raw, &env); err != nil {
		return PaddleEvent{}, fmt.Errorf("decode billing event: %w", err)
	}
	if env.EventType == "" {
		return PaddleEvent{}, ErrMissingEventType
	}
	if isJSONNull(env.Data) {
		return PaddleEvent{}, ErrMissingData
	}
	occurredAt, err := time.Parse(time.RFC3339Nano, env.OccurredAt)
	if err != nil {
		return PaddleEvent{}, fmt.Errorf("parse occurred_at %q: %w", env.OccurredAt, err)
	}

	event := PaddleEvent{
		ID:         env.EventID,
		Type:       env.EventType,
		OccurredAt: occurredAt,
	}

	switch {
	case strings.HasPrefix(env.EventType, "subscription."):
		var data rawEntity
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return PaddleEvent{}, fmt.Errorf("decode subscription data: %w", err)
		}
		if data.ID == "" {
			return PaddleEvent{}, fmt.Errorf("subscription event: %w", ErrMissingEntityID)
		}
		var scheduled json.RawMessage
		if !isJSONNull(data.ScheduledChange) {
			scheduled = data.ScheduledChange
		}
		event.Subscription = &SubscriptionData{
			ID:              data.ID,
			Status:          data.Status,
			CustomerID:      data.CustomerID,
			CollectionMode:  data.CollectionMode,
			ScheduledChange: scheduled,
			Items:           data.lineItems(),
		}
	case strings.HasPrefix(env.EventType, "transaction."):
		var data rawEntity
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return PaddleEvent{}, fmt.Errorf("decode transaction data: %w", err)
		}
		if data.ID == "" {
			return PaddleEvent{}, fmt.Errorf("transaction event: %w", ErrMissingEntityID)
		}
		event.Transaction = &TransactionData{
			ID:             data.ID,
			Status:         data.Status,
			CustomerID:     data.CustomerID,
			SubscriptionID: data.SubscriptionID,
			CollectionMode: data.CollectionMode,
			Items:          data.lineItems(),
		}
	}

	return event, nil
}

// KeycloakEvent is an identity provider event as delivered by the realm's
// HTTP event listener.
type KeycloakEvent struct {
	Type     string            `json:"type"`
	UserID   string            `json:"userId"`
	RealmID  string            `json:"realmId"`
	Time     int64             `json:"time"`
	Details  map[string]string `json:"details"`
	ClientID string            `json:"clientId,omitempty"`
}

func ExtractKeycloakEvent(raw []byte) (KeycloakEvent, error) {
	var event KeycloakEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return KeycloakEvent{}, fmt.Errorf("decode identity event: %w", err)
	}
	if event.Type == "" {
		return KeycloakEvent{}, ErrMissingEventType
	}
	return event, nil
}

func isJSONNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
