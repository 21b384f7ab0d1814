package api

import (
	"context"
	"fmt"
	"meet-backend/internal/crm"
	"meet-backend/internal/keycloak"
	"meet-backend/internal/paddle"
	"strings"
	"sync"
)

type fakeIdentity struct {
	mu        sync.Mutex
	users     map[string]*keycloak.User
	deleted   []string
	deleteErr error
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{users: map[string]*keycloak.User{}}
}

func copyUser(u *keycloak.User) *keycloak.User {
	c := *u
	c.Attributes = map[string][]string{}
	for k, v := range u.Attributes {
		c.Attributes[k] = append([]string(nil), v...)
	}
	return &c
}

func (f *fakeIdentity) add(u *keycloak.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = copyUser(u)
}

func (f *fakeIdentity) get(id string) *keycloak.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil
	}
	return copyUser(u)
}

func (f *fakeIdentity) GetUser(_ context.Context, id string) (*keycloak.User, error) {
	if u := f.get(id); u != nil {
		return u, nil
	}
	return nil, keycloak.ErrUserNotFound
}

func (f *fakeIdentity) FindUserByEmail(_ context.Context, email string) (*keycloak.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			return copyUser(u), nil
		}
	}
	return nil, keycloak.ErrUserNotFound
}

func (f *fakeIdentity) FindUserByAttribute(_ context.Context, name, value string) (*keycloak.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Attribute(name) == value {
			return copyUser(u), nil
		}
	}
	return nil, keycloak.ErrUserNotFound
}

func (f *fakeIdentity) UpdateUser(_ context.Context, user *keycloak.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[user.ID]; !ok {
		return keycloak.ErrUserNotFound
	}
	f.users[user.ID] = copyUser(user)
	return nil
}

func (f *fakeIdentity) DeleteUser(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.users, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeBilling struct {
	mu            sync.Mutex
	customers     map[string]*paddle.Customer
	subscriptions map[string][]paddle.Subscription
	canceled      []string
	nextID        int
}

func newFakeBilling() *fakeBilling {
	return &fakeBilling{
		customers:     map[string]*paddle.Customer{},
		subscriptions: map[string][]paddle.Subscription{},
	}
}

func (f *fakeBilling) add(c *paddle.Customer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cc := *c
	f.customers[c.ID] = &cc
}

func (f *fakeBilling) customer(id string) paddle.Customer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.customers[id]
}

func (f *fakeBilling) GetCustomer(_ context.Context, id string) (*paddle.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.customers[id]
	if !ok {
		return nil, paddle.ErrCustomerNotFound
	}
	cc := *c
	return &cc, nil
}

func (f *fakeBilling) FindCustomerByEmail(_ context.Context, email string) (*paddle.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.customers {
		if strings.EqualFold(c.Email, email) {
			cc := *c
			return &cc, nil
		}
	}
	return nil, paddle.ErrCustomerNotFound
}

func (f *fakeBilling) CreateCustomer(ctx context.Context, email, name string) (*paddle.Customer, error) {
	if c, err := f.FindCustomerByEmail(ctx, email); err == nil {
		return c, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	c := &paddle.Customer{ID: fmt.Sprintf("ctm_new_%d", f.nextID), Email: email, Name: name}
	f.customers[c.ID] = c
	cc := *c
	return &cc, nil
}

func (f *fakeBilling) UpdateCustomer(_ context.Context, id, email, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.customers[id]
	if !ok {
		return paddle.ErrCustomerNotFound
	}
	c.Email = email
	c.Name = name
	return nil
}

func (f *fakeBilling) ListActiveSubscriptions(_ context.Context, customerID string) ([]paddle.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]paddle.Subscription(nil), f.subscriptions[customerID]...), nil
}

func (f *fakeBilling) CancelSubscription(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, id)
	return nil
}

func (f *fakeBilling) CreatePortalSession(_ context.Context, customerID string, subscriptionIDs []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.customers[customerID]; !ok {
		return "", paddle.ErrCustomerNotFound
	}
	return "https://portal.example.com/" + customerID + "?subs=" + strings.Join(subscriptionIDs, ","), nil
}

type fakeContacts struct {
	mu        sync.Mutex
	contacts  map[string]map[string]any
	deleteErr error
}

func newFakeContacts() *fakeContacts {
	return &fakeContacts{contacts: map[string]map[string]any{}}
}

func (f *fakeContacts) has(email string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.contacts[email]
	return ok
}

func (f *fakeContacts) UpsertContact(_ context.Context, email string, attrs map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contacts[email] = attrs
	return nil
}

func (f *fakeContacts) UpdateContact(_ context.Context, email string, attrs map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.contacts[email]; !ok {
		return crm.ErrContactNotFound
	}
	f.contacts[email] = attrs
	return nil
}

func (f *fakeContacts) DeleteContact(_ context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.contacts[email]; !ok {
		return crm.ErrContactNotFound
	}
	delete(f.contacts, email)
	return nil
}
