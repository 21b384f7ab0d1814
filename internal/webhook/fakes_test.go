package webhook

import (
	"context"
	"errors"
	"meet-backend/internal/crm"
	"meet-backend/internal/keycloak"
	"meet-backend/internal/paddle"
	"strings"
	"sync"
)

func cloneUser(u *keycloak.User) *keycloak.User {
	c := *u
	c.Attributes = map[string][]string{}
	for k, v := range u.Attributes {
		c.Attributes[k] = append([]string(nil), v...)
	}
	return &c
}

type fakeAccounts struct {
	mu      sync.Mutex
	users   map[string]*keycloak.User
	updates int
	findErr error
}

func newFakeAccounts(users ...*keycloak.User) *fakeAccounts {
	f := &fakeAccounts{users: map[string]*keycloak.User{}}
	for _, u := range users {
		f.users[u.ID] = cloneUser(u)
	}
	return f
}

func (f *fakeAccounts) FindUserByAttribute(_ context.Context, name, value string) (*keycloak.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, u := range f.users {
		if u.Attribute(name) == value {
			return cloneUser(u), nil
		}
	}
	return nil, keycloak.ErrUserNotFound
}

func (f *fakeAccounts) FindUserByEmail(_ context.Context, email string) (*keycloak.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			return cloneUser(u), nil
		}
	}
	return nil, keycloak.ErrUserNotFound
}

func (f *fakeAccounts) GetUser(_ context.Context, id string) (*keycloak.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, keycloak.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (f *fakeAccounts) UpdateUser(_ context.Context, user *keycloak.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	f.users[user.ID] = cloneUser(user)
	return nil
}

func (f *fakeAccounts) get(id string) *keycloak.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneUser(f.users[id])
}

type fakeCustomers struct {
	customers map[string]*paddle.Customer
	updated   map[string]string
	updateErr error
	mu        sync.Mutex
}

func (f *fakeCustomers) GetCustomer(_ context.Context, id string) (*paddle.Customer, error) {
	c, ok := f.customers[id]
	if !ok {
		return nil, paddle.ErrCustomerNotFound
	}
	return c, nil
}

func (f *fakeCustomers) UpdateCustomer(_ context.Context, id, email, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	if f.updated == nil {
		f.updated = map[string]string{}
	}
	f.updated[id] = email + "|" + name
	return nil
}

type fakeQuotas struct {
	mu     sync.Mutex
	quotas map[string]int
	err    error
}

func (f *fakeQuotas) SetMaxBookings(_ context.Context, email string, n int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if f.quotas == nil {
		f.quotas = map[string]int{}
	}
	f.quotas[email] = n
	return true, nil
}

type fakeContacts struct {
	mu        sync.Mutex
	contacts  map[string]map[string]any
	updateErr error
}

func (f *fakeContacts) UpsertContact(_ context.Context, email string, attrs map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.contacts == nil {
		f.contacts = map[string]map[string]any{}
	}
	f.contacts[email] = attrs
	return nil
}

func (f *fakeContacts) UpdateContact(_ context.Context, email string, attrs map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.contacts[email]; !ok {
		return crm.ErrContactNotFound
	}
	delete(f.contacts, email)
	if e, ok := attrs["EMAIL"].(string); ok && e != "" {
		email = e
	}
	f.contacts[email] = attrs
	return nil
}

type fakeLocal struct {
	renamed map[string]string
	deleted []string
}

func (f *fakeLocal) UpdateUserEmail(_ context.Context, oldEmail, newEmail string) (bool, error) {
	if f.renamed == nil {
		f.renamed = map[string]string{}
	}
	f.renamed[oldEmail] = newEmail
	return true, nil
}

func (f *fakeLocal) DeleteUserByEmail(_ context.Context, email string) (bool, error) {
	f.deleted = append(f.deleted, email)
	return true, nil
}

type published struct {
	email, eventType string
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
}

func (f *fakePublisher) Publish(email, eventType string, _ any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, published{email, eventType})
}

var errUpstream = errors.New("upstream unavailable")
