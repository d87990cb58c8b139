package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"hausdesk/pkg/domain"
)

// MemoryStore keeps documents in-process. It backs tests and mirrors the
// GormStore contract, including insertion-order property listings (no
// server-side ordering) and next_due-ordered task listings.
type MemoryStore struct {
	mu         sync.RWMutex
	accounts   map[string]domain.Account
	email      map[string]string // email -> account ID
	profiles   map[string]domain.Profile
	properties map[string]domain.Property
	order      []string // property insertion order
	tasks      map[string]map[string]domain.Task // propertyID -> taskID -> task

	// FailDeletes forces DeleteProperty to fail before any state change,
	// letting tests assert the all-or-nothing contract.
	FailDeletes error
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:   make(map[string]domain.Account),
		email:      make(map[string]string),
		profiles:   make(map[string]domain.Profile),
		properties: make(map[string]domain.Property),
		tasks:      make(map[string]map[string]domain.Task),
	}
}

// SaveAccount registers or updates an account.
func (m *MemoryStore) SaveAccount(_ context.Context, a domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.accounts[a.ID]; ok && prev.Email != a.Email {
		delete(m.email, prev.Email)
	}
	m.accounts[a.ID] = a
	m.email[a.Email] = a.ID
	return nil
}

// HasAccountEmail checks if email exists.
func (m *MemoryStore) HasAccountEmail(_ context.Context, email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.email[email]
	return ok, nil
}

// GetAccountByEmail looks up an account by email.
func (m *MemoryStore) GetAccountByEmail(_ context.Context, email string) (domain.Account, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.email[email]
	if !ok {
		return domain.Account{}, false, nil
	}
	a, ok := m.accounts[id]
	return a, ok, nil
}

// GetAccountByID returns an account by ID.
func (m *MemoryStore) GetAccountByID(_ context.Context, id string) (domain.Account, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[id]
	return a, ok, nil
}

// SaveProfile writes the profile document for an owner.
func (m *MemoryStore) SaveProfile(_ context.Context, p domain.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.OwnerID] = p
	return nil
}

// GetProfile returns the profile document keyed by owner ID.
func (m *MemoryStore) GetProfile(_ context.Context, ownerID string) (domain.Profile, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[ownerID]
	return p, ok, nil
}

// UpdateProfile merges the supplied fields into the profile document.
func (m *MemoryStore) UpdateProfile(_ context.Context, ownerID string, upd ProfileUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[ownerID]
	if !ok {
		return NewStoreError(KindNotFound, errProfileNotFound)
	}
	if upd.DisplayName != nil {
		p.DisplayName = *upd.DisplayName
	}
	if upd.CompanyName != nil {
		p.CompanyName = *upd.CompanyName
	}
	if upd.Email != nil {
		p.Email = *upd.Email
	}
	if upd.LogoURL != nil {
		p.LogoURL = *upd.LogoURL
	}
	p.UpdatedAt = time.Now().UTC()
	m.profiles[ownerID] = p
	return nil
}

// CreateProperty stores a new property and tracks insertion order.
func (m *MemoryStore) CreateProperty(_ context.Context, p domain.Property) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.properties[p.ID]; !exists {
		m.order = append(m.order, p.ID)
	}
	m.properties[p.ID] = p
	return nil
}

// GetProperty retrieves one property.
func (m *MemoryStore) GetProperty(_ context.Context, id string) (domain.Property, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.properties[id]
	return p, ok, nil
}

// UpdateProperty merges the supplied fields and refreshes UpdatedAt.
func (m *MemoryStore) UpdateProperty(_ context.Context, id string, upd PropertyUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.properties[id]
	if !ok {
		return NewStoreError(KindNotFound, errPropertyNotFound)
	}
	if upd.Name != nil {
		p.Name = *upd.Name
	}
	if upd.Address != nil {
		p.Address = *upd.Address
	}
	if upd.WasteScheduleURL != nil {
		p.WasteScheduleURL = *upd.WasteScheduleURL
	}
	p.UpdatedAt = time.Now().UTC()
	m.properties[id] = p
	return nil
}

// DeleteProperty removes the property and all of its tasks together, or
// nothing at all.
func (m *MemoryStore) DeleteProperty(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDeletes != nil {
		return m.FailDeletes
	}
	delete(m.properties, id)
	delete(m.tasks, id)
	filtered := m.order[:0]
	for _, item := range m.order {
		if item != id {
			filtered = append(filtered, item)
		}
	}
	m.order = filtered
	return nil
}

// ListPropertiesByOwner returns properties in insertion order; sorting is
// the gateway's job.
func (m *MemoryStore) ListPropertiesByOwner(_ context.Context, ownerID string) ([]domain.Property, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Property, 0, len(m.order))
	for _, id := range m.order {
		if p, ok := m.properties[id]; ok && p.OwnerID == ownerID {
			res = append(res, p)
		}
	}
	return res, nil
}

// AddTask stores a new task under its property.
func (m *MemoryStore) AddTask(_ context.Context, t domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID, ok := m.tasks[t.PropertyID]
	if !ok {
		byID = make(map[string]domain.Task)
		m.tasks[t.PropertyID] = byID
	}
	byID[t.ID] = t
	return nil
}

// GetTask retrieves one task scoped to its property.
func (m *MemoryStore) GetTask(_ context.Context, propertyID, taskID string) (domain.Task, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[propertyID][taskID]
	return t, ok, nil
}

// UpdateTask merges the supplied fields with the same contract as GormStore.
func (m *MemoryStore) UpdateTask(_ context.Context, propertyID, taskID string, upd TaskUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[propertyID][taskID]
	if !ok {
		return NewStoreError(KindNotFound, errTaskNotFound)
	}
	if upd.Title != nil {
		t.Title = *upd.Title
	}
	if upd.Interval != nil {
		t.Interval = *upd.Interval
	}
	if upd.NextDue != nil {
		t.NextDue = upd.NextDue.UTC()
	}
	if upd.Completed != nil {
		t.Completed = *upd.Completed
	}
	if upd.ClearLastCompleted {
		t.LastCompleted = nil
	} else if upd.LastCompleted != nil {
		ts := upd.LastCompleted.UTC()
		t.LastCompleted = &ts
	}
	t.UpdatedAt = time.Now().UTC()
	m.tasks[propertyID][taskID] = t
	return nil
}

// DeleteTask removes one task; no cascade.
func (m *MemoryStore) DeleteTask(_ context.Context, propertyID, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks[propertyID], taskID)
	return nil
}

// ListTasksByProperty returns tasks ordered by ascending NextDue.
func (m *MemoryStore) ListTasksByProperty(_ context.Context, propertyID string) ([]domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Task, 0, len(m.tasks[propertyID]))
	for _, t := range m.tasks[propertyID] {
		res = append(res, t)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].NextDue.Before(res[j].NextDue) })
	return res, nil
}
