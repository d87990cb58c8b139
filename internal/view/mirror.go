package view

import (
	"context"
	"sync"

	"hausdesk/pkg/domain"
	"hausdesk/pkg/store"
)

// Mirror holds one session's read-through cache of the remote store: the
// property list plus the selected property's tasks. It is fed exclusively
// by store subscriptions — mutations go through the gateway and only become
// visible here once the subscription echoes them back.
type Mirror struct {
	gateway *store.Gateway
	session domain.Session
	ctx     context.Context
	cancel  context.CancelFunc

	mu         sync.RWMutex
	ready      bool
	properties []domain.Property
	selected   string
	tasks      []domain.Task

	changes     chan struct{}
	cancelTasks func()
	wg          sync.WaitGroup
}

// NewMirror starts the property-list subscription for the session. Close
// must be called on teardown.
func NewMirror(ctx context.Context, gateway *store.Gateway, session domain.Session) *Mirror {
	ctx, cancel := context.WithCancel(ctx)
	m := &Mirror{
		gateway: gateway,
		session: session,
		ctx:     ctx,
		cancel:  cancel,
		changes: make(chan struct{}, 1),
	}
	snapshots, stop := gateway.WatchProperties(ctx, session.ID)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer stop()
		for snapshot := range snapshots {
			m.mu.Lock()
			m.properties = snapshot
			m.ready = true
			m.mu.Unlock()
			m.notify()
		}
	}()
	return m
}

// Changes ticks whenever the mirrored state moved; consecutive updates
// coalesce into one pending tick. Read the state via Properties.
func (m *Mirror) Changes() <-chan struct{} { return m.changes }

func (m *Mirror) notify() {
	select {
	case m.changes <- struct{}{}:
	default:
	}
}

// Ready reports whether the first property snapshot has arrived. Before
// that, "no properties" and "not loaded yet" are different states.
func (m *Mirror) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ready
}

// Properties returns the current snapshot with the selected property's
// tasks spliced in.
func (m *Mirror) Properties() []domain.Property {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Property, len(m.properties))
	copy(out, m.properties)
	for i := range out {
		if out[i].ID == m.selected {
			tasks := make([]domain.Task, len(m.tasks))
			copy(tasks, m.tasks)
			out[i].Tasks = tasks
		}
	}
	return out
}

// Selected returns the selected property ID and its current task snapshot.
func (m *Mirror) Selected() (string, []domain.Task) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tasks := make([]domain.Task, len(m.tasks))
	copy(tasks, m.tasks)
	return m.selected, tasks
}

// Select switches the task subscription to another property. The previous
// subscription is torn down before the new one starts, so exactly one task
// stream is ever live and no stale property's updates reach this mirror.
// Selecting "" just clears the subscription.
func (m *Mirror) Select(propertyID string) {
	m.mu.Lock()
	if m.selected == propertyID {
		m.mu.Unlock()
		return
	}
	if m.cancelTasks != nil {
		m.cancelTasks()
		m.cancelTasks = nil
	}
	m.selected = propertyID
	m.tasks = nil
	if propertyID == "" {
		m.mu.Unlock()
		m.notify()
		return
	}
	snapshots, stop := m.gateway.WatchTasks(m.ctx, propertyID)
	m.cancelTasks = stop
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for snapshot := range snapshots {
			m.mu.Lock()
			stillSelected := m.selected == propertyID
			if stillSelected {
				m.tasks = snapshot
			}
			m.mu.Unlock()
			if stillSelected {
				m.notify()
			}
		}
	}()
}

// Close tears down every live subscription.
func (m *Mirror) Close() {
	m.mu.Lock()
	if m.cancelTasks != nil {
		m.cancelTasks()
		m.cancelTasks = nil
	}
	m.mu.Unlock()
	m.cancel()
	m.wg.Wait()
}

// AddProperty creates a property owned by this mirror's session.
func (m *Mirror) AddProperty(ctx context.Context, name, address string) (string, error) {
	return m.gateway.CreateProperty(ctx, m.session.ID, name, address)
}

// DeleteProperty removes a property and its tasks.
func (m *Mirror) DeleteProperty(ctx context.Context, propertyID string) error {
	return m.gateway.DeleteProperty(ctx, propertyID)
}

// AddTask creates a task under a property.
func (m *Mirror) AddTask(ctx context.Context, propertyID string, nt store.NewTask) (string, error) {
	return m.gateway.AddTask(ctx, propertyID, nt)
}

// UpdateTask applies a partial task update.
func (m *Mirror) UpdateTask(ctx context.Context, propertyID, taskID string, upd store.TaskUpdate) error {
	return m.gateway.UpdateTask(ctx, propertyID, taskID, upd)
}

// DeleteTask removes one task.
func (m *Mirror) DeleteTask(ctx context.Context, propertyID, taskID string) error {
	return m.gateway.DeleteTask(ctx, propertyID, taskID)
}
