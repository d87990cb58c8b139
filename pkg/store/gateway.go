package store

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"hausdesk/pkg/domain"
)

// Gateway is the sole entry point for property and task persistence. It
// composes a Store with a Notifier: every successful write publishes a
// change event, and the watch methods turn those events into full-snapshot
// deliveries. No method retries on failure.
type Gateway struct {
	store    Store
	notifier Notifier
}

// NewGateway wires a store and a notifier.
func NewGateway(s Store, n Notifier) *Gateway {
	return &Gateway{store: s, notifier: n}
}

// Store exposes the underlying store for the auth layer's account and
// profile operations.
func (g *Gateway) Store() Store { return g.store }

// Notifier exposes the change publisher for writes made outside this
// gateway (profile-driven property updates and the like).
func (g *Gateway) Notifier() Notifier { return g.notifier }

// CreateProperty creates a property with an empty task list and
// server-assigned ID and timestamps.
func (g *Gateway) CreateProperty(ctx context.Context, ownerID, name, address string) (string, error) {
	if ownerID == "" {
		return "", ErrOwnerRequired
	}
	now := time.Now().UTC()
	p := domain.Property{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Name:      name,
		Address:   address,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := g.store.CreateProperty(ctx, p); err != nil {
		return "", err
	}
	g.notifier.PropertiesChanged(ctx, ownerID)
	return p.ID, nil
}

// GetProperty retrieves one property.
func (g *Gateway) GetProperty(ctx context.Context, id string) (domain.Property, bool, error) {
	return g.store.GetProperty(ctx, id)
}

// UpdateProperty merges the supplied fields; omitted fields keep their
// stored values.
func (g *Gateway) UpdateProperty(ctx context.Context, id string, upd PropertyUpdate) error {
	p, ok, err := g.store.GetProperty(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return NewStoreError(KindNotFound, errPropertyNotFound)
	}
	if err := g.store.UpdateProperty(ctx, id, upd); err != nil {
		return err
	}
	g.notifier.PropertiesChanged(ctx, p.OwnerID)
	return nil
}

// DeleteProperty removes the property and all child tasks atomically.
func (g *Gateway) DeleteProperty(ctx context.Context, id string) error {
	p, ok, err := g.store.GetProperty(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return NewStoreError(KindNotFound, errPropertyNotFound)
	}
	if err := g.store.DeleteProperty(ctx, id); err != nil {
		return err
	}
	g.notifier.PropertiesChanged(ctx, p.OwnerID)
	g.notifier.TasksChanged(ctx, id)
	return nil
}

// ListProperties returns the owner's properties sorted by descending
// creation time. The backend query is unordered; sorting here keeps the
// store free of a composite owner+created_at index.
func (g *Gateway) ListProperties(ctx context.Context, ownerID string) ([]domain.Property, error) {
	props, err := g.store.ListPropertiesByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	sort.Slice(props, func(i, j int) bool {
		return props[i].CreatedAt.After(props[j].CreatedAt)
	})
	// Task lists live on their own subscription; snapshots carry an empty
	// slice so every store serializes "tasks": [] identically.
	for i := range props {
		if props[i].Tasks == nil {
			props[i].Tasks = []domain.Task{}
		}
	}
	return props, nil
}

// AddTask creates a task under a property. Completed starts false and
// LastCompleted absent regardless of input.
func (g *Gateway) AddTask(ctx context.Context, propertyID string, nt NewTask) (string, error) {
	if _, err := domain.ParseInterval(string(nt.Interval)); err != nil {
		return "", err
	}
	now := time.Now().UTC()
	t := domain.Task{
		ID:         uuid.NewString(),
		PropertyID: propertyID,
		Title:      nt.Title,
		Interval:   nt.Interval,
		NextDue:    nt.NextDue.UTC(),
		Completed:  false,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := g.store.AddTask(ctx, t); err != nil {
		return "", err
	}
	g.notifier.TasksChanged(ctx, propertyID)
	return t.ID, nil
}

// GetTask retrieves one task scoped to its property.
func (g *Gateway) GetTask(ctx context.Context, propertyID, taskID string) (domain.Task, bool, error) {
	return g.store.GetTask(ctx, propertyID, taskID)
}

// UpdateTask merges the supplied fields; partial-update semantics match
// UpdateProperty.
func (g *Gateway) UpdateTask(ctx context.Context, propertyID, taskID string, upd TaskUpdate) error {
	if upd.Interval != nil {
		if _, err := domain.ParseInterval(string(*upd.Interval)); err != nil {
			return err
		}
	}
	if err := g.store.UpdateTask(ctx, propertyID, taskID, upd); err != nil {
		return err
	}
	g.notifier.TasksChanged(ctx, propertyID)
	return nil
}

// DeleteTask removes one task; no cascade.
func (g *Gateway) DeleteTask(ctx context.Context, propertyID, taskID string) error {
	if err := g.store.DeleteTask(ctx, propertyID, taskID); err != nil {
		return err
	}
	g.notifier.TasksChanged(ctx, propertyID)
	return nil
}

// ListTasks returns a property's tasks ordered by ascending next-due date.
func (g *Gateway) ListTasks(ctx context.Context, propertyID string) ([]domain.Task, error) {
	return g.store.ListTasksByProperty(ctx, propertyID)
}

// WatchProperties streams full snapshots of the owner's property list,
// sorted by descending creation time. The first snapshot is delivered
// without waiting for a change. The returned cancel must be called on
// teardown; the channel closes once the subscription ends.
func (g *Gateway) WatchProperties(ctx context.Context, ownerID string) (<-chan []domain.Property, func()) {
	ctx, cancel := context.WithCancel(ctx)
	events, stop := g.notifier.Subscribe(ctx, PropertiesTopic(ownerID))
	out := make(chan []domain.Property, 1)
	go func() {
		defer close(out)
		defer stop()
		g.pushProperties(ctx, ownerID, out)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-events:
				if !ok {
					return
				}
				g.pushProperties(ctx, ownerID, out)
			}
		}
	}()
	return out, cancel
}

// WatchTasks streams full snapshots of one property's tasks in ascending
// next-due order. Same delivery contract as WatchProperties.
func (g *Gateway) WatchTasks(ctx context.Context, propertyID string) (<-chan []domain.Task, func()) {
	ctx, cancel := context.WithCancel(ctx)
	events, stop := g.notifier.Subscribe(ctx, TasksTopic(propertyID))
	out := make(chan []domain.Task, 1)
	go func() {
		defer close(out)
		defer stop()
		g.pushTasks(ctx, propertyID, out)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-events:
				if !ok {
					return
				}
				g.pushTasks(ctx, propertyID, out)
			}
		}
	}()
	return out, cancel
}

func (g *Gateway) pushProperties(ctx context.Context, ownerID string, out chan []domain.Property) {
	props, err := g.ListProperties(ctx, ownerID)
	if err != nil {
		slog.Warn("property snapshot failed", "owner", ownerID, "err", err)
		return
	}
	deliver(ctx, out, props)
}

func (g *Gateway) pushTasks(ctx context.Context, propertyID string, out chan []domain.Task) {
	tasks, err := g.store.ListTasksByProperty(ctx, propertyID)
	if err != nil {
		slog.Warn("task snapshot failed", "property", propertyID, "err", err)
		return
	}
	deliver(ctx, out, tasks)
}

// deliver replaces any undrained snapshot with the latest one; consumers
// only ever need the current result set.
func deliver[T any](ctx context.Context, out chan []T, snapshot []T) {
	select {
	case <-out:
	default:
	}
	select {
	case out <- snapshot:
	case <-ctx.Done():
	}
}
