package store

import (
	"context"
	"time"

	"hausdesk/pkg/domain"
)

// Store defines persistence operations for accounts, profiles, properties,
// and tasks. The gateway in this package is the only caller; everything else
// goes through it.
type Store interface {
	// accounts
	SaveAccount(ctx context.Context, a domain.Account) error
	HasAccountEmail(ctx context.Context, email string) (bool, error)
	GetAccountByEmail(ctx context.Context, email string) (domain.Account, bool, error)
	GetAccountByID(ctx context.Context, id string) (domain.Account, bool, error)

	// profiles
	SaveProfile(ctx context.Context, p domain.Profile) error
	GetProfile(ctx context.Context, ownerID string) (domain.Profile, bool, error)
	UpdateProfile(ctx context.Context, ownerID string, upd ProfileUpdate) error

	// properties
	CreateProperty(ctx context.Context, p domain.Property) error
	GetProperty(ctx context.Context, id string) (domain.Property, bool, error)
	UpdateProperty(ctx context.Context, id string, upd PropertyUpdate) error
	DeleteProperty(ctx context.Context, id string) error
	// ListPropertiesByOwner filters by owner only, with no server-side
	// ordering; callers sort. This keeps the query on a single-column index.
	ListPropertiesByOwner(ctx context.Context, ownerID string) ([]domain.Property, error)

	// tasks
	AddTask(ctx context.Context, t domain.Task) error
	GetTask(ctx context.Context, propertyID, taskID string) (domain.Task, bool, error)
	UpdateTask(ctx context.Context, propertyID, taskID string, upd TaskUpdate) error
	DeleteTask(ctx context.Context, propertyID, taskID string) error
	// ListTasksByProperty returns tasks ordered by ascending next_due.
	ListTasksByProperty(ctx context.Context, propertyID string) ([]domain.Task, error)
}

// SessionStore issues and resolves session tokens.
type SessionStore interface {
	NewSession(accountID string) (string, error)
	GetAccountIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}

// PropertyUpdate carries a partial property update. Nil fields are left
// untouched in the stored document; updated_at is always refreshed.
type PropertyUpdate struct {
	Name             *string
	Address          *string
	WasteScheduleURL *string
}

// TaskUpdate carries a partial task update with the same nil-means-omitted
// contract. ClearLastCompleted explicitly nulls last_completed, which is
// distinct from leaving LastCompleted nil.
type TaskUpdate struct {
	Title              *string
	Interval           *domain.Interval
	NextDue            *time.Time
	Completed          *bool
	LastCompleted      *time.Time
	ClearLastCompleted bool
}

// ProfileUpdate carries a partial profile update.
type ProfileUpdate struct {
	DisplayName *string
	CompanyName *string
	Email       *string
	LogoURL     *string
}

// NewTask holds the caller-supplied fields of a task to create. Completed
// and LastCompleted are never caller-supplied; the gateway assigns them.
type NewTask struct {
	Title    string
	Interval domain.Interval
	NextDue  time.Time
}
