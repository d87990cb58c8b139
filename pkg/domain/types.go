package domain

import (
	"errors"
	"strings"
	"time"
)

// Interval is the closed set of recurrence intervals a task may carry.
// It describes how often a task is expected to recur; it never drives
// automatic rescheduling.
type Interval string

const (
	IntervalDaily     Interval = "daily"
	IntervalWeekly    Interval = "weekly"
	IntervalMonthly   Interval = "monthly"
	IntervalQuarterly Interval = "quarterly"
	IntervalYearly    Interval = "yearly"
)

// ErrInvalidInterval is returned when an interval value is outside the
// closed enumeration. Consumers must treat it as an error, not default it.
var ErrInvalidInterval = errors.New("invalid recurrence interval")

// ParseInterval validates a raw interval string.
func ParseInterval(raw string) (Interval, error) {
	switch Interval(strings.ToLower(strings.TrimSpace(raw))) {
	case IntervalDaily:
		return IntervalDaily, nil
	case IntervalWeekly:
		return IntervalWeekly, nil
	case IntervalMonthly:
		return IntervalMonthly, nil
	case IntervalQuarterly:
		return IntervalQuarterly, nil
	case IntervalYearly:
		return IntervalYearly, nil
	default:
		return "", ErrInvalidInterval
	}
}

// Task is one recurring checklist item owned by exactly one property.
// Completed is a plain toggle; LastCompleted is set only after the task has
// been completed at least once and is cleared when the toggle reverts.
type Task struct {
	ID            string     `json:"id"`
	PropertyID    string     `json:"propertyId"`
	Title         string     `json:"title"`
	Interval      Interval   `json:"interval"`
	NextDue       time.Time  `json:"nextDue"`
	LastCompleted *time.Time `json:"lastCompleted,omitempty"`
	Completed     bool       `json:"completed"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Property is a managed building/site owned by one account.
// Tasks is populated by the view layer from the task subscription; the
// store never returns it inline.
type Property struct {
	ID               string    `json:"id"`
	OwnerID          string    `json:"ownerId"`
	Name             string    `json:"name"`
	Address          string    `json:"address"`
	WasteScheduleURL string    `json:"wasteScheduleUrl,omitempty"`
	Tasks            []Task    `json:"tasks"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Account is the authentication identity behind a session.
type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	DisplayName  string    `json:"displayName"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Profile is the company/tenant document written alongside an account at
// sign-up, keyed by the owning account ID.
type Profile struct {
	OwnerID     string    `json:"ownerId"`
	DisplayName string    `json:"displayName"`
	CompanyName string    `json:"companyName"`
	Email       string    `json:"email"`
	LogoURL     string    `json:"logoUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Session is the authenticated identity for one client. It is an explicit
// value threaded through call parameters, never process-global state.
type Session struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}
