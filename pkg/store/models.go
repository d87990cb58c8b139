package store

import (
	"time"

	"hausdesk/pkg/domain"
)

// GORM models used for persistence.
type AccountModel struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	DisplayName  string
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type ProfileModel struct {
	OwnerID     string `gorm:"primaryKey"`
	DisplayName string
	CompanyName string
	Email       string
	LogoURL     string
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time
}

type PropertyModel struct {
	ID               string `gorm:"primaryKey"`
	OwnerID          string `gorm:"not null;index"`
	Name             string `gorm:"not null"`
	Address          string `gorm:"not null"`
	WasteScheduleURL string
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

type TaskModel struct {
	ID            string     `gorm:"primaryKey"`
	PropertyID    string     `gorm:"not null;index"`
	Title         string     `gorm:"not null"`
	Interval      string     `gorm:"not null"`
	NextDue       time.Time  `gorm:"not null;index"`
	LastCompleted *time.Time // nil until the task has been completed once
	Completed     bool       `gorm:"not null"`
	CreatedAt     time.Time  `gorm:"not null"`
	UpdatedAt     time.Time  `gorm:"not null"`
}

func accountToModel(a domain.Account) AccountModel {
	return AccountModel{
		ID:           a.ID,
		Email:        a.Email,
		PasswordHash: a.PasswordHash,
		DisplayName:  a.DisplayName,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func accountFromModel(m AccountModel) domain.Account {
	return domain.Account{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		DisplayName:  m.DisplayName,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func profileToModel(p domain.Profile) ProfileModel {
	return ProfileModel{
		OwnerID:     p.OwnerID,
		DisplayName: p.DisplayName,
		CompanyName: p.CompanyName,
		Email:       p.Email,
		LogoURL:     p.LogoURL,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func profileFromModel(m ProfileModel) domain.Profile {
	return domain.Profile{
		OwnerID:     m.OwnerID,
		DisplayName: m.DisplayName,
		CompanyName: m.CompanyName,
		Email:       m.Email,
		LogoURL:     m.LogoURL,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func propertyToModel(p domain.Property) PropertyModel {
	return PropertyModel{
		ID:               p.ID,
		OwnerID:          p.OwnerID,
		Name:             p.Name,
		Address:          p.Address,
		WasteScheduleURL: p.WasteScheduleURL,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

func propertyFromModel(m PropertyModel) domain.Property {
	return domain.Property{
		ID:               m.ID,
		OwnerID:          m.OwnerID,
		Name:             m.Name,
		Address:          m.Address,
		WasteScheduleURL: m.WasteScheduleURL,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func taskToModel(t domain.Task) TaskModel {
	return TaskModel{
		ID:            t.ID,
		PropertyID:    t.PropertyID,
		Title:         t.Title,
		Interval:      string(t.Interval),
		NextDue:       t.NextDue,
		LastCompleted: t.LastCompleted,
		Completed:     t.Completed,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

// taskFromModel rejects stored tasks whose interval is outside the closed
// enumeration instead of defaulting it.
func taskFromModel(m TaskModel) (domain.Task, error) {
	interval, err := domain.ParseInterval(m.Interval)
	if err != nil {
		return domain.Task{}, err
	}
	return domain.Task{
		ID:            m.ID,
		PropertyID:    m.PropertyID,
		Title:         m.Title,
		Interval:      interval,
		NextDue:       m.NextDue,
		LastCompleted: m.LastCompleted,
		Completed:     m.Completed,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}, nil
}
