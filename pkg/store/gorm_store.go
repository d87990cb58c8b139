package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"hausdesk/pkg/domain"
)

const migrateLockID int64 = 48154815

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations under an advisory lock.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&AccountModel{}, &ProfileModel{}, &PropertyModel{}, &TaskModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(`
			DO $$
			BEGIN
				DELETE FROM task_models t
				WHERE NOT EXISTS (SELECT 1 FROM property_models p WHERE p.id = t.property_id);
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'task_models'
					AND constraint_name = 'task_models_property_id_fkey'
				) THEN
					ALTER TABLE task_models
					ADD CONSTRAINT task_models_property_id_fkey
					FOREIGN KEY (property_id) REFERENCES property_models(id) ON DELETE CASCADE;
				END IF;
			END $$;
		`).Error; err != nil {
			return fmt.Errorf("ensure task foreign key: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// classify maps a database error onto the backend error taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NewStoreError(KindNotFound, err)
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "permission denied"):
		return NewStoreError(KindPermission, err)
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "broken pipe"),
		errors.Is(err, context.DeadlineExceeded):
		return NewStoreError(KindNetwork, err)
	case strings.Contains(msg, "disk full"), strings.Contains(msg, "quota"):
		return NewStoreError(KindQuota, err)
	default:
		return NewStoreError(KindInternal, err)
	}
}

// SaveAccount registers or updates an account.
func (s *GormStore) SaveAccount(ctx context.Context, a domain.Account) error {
	model := accountToModel(a)
	return classify(s.db.WithContext(ctx).Save(&model).Error)
}

// HasAccountEmail checks if email exists.
func (s *GormStore) HasAccountEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&AccountModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, classify(err)
	}
	return count > 0, nil
}

// GetAccountByEmail looks up an account by email.
func (s *GormStore) GetAccountByEmail(ctx context.Context, email string) (domain.Account, bool, error) {
	var model AccountModel
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Account{}, false, nil
		}
		return domain.Account{}, false, classify(err)
	}
	return accountFromModel(model), true, nil
}

// GetAccountByID returns an account by ID.
func (s *GormStore) GetAccountByID(ctx context.Context, id string) (domain.Account, bool, error) {
	var model AccountModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Account{}, false, nil
		}
		return domain.Account{}, false, classify(err)
	}
	return accountFromModel(model), true, nil
}

// SaveProfile writes the company profile document for an owner.
func (s *GormStore) SaveProfile(ctx context.Context, p domain.Profile) error {
	model := profileToModel(p)
	return classify(s.db.WithContext(ctx).Save(&model).Error)
}

// GetProfile returns the profile document keyed by owner ID.
func (s *GormStore) GetProfile(ctx context.Context, ownerID string) (domain.Profile, bool, error) {
	var model ProfileModel
	if err := s.db.WithContext(ctx).First(&model, "owner_id = ?", ownerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Profile{}, false, nil
		}
		return domain.Profile{}, false, classify(err)
	}
	return profileFromModel(model), true, nil
}

// UpdateProfile merges the supplied fields into the profile document.
func (s *GormStore) UpdateProfile(ctx context.Context, ownerID string, upd ProfileUpdate) error {
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if upd.DisplayName != nil {
		updates["display_name"] = *upd.DisplayName
	}
	if upd.CompanyName != nil {
		updates["company_name"] = *upd.CompanyName
	}
	if upd.Email != nil {
		updates["email"] = *upd.Email
	}
	if upd.LogoURL != nil {
		updates["logo_url"] = *upd.LogoURL
	}
	res := s.db.WithContext(ctx).Model(&ProfileModel{}).Where("owner_id = ?", ownerID).Updates(updates)
	if res.Error != nil {
		return classify(res.Error)
	}
	// Updates on a missing row is not an error for GORM; it has to be one
	// for callers.
	if res.RowsAffected == 0 {
		return NewStoreError(KindNotFound, errProfileNotFound)
	}
	return nil
}

// CreateProperty stores a new property record.
func (s *GormStore) CreateProperty(ctx context.Context, p domain.Property) error {
	model := propertyToModel(p)
	return classify(s.db.WithContext(ctx).Create(&model).Error)
}

// GetProperty retrieves one property.
func (s *GormStore) GetProperty(ctx context.Context, id string) (domain.Property, bool, error) {
	var model PropertyModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Property{}, false, nil
		}
		return domain.Property{}, false, classify(err)
	}
	return propertyFromModel(model), true, nil
}

// UpdateProperty merges the supplied fields and refreshes updated_at.
func (s *GormStore) UpdateProperty(ctx context.Context, id string, upd PropertyUpdate) error {
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if upd.Name != nil {
		updates["name"] = *upd.Name
	}
	if upd.Address != nil {
		updates["address"] = *upd.Address
	}
	if upd.WasteScheduleURL != nil {
		updates["waste_schedule_url"] = *upd.WasteScheduleURL
	}
	res := s.db.WithContext(ctx).Model(&PropertyModel{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return NewStoreError(KindNotFound, errPropertyNotFound)
	}
	return nil
}

// DeleteProperty removes the property and all of its tasks in one
// transaction. The two deletes must never commit independently.
func (s *GormStore) DeleteProperty(ctx context.Context, id string) error {
	return classify(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&TaskModel{}, "property_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&PropertyModel{}, "id = ?", id).Error
	}))
}

// ListPropertiesByOwner returns properties filtered by owner. The query has
// no ORDER BY on purpose; ordering happens in the gateway so the table only
// needs the single-column owner index.
func (s *GormStore) ListPropertiesByOwner(ctx context.Context, ownerID string) ([]domain.Property, error) {
	var models []PropertyModel
	if err := s.db.WithContext(ctx).Where("owner_id = ?", ownerID).Find(&models).Error; err != nil {
		return nil, classify(err)
	}
	res := make([]domain.Property, 0, len(models))
	for _, m := range models {
		res = append(res, propertyFromModel(m))
	}
	return res, nil
}

// AddTask stores a new task record.
func (s *GormStore) AddTask(ctx context.Context, t domain.Task) error {
	model := taskToModel(t)
	return classify(s.db.WithContext(ctx).Create(&model).Error)
}

// GetTask retrieves one task scoped to its property.
func (s *GormStore) GetTask(ctx context.Context, propertyID, taskID string) (domain.Task, bool, error) {
	var model TaskModel
	if err := s.db.WithContext(ctx).First(&model, "id = ? AND property_id = ?", taskID, propertyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Task{}, false, nil
		}
		return domain.Task{}, false, classify(err)
	}
	task, err := taskFromModel(model)
	if err != nil {
		return domain.Task{}, false, err
	}
	return task, true, nil
}

// UpdateTask merges the supplied fields. Date fields are written as UTC
// timestamps; ClearLastCompleted nulls last_completed explicitly.
func (s *GormStore) UpdateTask(ctx context.Context, propertyID, taskID string, upd TaskUpdate) error {
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if upd.Title != nil {
		updates["title"] = *upd.Title
	}
	if upd.Interval != nil {
		updates["interval"] = string(*upd.Interval)
	}
	if upd.NextDue != nil {
		updates["next_due"] = upd.NextDue.UTC()
	}
	if upd.Completed != nil {
		updates["completed"] = *upd.Completed
	}
	if upd.ClearLastCompleted {
		updates["last_completed"] = nil
	} else if upd.LastCompleted != nil {
		updates["last_completed"] = upd.LastCompleted.UTC()
	}
	res := s.db.WithContext(ctx).Model(&TaskModel{}).
		Where("id = ? AND property_id = ?", taskID, propertyID).
		Updates(updates)
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return NewStoreError(KindNotFound, errTaskNotFound)
	}
	return nil
}

// DeleteTask removes one task; no cascade.
func (s *GormStore) DeleteTask(ctx context.Context, propertyID, taskID string) error {
	return classify(s.db.WithContext(ctx).Delete(&TaskModel{}, "id = ? AND property_id = ?", taskID, propertyID).Error)
}

// ListTasksByProperty returns tasks ordered by ascending next_due.
func (s *GormStore) ListTasksByProperty(ctx context.Context, propertyID string) ([]domain.Task, error) {
	var models []TaskModel
	if err := s.db.WithContext(ctx).Where("property_id = ?", propertyID).Order("next_due ASC").Find(&models).Error; err != nil {
		return nil, classify(err)
	}
	res := make([]domain.Task, 0, len(models))
	for _, m := range models {
		task, err := taskFromModel(m)
		if err != nil {
			return nil, err
		}
		res = append(res, task)
	}
	return res, nil
}
