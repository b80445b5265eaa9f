package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"neighborvendors_backend/internal/common"
)

// Repository defines the interface for profile data operations.
type Repository interface {
	Create(ctx context.Context, user *User) error
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindBySubject(ctx context.Context, subject string) (*User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	Update(ctx context.Context, user *User) error
	SetTermsAccepted(ctx context.Context, id uuid.UUID, at time.Time) error
	AddPoints(ctx context.Context, id uuid.UUID, delta int64) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewGORMRepository creates a new GORM profile repository.
func NewGORMRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// Create inserts a new profile. Unique-index violations are translated into
// common.ErrConflict; orphan detection depends on this signal being
// distinguishable from other failures.
func (r *gormRepository) Create(ctx context.Context, user *User) error {
	if user.Email != nil {
		*user.Email = strings.ToLower(strings.TrimSpace(*user.Email))
	}
	err := r.db.WithContext(ctx).Create(user).Error
	if err != nil {
		if isUniqueViolation(err) {
			if strings.Contains(err.Error(), "user_profiles_subject_key") {
				return common.ErrConflict.WithDetails("This provider identity is already linked to a profile.")
			}
			return common.ErrConflict.WithDetails("A profile with this email already exists.")
		}
		return err
	}
	return nil
}

// FindByEmail retrieves a profile by email address.
func (r *gormRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	var profile User
	normalized := strings.ToLower(strings.TrimSpace(email))
	err := r.db.WithContext(ctx).Where("email = ?", normalized).First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound.WithDetails("No profile found for this email.")
		}
		return nil, err
	}
	return &profile, nil
}

// FindBySubject retrieves a profile by its linked provider subject.
func (r *gormRepository) FindBySubject(ctx context.Context, subject string) (*User, error) {
	var profile User
	err := r.db.WithContext(ctx).Where("subject = ?", subject).First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound.WithDetails("No profile found for this subject.")
		}
		return nil, err
	}
	return &profile, nil
}

// FindByID retrieves a profile by its ID.
func (r *gormRepository) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	var profile User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound.WithDetails("No profile found for this ID.")
		}
		return nil, err
	}
	return &profile, nil
}

// Update saves an existing profile record.
func (r *gormRepository) Update(ctx context.Context, user *User) error {
	if user.Email != nil {
		*user.Email = strings.ToLower(strings.TrimSpace(*user.Email))
	}
	err := r.db.WithContext(ctx).Save(user).Error
	if err != nil {
		if isUniqueViolation(err) {
			return common.ErrConflict.WithDetails("Update failed: email or provider identity already taken.")
		}
		return err
	}
	return nil
}

// SetTermsAccepted stamps the consent timestamp. Writing an already-set
// timestamp again is harmless, which keeps consent recording idempotent.
func (r *gormRepository) SetTermsAccepted(ctx context.Context, id uuid.UUID, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&User{}).
		Where("id = ? AND terms_accepted_at IS NULL", id).
		Update("terms_accepted_at", at)
	if result.Error != nil {
		return result.Error
	}
	return nil
}

// AddPoints atomically adjusts the gamified points balance.
func (r *gormRepository) AddPoints(ctx context.Context, id uuid.UUID, delta int64) error {
	result := r.db.WithContext(ctx).Model(&User{}).
		Where("id = ?", id).
		Update("points_balance", gorm.Expr("points_balance + ?", delta))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return common.ErrNotFound.WithDetails("No profile found for this ID.")
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "unique constraint") ||
		strings.Contains(err.Error(), "duplicate key value violates unique constraint") ||
		strings.Contains(err.Error(), "UNIQUE constraint failed")
}
