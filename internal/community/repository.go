package community

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"neighborvendors_backend/internal/common"
)

// Repository defines mapping and membership data operations.
type Repository interface {
	// CreateOrGetMapping is idempotent on (normalized address, community):
	// a second call returns the existing row instead of duplicating it.
	CreateOrGetMapping(ctx context.Context, mapping *HouseholdCommunityMapping) (*HouseholdCommunityMapping, error)
	// FindLatestMappingByAddress returns the most recent mapping for the
	// normalized address, or common.ErrNotFound.
	FindLatestMappingByAddress(ctx context.Context, normalizedAddress string) (*HouseholdCommunityMapping, error)
	FindMembership(ctx context.Context, userID uuid.UUID) (*Membership, error)
	AddMembership(ctx context.Context, userID uuid.UUID, community string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewGORMRepository creates a new GORM community repository.
func NewGORMRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateOrGetMapping(ctx context.Context, mapping *HouseholdCommunityMapping) (*HouseholdCommunityMapping, error) {
	var existing HouseholdCommunityMapping
	err := r.db.WithContext(ctx).
		Where(HouseholdCommunityMapping{
			NormalizedAddress: mapping.NormalizedAddress,
			Community:         mapping.Community,
		}).
		Attrs(HouseholdCommunityMapping{
			Address:    mapping.Address,
			CreatedBy:  mapping.CreatedBy,
			Provenance: mapping.Provenance,
		}).
		FirstOrCreate(&existing).Error
	if err != nil {
		return nil, err
	}
	return &existing, nil
}

func (r *gormRepository) FindLatestMappingByAddress(ctx context.Context, normalizedAddress string) (*HouseholdCommunityMapping, error) {
	var mapping HouseholdCommunityMapping
	err := r.db.WithContext(ctx).
		Where("normalized_address = ?", normalizedAddress).
		Order("created_at DESC").
		First(&mapping).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound.WithDetails("No community mapping for this address.")
		}
		return nil, err
	}
	return &mapping, nil
}

func (r *gormRepository) FindMembership(ctx context.Context, userID uuid.UUID) (*Membership, error) {
	var membership Membership
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		First(&membership).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound.WithDetails("No community membership for this user.")
		}
		return nil, err
	}
	return &membership, nil
}

func (r *gormRepository) AddMembership(ctx context.Context, userID uuid.UUID, community string) error {
	var existing Membership
	return r.db.WithContext(ctx).
		Where(Membership{UserID: userID, Community: community}).
		FirstOrCreate(&existing).Error
}
