package community

import (
	"github.com/google/uuid"

	"neighborvendors_backend/internal/common"
)

// Provenance values recorded on mappings.
const (
	ProvenanceOnboarding        = "onboarding"
	ProvenanceProfileCompletion = "profile-completion"
)

// HouseholdCommunityMapping links a normalized address to a community.
// Append-mostly reference data; idempotent on (normalized_address, community).
type HouseholdCommunityMapping struct {
	common.BaseModel
	Address           string     `gorm:"type:text;not null"`
	NormalizedAddress string     `gorm:"type:varchar(255);not null;uniqueIndex:household_mappings_addr_community_key"`
	Community         string     `gorm:"type:varchar(100);not null;uniqueIndex:household_mappings_addr_community_key"`
	CreatedBy         *uuid.UUID `gorm:"type:uuid"`
	Provenance        string     `gorm:"type:varchar(50);not null;default:'onboarding'"`
}

// TableName specifies the table name for the mapping model.
func (HouseholdCommunityMapping) TableName() string {
	return "household_community_mappings"
}

// Membership records that a user belongs to a community (the "my HOA"
// fallback consulted when address mapping yields nothing).
type Membership struct {
	common.BaseModel
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:community_memberships_user_community_key"`
	Community string    `gorm:"type:varchar(100);not null;uniqueIndex:community_memberships_user_community_key"`
}

// TableName specifies the table name for the membership model.
func (Membership) TableName() string {
	return "community_memberships"
}
