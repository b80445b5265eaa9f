package user

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"neighborvendors_backend/internal/common"
	"neighborvendors_backend/internal/shared"
)

// User is the durable application profile record ("UserProfile"). It is
// keyed 1:1 to a provider subject once linked; the provider-side session is
// never persisted here.
type User struct {
	common.BaseModel
	DeletedAt         gorm.DeletedAt `gorm:"index"`
	Subject           *string        `gorm:"type:varchar(255);uniqueIndex:user_profiles_subject_key"`
	Email             *string        `gorm:"type:varchar(255);uniqueIndex:user_profiles_email_key"`
	DisplayName       *string        `gorm:"type:varchar(100)"`
	Address           *string        `gorm:"type:text"`
	NormalizedAddress *string        `gorm:"type:varchar(255);index"`
	SignupSource      *string        `gorm:"type:varchar(255)"`
	// Verified is tri-state: nil = pending review, true = approved,
	// false = administratively disabled.
	Verified        *bool
	TermsAcceptedAt *time.Time
	PointsBalance   int64 `gorm:"not null;default:0"`
}

// TableName specifies the table name for the User model.
func (User) TableName() string {
	return "user_profiles"
}

func (u *User) GetID() uuid.UUID {
	return u.ID
}

// ToShared converts the GORM model to the cross-feature DTO, parsing the
// signup-source column exactly once at this boundary.
func (u *User) ToShared() *shared.User {
	if u == nil {
		return nil
	}
	source := shared.SignupSource{Kind: shared.SourceDirect}
	if u.SignupSource != nil {
		source = shared.ParseSignupSource(*u.SignupSource)
	}
	return &shared.User{
		ID:                u.ID,
		Subject:           u.Subject,
		Email:             u.Email,
		DisplayName:       u.DisplayName,
		Address:           u.Address,
		NormalizedAddress: u.NormalizedAddress,
		SignupSource:      source,
		Verified:          u.Verified,
		TermsAcceptedAt:   u.TermsAcceptedAt,
		PointsBalance:     u.PointsBalance,
		CreatedAt:         u.CreatedAt,
		UpdatedAt:         u.UpdatedAt,
	}
}

// Response is the profile shape sent to clients.
type Response struct {
	ID              uuid.UUID  `json:"id"`
	Email           *string    `json:"email,omitempty"`
	DisplayName     *string    `json:"display_name,omitempty"`
	Address         *string    `json:"address,omitempty"`
	SignupSource    string     `json:"signup_source"`
	Approved        bool       `json:"approved"`
	TermsAcceptedAt *time.Time `json:"terms_accepted_at,omitempty"`
	PointsBalance   int64      `json:"points_balance"`
	CreatedAt       time.Time  `json:"created_at"`
}

// ToResponse converts a shared.User to the API response shape.
func ToResponse(u *shared.User) Response {
	return Response{
		ID:              u.ID,
		Email:           u.Email,
		DisplayName:     u.DisplayName,
		Address:         u.Address,
		SignupSource:    u.SignupSource.String(),
		Approved:        u.IsApproved(),
		TermsAcceptedAt: u.TermsAcceptedAt,
		PointsBalance:   u.PointsBalance,
		CreatedAt:       u.CreatedAt,
	}
}
