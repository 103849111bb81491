package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleMitra     Role = "mitra"
	RoleUser      Role = "user"
	RoleMahasiswa Role = "mahasiswa"
)

// IsStudent reports whether r is one of the unprivileged buyer roles that
// student-only tiers are meant for.
func (r Role) IsStudent() bool {
	return r == RoleUser || r == RoleMahasiswa
}

type VerificationStatus string

const (
	VerificationNone     VerificationStatus = "none"
	VerificationPending  VerificationStatus = "pending"
	VerificationApproved VerificationStatus = "approved"
	VerificationRejected VerificationStatus = "rejected"
)

// User is owned by the identity service; this service only reads it.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID                        string             `bun:"id,pk" json:"id"`
	Name                      string             `bun:"name,notnull" json:"name"`
	Email                     string             `bun:"email,notnull" json:"email"`
	Phone                     string             `bun:"phone" json:"phone"`
	Role                      Role               `bun:"role,notnull" json:"role"`
	StudentVerificationStatus VerificationStatus `bun:"student_verification_status,notnull,default:'none'" json:"studentVerificationStatus"`
	CreatedAt                 time.Time          `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
}

// Buyer is the identity snapshot the order engine works with.
type Buyer struct {
	ID           string
	Name         string
	Email        string
	Phone        string
	Role         Role
	Verification VerificationStatus
}

func (u *User) AsBuyer() Buyer {
	return Buyer{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		Phone:        u.Phone,
		Role:         u.Role,
		Verification: u.StudentVerificationStatus,
	}
}

// Caller is the authenticated principal of an HTTP request.
type Caller struct {
	UserID string
	Role   Role
}

func (c Caller) IsAdmin() bool { return c.Role == RoleAdmin }
