package directory

import (
	"time"

	"github.com/google/uuid"
)

// Doctor is a clinician who can be matched to appointment requests.
type Doctor struct {
	ID        uuid.UUID `db:"id" json:"id"`
	FullName  string    `db:"full_name" json:"full_name"`
	Email     string    `db:"email" json:"email"`
	Phone     *string   `db:"phone" json:"phone,omitempty"`
	Specialty string    `db:"specialty" json:"specialty"`
	Bio       *string   `db:"bio" json:"bio,omitempty"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Patient is a person receiving care.
type Patient struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	FullName    string     `db:"full_name" json:"full_name"`
	Email       string     `db:"email" json:"email"`
	Phone       *string    `db:"phone" json:"phone,omitempty"`
	DateOfBirth *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// Contact is the addressable identity of any platform user.
type Contact struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Role  string    `json:"role"`
}

type DoctorFilter struct {
	Specialty  string
	ActiveOnly bool
}
