package directory

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/carelink/carelink/internal/platform/apperr"
	"github.com/carelink/carelink/internal/platform/auth"
)

type Service struct {
	doctors  DoctorRepository
	patients PatientRepository
}

func NewService(doctors DoctorRepository, patients PatientRepository) *Service {
	return &Service{doctors: doctors, patients: patients}
}

func validateIdentity(fullName, email string) error {
	if strings.TrimSpace(fullName) == "" {
		return apperr.Validation("full_name is required")
	}
	if strings.TrimSpace(email) == "" {
		return apperr.Validation("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return apperr.Validation("invalid email: %s", email)
	}
	return nil
}

// -- Doctor --

func (s *Service) CreateDoctor(ctx context.Context, d *Doctor) error {
	if err := validateIdentity(d.FullName, d.Email); err != nil {
		return err
	}
	if strings.TrimSpace(d.Specialty) == "" {
		return apperr.Validation("specialty is required")
	}
	d.Active = true
	return s.doctors.Create(ctx, d)
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

func (s *Service) UpdateDoctor(ctx context.Context, d *Doctor) error {
	if err := validateIdentity(d.FullName, d.Email); err != nil {
		return err
	}
	if strings.TrimSpace(d.Specialty) == "" {
		return apperr.Validation("specialty is required")
	}
	if _, err := s.doctors.GetByID(ctx, d.ID); err != nil {
		return err
	}
	return s.doctors.Update(ctx, d)
}

func (s *Service) ListDoctors(ctx context.Context, f DoctorFilter, limit, offset int) ([]*Doctor, int, error) {
	return s.doctors.List(ctx, f, limit, offset)
}

// ActiveDoctorsBySpecialty returns every active doctor in specialty.
func (s *Service) ActiveDoctorsBySpecialty(ctx context.Context, specialty string) ([]*Doctor, error) {
	var out []*Doctor
	const page = 100
	for offset := 0; ; offset += page {
		items, total, err := s.doctors.List(ctx, DoctorFilter{Specialty: specialty, ActiveOnly: true}, page, offset)
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
		if offset+page >= total || len(items) == 0 {
			return out, nil
		}
	}
}

// -- Patient --

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if err := validateIdentity(p.FullName, p.Email); err != nil {
		return err
	}
	return s.patients.Create(ctx, p)
}

// GetPatient returns the patient. Patients may only read their own record.
func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	if auth.HasRole(ctx, auth.RolePatient) && !auth.IsSelfOrAdmin(ctx, id) {
		return nil, apperr.ErrForbidden
	}
	return s.patients.GetByID(ctx, id)
}

func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	if err := validateIdentity(p.FullName, p.Email); err != nil {
		return err
	}
	if !auth.IsSelfOrAdmin(ctx, p.ID) {
		return apperr.ErrForbidden
	}
	if _, err := s.patients.GetByID(ctx, p.ID); err != nil {
		return err
	}
	return s.patients.Update(ctx, p)
}

func (s *Service) ListPatients(ctx context.Context, search string, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, search, limit, offset)
}

// Contact resolves a user id to a patient or doctor identity.
func (s *Service) Contact(ctx context.Context, id uuid.UUID) (*Contact, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err == nil {
		return &Contact{ID: p.ID, Name: p.FullName, Email: p.Email, Role: auth.RolePatient}, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	d, err := s.doctors.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.NotFound("user")
		}
		return nil, err
	}
	return &Contact{ID: d.ID, Name: d.FullName, Email: d.Email, Role: auth.RoleDoctor}, nil
}
