// Package seed loads reproducible demo data: doctors, patients and the
// default system settings. Running it twice changes nothing.
package seed

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/domain/directory"
	"github.com/carelink/carelink/internal/domain/settings"
	"github.com/carelink/carelink/internal/platform/apperr"
	"github.com/carelink/carelink/internal/platform/db"
)

const emailDomain = "demo.carelink.test"

// Config controls how much demo data is loaded.
type Config struct {
	Doctors  int   `json:"doctors"`
	Patients int   `json:"patients"`
	Seed     int64 `json:"seed"`
}

func DefaultConfig() Config {
	return Config{Doctors: 8, Patients: 25, Seed: 42}
}

// Result summarizes a seed run.
type Result struct {
	DoctorsCreated   int                  `json:"doctors_created"`
	DoctorsExisting  int                  `json:"doctors_existing"`
	PatientsCreated  int                  `json:"patients_created"`
	PatientsExisting int                  `json:"patients_existing"`
	SettingsCreated  bool                 `json:"settings_created"`
	Doctors          []*directory.Doctor  `json:"-"`
	Patients         []*directory.Patient `json:"-"`
	Duration         time.Duration        `json:"duration"`
}

var (
	firstNames = []string{
		"James", "Mary", "Robert", "Patricia", "John", "Jennifer", "Michael",
		"Linda", "David", "Elizabeth", "William", "Susan", "Richard", "Jessica",
		"Joseph", "Sarah", "Thomas", "Karen", "Daniel", "Nancy", "Amina",
		"Wei", "Priya", "Kenji", "Fatima", "Mateo", "Olga", "Kwame",
	}
	lastNames = []string{
		"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller",
		"Davis", "Rodriguez", "Martinez", "Wilson", "Anderson", "Taylor",
		"Thomas", "Moore", "Lee", "Nguyen", "Patel", "Okafor", "Tanaka",
		"Kowalski", "Haddad", "Silva", "Chen",
	}
	specialties = []string{
		"general-practice", "cardiology", "dermatology", "pediatrics",
		"psychiatry", "neurology", "orthopedics", "endocrinology",
	}
)

// Generator produces deterministic people for a given seed.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator returns a generator seeded for reproducibility. If seed is
// 0 a time-based seed is chosen.
func NewGenerator(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

func (g *Generator) pick(pool []string) string {
	return pool[g.rng.Intn(len(pool))]
}

func (g *Generator) phone() *string {
	p := fmt.Sprintf("+1 (%03d) %03d-%04d", 200+g.rng.Intn(800), 200+g.rng.Intn(800), g.rng.Intn(10000))
	return &p
}

func (g *Generator) birthDate() *time.Time {
	d := time.Date(1940+g.rng.Intn(70), time.Month(1+g.rng.Intn(12)), 1+g.rng.Intn(28), 0, 0, 0, 0, time.UTC)
	return &d
}

// Doctor returns the i-th demo doctor. Specialties rotate so every one is
// covered once there are enough doctors.
func (g *Generator) Doctor(i int) *directory.Doctor {
	first, last := g.pick(firstNames), g.pick(lastNames)
	specialty := specialties[i%len(specialties)]
	bio := fmt.Sprintf("Dr. %s %s practises %s.", first, last, strings.ReplaceAll(specialty, "-", " "))
	return &directory.Doctor{
		FullName:  fmt.Sprintf("Dr. %s %s", first, last),
		Email:     fmt.Sprintf("doctor%02d@%s", i+1, emailDomain),
		Phone:     g.phone(),
		Specialty: specialty,
		Bio:       &bio,
		Active:    true,
	}
}

func (g *Generator) Patient(i int) *directory.Patient {
	return &directory.Patient{
		FullName:    fmt.Sprintf("%s %s", g.pick(firstNames), g.pick(lastNames)),
		Email:       fmt.Sprintf("patient%02d@%s", i+1, emailDomain),
		Phone:       g.phone(),
		DateOfBirth: g.birthDate(),
	}
}

// Seeder writes demo data through the domain repositories.
type Seeder struct {
	doctors  directory.DoctorRepository
	patients directory.PatientRepository
	settings settings.Repository
	tx       db.TxRunner
	logger   zerolog.Logger
}

func NewSeeder(doctors directory.DoctorRepository, patients directory.PatientRepository,
	settingsRepo settings.Repository, tx db.TxRunner, logger zerolog.Logger) *Seeder {
	return &Seeder{doctors: doctors, patients: patients, settings: settingsRepo, tx: tx, logger: logger}
}

// Run loads cfg's demo data in one transaction. People are matched on
// email, so existing rows are left as they are.
func (s *Seeder) Run(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.Doctors < 0 || cfg.Patients < 0 {
		return nil, fmt.Errorf("seed counts must not be negative")
	}
	start := time.Now()
	gen := NewGenerator(cfg.Seed)
	res := &Result{}

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.settings.Get(ctx); errors.Is(err, apperr.ErrNotFound) {
			if err := s.settings.Save(ctx, settings.Defaults()); err != nil {
				return fmt.Errorf("save default settings: %w", err)
			}
			res.SettingsCreated = true
		} else if err != nil {
			return fmt.Errorf("load settings: %w", err)
		}

		for i := 0; i < cfg.Doctors; i++ {
			d := gen.Doctor(i)
			existing, err := s.doctors.GetByEmail(ctx, d.Email)
			switch {
			case err == nil:
				res.DoctorsExisting++
				res.Doctors = append(res.Doctors, existing)
				continue
			case !errors.Is(err, apperr.ErrNotFound):
				return fmt.Errorf("look up doctor %s: %w", d.Email, err)
			}
			if err := s.doctors.Create(ctx, d); err != nil {
				return fmt.Errorf("create doctor %s: %w", d.Email, err)
			}
			res.DoctorsCreated++
			res.Doctors = append(res.Doctors, d)
		}

		for i := 0; i < cfg.Patients; i++ {
			p := gen.Patient(i)
			existing, err := s.patients.GetByEmail(ctx, p.Email)
			switch {
			case err == nil:
				res.PatientsExisting++
				res.Patients = append(res.Patients, existing)
				continue
			case !errors.Is(err, apperr.ErrNotFound):
				return fmt.Errorf("look up patient %s: %w", p.Email, err)
			}
			if err := s.patients.Create(ctx, p); err != nil {
				return fmt.Errorf("create patient %s: %w", p.Email, err)
			}
			res.PatientsCreated++
			res.Patients = append(res.Patients, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.Duration = time.Since(start)
	s.logger.Info().
		Int("doctors_created", res.DoctorsCreated).
		Int("doctors_existing", res.DoctorsExisting).
		Int("patients_created", res.PatientsCreated).
		Int("patients_existing", res.PatientsExisting).
		Bool("settings_created", res.SettingsCreated).
		Dur("duration", res.Duration).
		Msg("demo data seeded")
	return res, nil
}
