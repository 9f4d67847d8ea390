package settings

import "context"

// Repository persists the settings row. SMTPPassword is stored as given;
// the service encrypts it before saving.
type Repository interface {
	Get(ctx context.Context) (*SystemSettings, error)
	Save(ctx context.Context, s *SystemSettings) error
}
