package settings

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelink/carelink/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const settingsCols = `site_name, logo_url, support_email, primary_color, secondary_color, theme,
	smtp_host, smtp_port, smtp_username, smtp_password, smtp_from_address, smtp_from_name, smtp_use_tls,
	session_timeout_minutes, password_min_length, max_login_attempts, require_mfa,
	updated_at, updated_by`

func (r *repoPG) Get(ctx context.Context) (*SystemSettings, error) {
	var s SystemSettings
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+settingsCols+` FROM system_settings WHERE id = 1`).Scan(
		&s.SiteName, &s.LogoURL, &s.SupportEmail, &s.PrimaryColor, &s.SecondaryColor, &s.Theme,
		&s.SMTPHost, &s.SMTPPort, &s.SMTPUsername, &s.SMTPPassword, &s.SMTPFromAddress, &s.SMTPFromName, &s.SMTPUseTLS,
		&s.SessionTimeoutMinutes, &s.PasswordMinLength, &s.MaxLoginAttempts, &s.RequireMFA,
		&s.UpdatedAt, &s.UpdatedBy)
	if err != nil {
		return nil, db.MapError(err, "settings")
	}
	s.SMTPPasswordSet = s.SMTPPassword != ""
	return &s, nil
}

func (r *repoPG) Save(ctx context.Context, s *SystemSettings) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO system_settings (id, site_name, logo_url, support_email, primary_color, secondary_color, theme,
			smtp_host, smtp_port, smtp_username, smtp_password, smtp_from_address, smtp_from_name, smtp_use_tls,
			session_timeout_minutes, password_min_length, max_login_attempts, require_mfa, updated_by)
		VALUES (1,$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		ON CONFLICT (id) DO UPDATE SET
			site_name=EXCLUDED.site_name, logo_url=EXCLUDED.logo_url, support_email=EXCLUDED.support_email,
			primary_color=EXCLUDED.primary_color, secondary_color=EXCLUDED.secondary_color, theme=EXCLUDED.theme,
			smtp_host=EXCLUDED.smtp_host, smtp_port=EXCLUDED.smtp_port, smtp_username=EXCLUDED.smtp_username,
			smtp_password=EXCLUDED.smtp_password, smtp_from_address=EXCLUDED.smtp_from_address,
			smtp_from_name=EXCLUDED.smtp_from_name, smtp_use_tls=EXCLUDED.smtp_use_tls,
			session_timeout_minutes=EXCLUDED.session_timeout_minutes,
			password_min_length=EXCLUDED.password_min_length, max_login_attempts=EXCLUDED.max_login_attempts,
			require_mfa=EXCLUDED.require_mfa, updated_by=EXCLUDED.updated_by, updated_at=NOW()
		RETURNING updated_at`,
		s.SiteName, s.LogoURL, s.SupportEmail, s.PrimaryColor, s.SecondaryColor, s.Theme,
		s.SMTPHost, s.SMTPPort, s.SMTPUsername, s.SMTPPassword, s.SMTPFromAddress, s.SMTPFromName, s.SMTPUseTLS,
		s.SessionTimeoutMinutes, s.PasswordMinLength, s.MaxLoginAttempts, s.RequireMFA, s.UpdatedBy,
	).Scan(&s.UpdatedAt)
	return db.MapError(err, "settings")
}
