package settings

import (
	"time"

	"github.com/google/uuid"
)

// SystemSettings is the singleton configuration row (id = 1).
type SystemSettings struct {
	SiteName       string  `json:"site_name"`
	LogoURL        *string `json:"logo_url,omitempty"`
	SupportEmail   *string `json:"support_email,omitempty"`
	PrimaryColor   string  `json:"primary_color"`
	SecondaryColor string  `json:"secondary_color"`
	Theme          string  `json:"theme"`

	SMTPHost        string `json:"smtp_host"`
	SMTPPort        int    `json:"smtp_port"`
	SMTPUsername    string `json:"smtp_username"`
	SMTPPassword    string `json:"-"`
	SMTPPasswordSet bool   `json:"smtp_password_set"`
	SMTPFromAddress string `json:"smtp_from_address"`
	SMTPFromName    string `json:"smtp_from_name"`
	SMTPUseTLS      bool   `json:"smtp_use_tls"`

	SessionTimeoutMinutes int  `json:"session_timeout_minutes"`
	PasswordMinLength     int  `json:"password_min_length"`
	MaxLoginAttempts      int  `json:"max_login_attempts"`
	RequireMFA            bool `json:"require_mfa"`

	UpdatedAt time.Time  `json:"updated_at"`
	UpdatedBy *uuid.UUID `json:"updated_by,omitempty"`
}

// Update is a partial change. Nil fields are left alone. An empty
// SMTPPassword clears the stored password.
type Update struct {
	SiteName       *string `json:"site_name"`
	LogoURL        *string `json:"logo_url"`
	SupportEmail   *string `json:"support_email"`
	PrimaryColor   *string `json:"primary_color"`
	SecondaryColor *string `json:"secondary_color"`
	Theme          *string `json:"theme"`

	SMTPHost        *string `json:"smtp_host"`
	SMTPPort        *int    `json:"smtp_port"`
	SMTPUsername    *string `json:"smtp_username"`
	SMTPPassword    *string `json:"smtp_password"`
	SMTPFromAddress *string `json:"smtp_from_address"`
	SMTPFromName    *string `json:"smtp_from_name"`
	SMTPUseTLS      *bool   `json:"smtp_use_tls"`

	SessionTimeoutMinutes *int  `json:"session_timeout_minutes"`
	PasswordMinLength     *int  `json:"password_min_length"`
	MaxLoginAttempts      *int  `json:"max_login_attempts"`
	RequireMFA            *bool `json:"require_mfa"`
}

// Defaults returns the settings used before an administrator saves any.
func Defaults() *SystemSettings {
	return &SystemSettings{
		SiteName:              "CareLink",
		PrimaryColor:          "#1F6FEB",
		SecondaryColor:        "#0B3D91",
		Theme:                 "system",
		SMTPPort:              587,
		SMTPFromName:          "CareLink",
		SMTPUseTLS:            true,
		SessionTimeoutMinutes: 60,
		PasswordMinLength:     12,
		MaxLoginAttempts:      5,
	}
}

func (u *Update) apply(s *SystemSettings) {
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	setBool := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}

	setString(&s.SiteName, u.SiteName)
	if u.LogoURL != nil {
		s.LogoURL = u.LogoURL
	}
	if u.SupportEmail != nil {
		s.SupportEmail = u.SupportEmail
	}
	setString(&s.PrimaryColor, u.PrimaryColor)
	setString(&s.SecondaryColor, u.SecondaryColor)
	setString(&s.Theme, u.Theme)
	setString(&s.SMTPHost, u.SMTPHost)
	setInt(&s.SMTPPort, u.SMTPPort)
	setString(&s.SMTPUsername, u.SMTPUsername)
	setString(&s.SMTPPassword, u.SMTPPassword)
	setString(&s.SMTPFromAddress, u.SMTPFromAddress)
	setString(&s.SMTPFromName, u.SMTPFromName)
	setBool(&s.SMTPUseTLS, u.SMTPUseTLS)
	setInt(&s.SessionTimeoutMinutes, u.SessionTimeoutMinutes)
	setInt(&s.PasswordMinLength, u.PasswordMinLength)
	setInt(&s.MaxLoginAttempts, u.MaxLoginAttempts)
	setBool(&s.RequireMFA, u.RequireMFA)
}
