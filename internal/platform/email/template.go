// Package email renders the platform's transactional emails and delivers
// them over SMTP using the configuration stored in system settings.
package email

import (
	"fmt"
	"strings"
	"sync"
)

// Template IDs.
const (
	TemplateRequestApproved      = "request-approved"
	TemplateRequestRejected      = "request-rejected"
	TemplateAppointmentCancelled = "appointment-cancelled"
	TemplateAppointmentReminder  = "appointment-reminder"
	TemplatePrescriptionIssued   = "prescription-issued"
	TemplateNewMessage           = "new-message"
	TemplateReportReady          = "report-ready"
	TemplateTest                 = "test-email"
)

// Template is a subject/body pair with {{key}} placeholders.
type Template struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// TemplateEngine holds templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates an engine with the built-in templates registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	for _, t := range builtIn {
		e.RegisterTemplate(t)
	}
	return e
}

var builtIn = []Template{
	{
		ID:      TemplateRequestApproved,
		Name:    "Appointment Request Approved",
		Subject: "{{site_name}}: your appointment is confirmed",
		Body: "Dear {{patient_name}},\n\nYour appointment request has been approved. " +
			"You will see {{doctor_name}} on {{date}} at {{time}} ({{mode}}).\n\n{{link}}\n\n{{site_name}}",
	},
	{
		ID:      TemplateRequestRejected,
		Name:    "Appointment Request Declined",
		Subject: "{{site_name}}: your appointment request was declined",
		Body: "Dear {{patient_name}},\n\nWe could not accept your appointment request for {{specialty}}.\n" +
			"Reason: {{note}}\n\nYou are welcome to submit a new request.\n\n{{site_name}}",
	},
	{
		ID:      TemplateAppointmentCancelled,
		Name:    "Appointment Cancelled",
		Subject: "{{site_name}}: appointment on {{date}} cancelled",
		Body: "Dear {{recipient_name}},\n\nThe appointment on {{date}} at {{time}} has been cancelled.\n" +
			"Reason: {{reason}}\n\n{{site_name}}",
	},
	{
		ID:      TemplateAppointmentReminder,
		Name:    "Appointment Reminder",
		Subject: "{{site_name}}: reminder of your appointment on {{date}}",
		Body: "Dear {{patient_name}},\n\nThis is a reminder of your appointment with {{doctor_name}} " +
			"on {{date}} at {{time}} ({{mode}}).\n\n{{link}}\n\n{{site_name}}",
	},
	{
		ID:      TemplatePrescriptionIssued,
		Name:    "New Prescription",
		Subject: "{{site_name}}: new prescription from {{doctor_name}}",
		Body: "Dear {{patient_name}},\n\n{{doctor_name}} has issued a prescription for you:\n{{items}}\n\n" +
			"Sign in to download a printable copy.\n\n{{site_name}}",
	},
	{
		ID:      TemplateNewMessage,
		Name:    "New Message",
		Subject: "{{site_name}}: new message from {{sender_name}}",
		Body:    "You have a new message from {{sender_name}}.\n\n{{link}}\n\n{{site_name}}",
	},
	{
		ID:      TemplateReportReady,
		Name:    "Scheduled Report",
		Subject: "{{site_name}}: {{report_name}} ({{generated_at}})",
		Body:    "The scheduled report \"{{report_name}}\" is attached.\nRows: {{rows}}\n\n{{site_name}}",
	},
	{
		ID:      TemplateTest,
		Name:    "Test Email",
		Subject: "{{site_name}}: test email",
		Body:    "This is a test message sent at {{sent_at}} to confirm the SMTP settings work.\n\n{{site_name}}",
	},
}

// RegisterTemplate adds or replaces a template.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render performs {{key}} replacement. Placeholders without data are
// removed.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject, body = t.Subject, t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return stripPlaceholders(subject), stripPlaceholders(body), nil
}

func stripPlaceholders(s string) string {
	for {
		start := strings.Index(s, "{{")
		if start < 0 {
			return s
		}
		end := strings.Index(s[start:], "}}")
		if end < 0 {
			return s
		}
		s = s[:start] + s[start+end+2:]
	}
}
