package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/multierr"

	"github.com/carelink/carelink/internal/platform/apperr"
	"github.com/carelink/carelink/internal/platform/auth"
	"github.com/carelink/carelink/internal/platform/email"
	"github.com/carelink/carelink/internal/platform/media"
	"github.com/carelink/carelink/internal/platform/scheduler"
)

// Mailer sends a rendered template with attachments.
type Mailer interface {
	SendTemplate(ctx context.Context, to []string, templateID string, data map[string]string, attachments ...email.Attachment) error
}

type Service struct {
	repo        Repository
	data        DataSource
	store       media.Store
	mailer      Mailer
	logger      zerolog.Logger
	now         func() time.Time
	concurrency int
}

func NewService(repo Repository, data DataSource, store media.Store, mailer Mailer, logger zerolog.Logger) *Service {
	return &Service{
		repo:        repo,
		data:        data,
		store:       store,
		mailer:      mailer,
		logger:      logger,
		now:         time.Now,
		concurrency: 3,
	}
}

func (s *Service) validate(r *ScheduledReport) error {
	r.Name = strings.TrimSpace(r.Name)
	r.Schedule = strings.TrimSpace(r.Schedule)
	if r.Name == "" {
		return apperr.Validation("name is required")
	}
	if len(r.Name) > 200 {
		return apperr.Validation("name must be at most 200 characters")
	}
	if _, ok := Lookup(r.ReportType); !ok {
		return apperr.Validation("unknown report_type: %s", r.ReportType)
	}
	if r.Schedule == "" {
		return apperr.Validation("schedule is required")
	}
	if err := scheduler.Validate(r.Schedule); err != nil {
		return apperr.Validation("%v", err)
	}
	if r.PeriodDays == 0 {
		r.PeriodDays = DefaultPeriodDays
	}
	if r.PeriodDays < 1 || r.PeriodDays > MaxPeriodDays {
		return apperr.Validation("period_days must be between 1 and %d", MaxPeriodDays)
	}
	if len(r.Recipients) == 0 {
		return apperr.Validation("at least one recipient is required")
	}
	if len(r.Recipients) > maxRecipients {
		return apperr.Validation("at most %d recipients are allowed", maxRecipients)
	}
	seen := make(map[string]bool, len(r.Recipients))
	out := r.Recipients[:0]
	for _, addr := range r.Recipients {
		parsed, err := mail.ParseAddress(strings.TrimSpace(addr))
		if err != nil {
			return apperr.Validation("invalid recipient %q", addr)
		}
		key := strings.ToLower(parsed.Address)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, parsed.Address)
	}
	r.Recipients = out
	return nil
}

func requireAdmin(ctx context.Context) error {
	if !auth.IsAdmin(ctx) {
		return fmt.Errorf("%w: administrators only", apperr.ErrForbidden)
	}
	return nil
}

func (s *Service) Create(ctx context.Context, r *ScheduledReport) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.validate(r); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return err
	}
	s.logger.Info().Str("report_id", r.ID.String()).Str("type", r.ReportType).Str("schedule", r.Schedule).Msg("scheduled report created")
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*ScheduledReport, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Update(ctx context.Context, r *ScheduledReport) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	if _, err := s.repo.GetByID(ctx, r.ID); err != nil {
		return err
	}
	if err := s.validate(r); err != nil {
		return err
	}
	return s.repo.Update(ctx, r)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*ScheduledReport, int, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, limit, offset)
}

// RunNow generates one report immediately, whether or not it is active or
// due. A failed run is recorded on the report and also returned.
func (s *Service) RunNow(ctx context.Context, id uuid.UUID) (*ScheduledReport, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	runErr := s.run(ctx, r)
	if runErr != nil {
		return r, fmt.Errorf("%w: %v", apperr.ErrUnavailable, runErr)
	}
	return r, nil
}

// RunDue runs every active report whose schedule has fired since its last
// run. It returns how many ran and the combined run errors.
func (s *Service) RunDue(ctx context.Context) (int, error) {
	reports, err := s.repo.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active reports: %w", err)
	}
	now := s.now()

	var (
		mu   sync.Mutex
		errs error
		ran  int
	)
	p := pool.New().WithMaxGoroutines(s.concurrency)
	for _, r := range reports {
		due, err := scheduler.Due(r.Schedule, r.LastRunAt, now)
		if err != nil {
			s.logger.Warn().Err(err).Str("report_id", r.ID.String()).Msg("skip report with invalid schedule")
			continue
		}
		if !due {
			continue
		}
		r := r
		p.Go(func() {
			err := s.run(ctx, r)
			mu.Lock()
			defer mu.Unlock()
			ran++
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("report %s: %w", r.ID, err))
			}
		})
	}
	p.Wait()
	return ran, errs
}

// run generates, stores and mails a report, then records the outcome on r.
func (s *Service) run(ctx context.Context, r *ScheduledReport) error {
	def, ok := Lookup(r.ReportType)
	if !ok {
		return s.record(ctx, r, RunResult{At: s.now()}, fmt.Errorf("unknown report type %q", r.ReportType))
	}
	at := s.now()
	result := RunResult{At: at}
	from := at.AddDate(0, 0, -r.PeriodDays)
	log := s.logger.With().Str("report_id", r.ID.String()).Str("type", r.ReportType).Logger()

	ds, err := s.data.Load(ctx, def, from, at)
	if err != nil {
		return s.record(ctx, r, result, fmt.Errorf("load data: %w", err))
	}
	content, err := RenderXLSX(Workbook{Name: r.Name, Definition: def, Data: ds, From: from, To: at, GeneratedAt: at})
	if err != nil {
		return s.record(ctx, r, result, err)
	}

	fileName := fmt.Sprintf("%s-%s.xlsx", slug(r.Name), at.UTC().Format("20060102-1504"))
	stored, err := s.store.Upload(ctx, media.Metadata{
		FileName:    fileName,
		ContentType: xlsxContentType,
		Category:    media.CategoryReport,
		OwnerID:     "report:" + r.ID.String(),
	}, bytes.NewReader(content))
	if err != nil {
		return s.record(ctx, r, result, fmt.Errorf("store workbook: %w", err))
	}
	result.MediaID = &stored.ID

	if s.mailer != nil {
		err = s.mailer.SendTemplate(ctx, r.Recipients, email.TemplateReportReady, map[string]string{
			"report_name":  r.Name,
			"generated_at": at.UTC().Format("2006-01-02 15:04 MST"),
			"rows":         strconv.Itoa(len(ds.Rows)),
		}, email.Attachment{Name: fileName, ContentType: xlsxContentType, Data: content})
		if err != nil {
			return s.record(ctx, r, result, fmt.Errorf("email recipients: %w", err))
		}
	}

	log.Info().Int("rows", len(ds.Rows)).Str("media_id", stored.ID).Msg("report generated")
	return s.record(ctx, r, result, nil)
}

// record stores the outcome and returns runErr. Failing to record is
// logged so the run error is not masked.
func (s *Service) record(ctx context.Context, r *ScheduledReport, result RunResult, runErr error) error {
	result.Status = StatusSucceeded
	if runErr != nil {
		result.Status = StatusFailed
		msg := runErr.Error()
		result.Error = &msg
		s.logger.Error().Err(runErr).Str("report_id", r.ID.String()).Msg("report run failed")
	}
	if err := s.repo.RecordRun(ctx, r.ID, result); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error().Err(err).Str("report_id", r.ID.String()).Msg("record report run")
	}
	r.LastRunAt = &result.At
	r.LastStatus = &result.Status
	r.LastError = result.Error
	if result.MediaID != nil {
		r.LastMediaID = result.MediaID
	}
	return runErr
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slug(name string) string {
	s := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if s == "" {
		return "report"
	}
	return s
}

// LatestFile returns the media id of the most recent successful workbook.
func (s *Service) LatestFile(ctx context.Context, id uuid.UUID) (string, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if r.LastMediaID == nil {
		return "", apperr.NotFound("report file")
	}
	return *r.LastMediaID, nil
}
