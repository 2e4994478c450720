package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"geounity/internal/authz"
	"geounity/internal/logging"
	"geounity/internal/model"
	"geounity/internal/pkg"
	"geounity/internal/repository/mysql"

	"gorm.io/gorm"
)

const (
	maxReportText  = 1000
	// maxPendingMail bounds in-flight notification sends; extra mails are dropped.
	maxPendingMail = 16
)

// Notifier delivers mail to users. *pkg.Mailer satisfies it.
type Notifier interface {
	Enabled() bool
	Send(to, subject, htmlBody string) error
}

type ReportService struct {
	db     *gorm.DB
	enf    *authz.Enforcer
	mailer Notifier
	now    func() time.Time

	mailSlots chan struct{}
	mailWG    sync.WaitGroup
}

func NewReportService(db *gorm.DB, enf *authz.Enforcer, mailer Notifier) *ReportService {
	return &ReportService{
		db:        db,
		enf:       enf,
		mailer:    mailer,
		now:       time.Now,
		mailSlots: make(chan struct{}, maxPendingMail),
	}
}

// Wait blocks until queued notification mails are sent or have failed.
func (s *ReportService) Wait() { s.mailWG.Wait() }

type ReportCreate struct {
	Type    model.ReportType
	Reason  model.ReportReason
	ItemID  uint64
	Details string
}

type ReportQuery struct {
	Status model.ReportStatus
	Type   model.ReportType
	Page   pkg.Page
}

var reportTargets = map[model.ReportType]any{
	model.ReportPoll:    &model.Poll{},
	model.ReportDebate:  &model.Debate{},
	model.ReportProject: &model.Project{},
	model.ReportIssue:   &model.Issue{},
	model.ReportComment: &model.Comment{},
	model.ReportUser:    &model.User{},
}

func validReportReason(r model.ReportReason) bool {
	switch r {
	case model.ReasonInappropriate, model.ReasonSpam, model.ReasonHarmful, model.ReasonMisinformation,
		model.ReasonHateSpeech, model.ReasonScam, model.ReasonFalseInfo, model.ReasonDuplicated,
		model.ReasonFake, model.ReasonOther:
		return true
	}
	return false
}

func validReportStatus(s model.ReportStatus) bool {
	switch s {
	case model.ReportPending, model.ReportUnderReview, model.ReportResolved, model.ReportRejected:
		return true
	}
	return false
}

func (s *ReportService) itemExists(ctx context.Context, typ model.ReportType, id uint64) (bool, error) {
	q := s.db.WithContext(ctx).Model(reportTargets[typ]).Where("id = ?", id)
	if typ == model.ReportDebate {
		q = q.Where("deleted_at IS NULL")
	}
	var n int64
	err := q.Count(&n).Error
	return n > 0, err
}

// Create files a report. A user may hold only one open report per item.
func (s *ReportService) Create(ctx context.Context, actor *model.User, in ReportCreate) (*model.Report, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if _, ok := reportTargets[in.Type]; !ok {
		return nil, pkg.Validation("invalid report type %q", in.Type)
	}
	if !validReportReason(in.Reason) {
		return nil, pkg.Validation("invalid report reason %q", in.Reason)
	}
	in.Details = strings.TrimSpace(in.Details)
	if len([]rune(in.Details)) > maxReportText {
		return nil, pkg.Validation("details must be at most %d characters", maxReportText)
	}
	ok, err := s.itemExists(ctx, in.Type, in.ItemID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, pkg.NotFound("%s %d not found", strings.ToLower(string(in.Type)), in.ItemID)
	}

	repo := &mysql.ReportRepository{DB: s.db}
	open, err := repo.HasOpen(ctx, actor.ID, in.Type, in.ItemID)
	if err != nil {
		return nil, err
	}
	if open {
		return nil, pkg.Validation("you already have an open report for this item")
	}
	rep := &model.Report{
		Type:       in.Type,
		ItemID:     in.ItemID,
		Reason:     in.Reason,
		Details:    in.Details,
		Status:     model.ReportPending,
		ReporterID: actor.ID,
	}
	if err := repo.Create(ctx, rep); err != nil {
		return nil, err
	}
	logging.Ctx(ctx).Info().Uint64("report_id", rep.ID).Str("type", string(rep.Type)).Uint64("item_id", rep.ItemID).Msg("report filed")
	return rep, nil
}

// List is for moderators.
func (s *ReportService) List(ctx context.Context, actor *model.User, q ReportQuery) (pkg.Paginated[model.Report], error) {
	if err := requireActor(actor); err != nil {
		return pkg.Paginated[model.Report]{}, err
	}
	if !s.enf.Allowed(actor, authz.ObjReports, authz.ActRead) {
		return pkg.Paginated[model.Report]{}, pkg.Forbidden("moderator role required")
	}
	list, total, err := (&mysql.ReportRepository{DB: s.db}).List(ctx,
		mysql.ReportFilter{Status: string(q.Status), Type: string(q.Type)}, q.Page.Offset(), q.Page.Size)
	if err != nil {
		return pkg.Paginated[model.Report]{}, err
	}
	return pkg.NewPaginated(list, total, q.Page), nil
}

// Get is allowed for the reporter and for moderators.
func (s *ReportService) Get(ctx context.Context, actor *model.User, id uint64) (*model.Report, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	rep, err := (&mysql.ReportRepository{DB: s.db}).FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "report")
	}
	if rep.ReporterID != actor.ID && !s.enf.Allowed(actor, authz.ObjReports, authz.ActRead) {
		return nil, pkg.Forbidden("not allowed to view this report")
	}
	return rep, nil
}

// UpdateStatus moves a report through review. Closing it stamps the resolver
// and mails the reporter.
func (s *ReportService) UpdateStatus(ctx context.Context, actor *model.User, id uint64, status model.ReportStatus, notes string) (*model.Report, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !s.enf.Allowed(actor, authz.ObjReports, authz.ActModerate) {
		return nil, pkg.Forbidden("moderator role required")
	}
	if !validReportStatus(status) {
		return nil, pkg.Validation("invalid report status %q", status)
	}
	notes = strings.TrimSpace(notes)
	if len([]rune(notes)) > maxReportText {
		return nil, pkg.Validation("notes must be at most %d characters", maxReportText)
	}

	repo := &mysql.ReportRepository{DB: s.db}
	rep, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "report")
	}
	rep.Status = status
	if notes != "" {
		rep.ResolutionNotes = notes
	}
	if status.Closed() {
		now := s.now()
		rep.ResolvedAt = &now
		rep.ResolvedByID = &actor.ID
	} else {
		rep.ResolvedAt = nil
		rep.ResolvedByID = nil
	}
	if err := repo.Save(ctx, rep); err != nil {
		return nil, err
	}
	if status.Closed() {
		s.notifyReporter(ctx, rep)
	}
	return rep, nil
}

// notifyReporter never fails or delays the request. The send runs in the
// background; delivery errors are logged.
func (s *ReportService) notifyReporter(ctx context.Context, rep *model.Report) {
	if s.mailer == nil || !s.mailer.Enabled() {
		return
	}
	logger := logging.Ctx(ctx).With().Uint64("report_id", rep.ID).Logger()
	reporter, err := (&mysql.UserRepository{DB: s.db}).FindByID(ctx, rep.ReporterID)
	if err != nil || reporter.Email == "" {
		return
	}
	select {
	case s.mailSlots <- struct{}{}:
	default:
		logger.Warn().Msg("report mail dropped, too many pending")
		return
	}
	to := reporter.Email
	body := pkg.ReportResolvedHTML(reporter.Username, rep.ID, string(rep.Status), rep.ResolutionNotes)
	s.mailWG.Add(1)
	go func() {
		defer s.mailWG.Done()
		defer func() { <-s.mailSlots }()
		if err := s.mailer.Send(to, "Your report was reviewed", body); err != nil {
			logger.Warn().Err(err).Msg("report mail failed")
		}
	}()
}
