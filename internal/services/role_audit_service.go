package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/campushq/rolegate/internal/models"
	"github.com/campushq/rolegate/pkg/logger"
	"github.com/campushq/rolegate/pkg/metrics"
)

// AuditConfig tunes the suspicion heuristics.
type AuditConfig struct {
	// RapidChangeWindow is the sliding window inspected for the rapid-change
	// heuristic. Defaults to one hour.
	RapidChangeWindow time.Duration
	// RapidChangeThreshold is the number of mutating entries within the window
	// that raises a detection. Defaults to 3.
	RapidChangeThreshold int
	// BusinessHoursStart and BusinessHoursEnd bound the expected activity
	// hours (local time of the stored timestamps). Defaults 7 and 19.
	BusinessHoursStart int
	BusinessHoursEnd   int
	// RetentionDays bounds how long audit entries are kept; 0 keeps forever.
	RetentionDays int
}

func (c *AuditConfig) applyDefaults() {
	if c.RapidChangeWindow <= 0 {
		c.RapidChangeWindow = time.Hour
	}
	if c.RapidChangeThreshold <= 0 {
		c.RapidChangeThreshold = 3
	}
	if c.BusinessHoursStart <= 0 {
		c.BusinessHoursStart = 7
	}
	if c.BusinessHoursEnd <= 0 || c.BusinessHoursEnd <= c.BusinessHoursStart {
		c.BusinessHoursEnd = 19
	}
}

// RoleAuditService owns the append-only audit log, the suspicion heuristics
// that run over it, and the derived reports.
type RoleAuditService struct {
	db  *gorm.DB
	cfg AuditConfig
	log *zap.Logger
	now func() time.Time
}

func NewRoleAuditService(db *gorm.DB, cfg AuditConfig) (*RoleAuditService, error) {
	if db == nil {
		return nil, fmt.Errorf("role audit service: database handle is required")
	}
	cfg.applyDefaults()
	return &RoleAuditService{
		db:  db,
		cfg: cfg,
		log: logger.WithModule("audit"),
		now: time.Now,
	}, nil
}

// AuditEntryInput carries the caller-supplied fields of an audit entry. The
// action kind is fixed by the Log method invoked.
type AuditEntryInput struct {
	UserID        string
	ChangedBy     string
	OldRole       models.Role
	NewRole       models.Role
	Reason        string
	InstitutionID string
	DepartmentID  string
	Metadata      map[string]any
	IPAddress     string
	UserAgent     string
	SessionID     string
}

// LogRoleAssignment records a fresh role grant.
func (s *RoleAuditService) LogRoleAssignment(ctx context.Context, in AuditEntryInput) (*models.RoleAuditEntry, error) {
	return s.record(ctx, models.AuditRoleAssigned, in)
}

// LogRoleChange records an executed role transition.
func (s *RoleAuditService) LogRoleChange(ctx context.Context, in AuditEntryInput) (*models.RoleAuditEntry, error) {
	return s.record(ctx, models.AuditRoleChanged, in)
}

// LogRoleRevocation records a role being taken away without a replacement.
func (s *RoleAuditService) LogRoleRevocation(ctx context.Context, in AuditEntryInput) (*models.RoleAuditEntry, error) {
	return s.record(ctx, models.AuditRoleRevoked, in)
}

// LogRoleRequest records the creation of a pending role request.
func (s *RoleAuditService) LogRoleRequest(ctx context.Context, in AuditEntryInput) (*models.RoleAuditEntry, error) {
	return s.record(ctx, models.AuditRoleRequested, in)
}

// LogRoleRequestDecision records the approval or denial of a role request.
func (s *RoleAuditService) LogRoleRequestDecision(ctx context.Context, in AuditEntryInput, approved bool) (*models.RoleAuditEntry, error) {
	action := models.AuditRoleDenied
	if approved {
		action = models.AuditRoleApproved
	}
	return s.record(ctx, action, in)
}

// LogRoleExpiration records an assignment or request lapsing on its own.
func (s *RoleAuditService) LogRoleExpiration(ctx context.Context, in AuditEntryInput) (*models.RoleAuditEntry, error) {
	return s.record(ctx, models.AuditRoleExpired, in)
}

func (s *RoleAuditService) record(ctx context.Context, action models.AuditAction, in AuditEntryInput) (*models.RoleAuditEntry, error) {
	ctx = ensureContext(ctx)
	if in.UserID == "" {
		return nil, fmt.Errorf("role audit service: user id is required")
	}
	if in.ChangedBy == "" {
		return nil, fmt.Errorf("role audit service: changed-by actor is required")
	}

	entry := &models.RoleAuditEntry{
		UserID:        in.UserID,
		ChangedBy:     in.ChangedBy,
		Action:        action,
		OldRole:       in.OldRole,
		NewRole:       in.NewRole,
		Reason:        in.Reason,
		InstitutionID: in.InstitutionID,
		DepartmentID:  in.DepartmentID,
		IPAddress:     in.IPAddress,
		UserAgent:     in.UserAgent,
		SessionID:     in.SessionID,
		OccurredAt:    s.now().UTC(),
	}
	if len(in.Metadata) > 0 {
		raw, err := json.Marshal(in.Metadata)
		if err != nil {
			return nil, fmt.Errorf("role audit service: encode metadata: %w", err)
		}
		entry.Metadata = datatypes.JSON(raw)
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, fmt.Errorf("role audit service: store entry: %w", err)
	}
	return entry, nil
}

// AuditQueryFilters narrows an audit-log query. Zero values are ignored.
// Role matches either side of a transition.
type AuditQueryFilters struct {
	UserID        string
	ChangedBy     string
	Action        models.AuditAction
	Role          models.Role
	InstitutionID string
	DepartmentID  string
	From          *time.Time
	To            *time.Time
	Limit         int
	Offset        int
}

// AuditQueryResult is a page of audit entries, newest first.
type AuditQueryResult struct {
	Entries    []models.RoleAuditEntry `json:"entries"`
	TotalCount int64                   `json:"total_count"`
	Limit      int                     `json:"limit"`
	Offset     int                     `json:"offset"`
	HasMore    bool                    `json:"has_more"`
}

// Query returns audit entries matching the filters, paginated and ordered by
// occurrence time descending.
func (s *RoleAuditService) Query(ctx context.Context, filters AuditQueryFilters) (*AuditQueryResult, error) {
	ctx = ensureContext(ctx)

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	offset := filters.Offset
	if offset < 0 {
		offset = 0
	}

	query := s.db.WithContext(ctx).Model(&models.RoleAuditEntry{})
	if filters.UserID != "" {
		query = query.Where("user_id = ?", filters.UserID)
	}
	if filters.ChangedBy != "" {
		query = query.Where("changed_by = ?", filters.ChangedBy)
	}
	if filters.Action != "" {
		query = query.Where("action = ?", filters.Action)
	}
	if filters.Role != "" {
		query = query.Where("old_role = ? OR new_role = ?", filters.Role, filters.Role)
	}
	if filters.InstitutionID != "" {
		query = query.Where("institution_id = ?", filters.InstitutionID)
	}
	if filters.DepartmentID != "" {
		query = query.Where("department_id = ?", filters.DepartmentID)
	}
	if filters.From != nil {
		query = query.Where("occurred_at >= ?", *filters.From)
	}
	if filters.To != nil {
		query = query.Where("occurred_at <= ?", *filters.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("role audit service: count entries: %w", err)
	}

	var entries []models.RoleAuditEntry
	if err := query.Order("occurred_at DESC").Limit(limit).Offset(offset).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("role audit service: list entries: %w", err)
	}

	return &AuditQueryResult{
		Entries:    entries,
		TotalCount: total,
		Limit:      limit,
		Offset:     offset,
		HasMore:    int64(offset+len(entries)) < total,
	}, nil
}

// mutatingActions are the action kinds that actually alter what a user can do.
var mutatingActions = []models.AuditAction{
	models.AuditRoleAssigned,
	models.AuditRoleChanged,
	models.AuditRoleRevoked,
	models.AuditRoleApproved,
}

func isMutatingAction(action models.AuditAction) bool {
	for _, a := range mutatingActions {
		if a == action {
			return true
		}
	}
	return false
}

// DetectSuspicious runs every heuristic against the freshly logged entry and
// persists any detections. Heuristics are independent: a failing one is
// reported alongside the detections of the others rather than aborting them.
func (s *RoleAuditService) DetectSuspicious(ctx context.Context, entry *models.RoleAuditEntry) ([]models.SuspiciousActivity, error) {
	ctx = ensureContext(ctx)
	if entry == nil {
		return nil, nil
	}

	heuristics := []func(context.Context, *models.RoleAuditEntry) (*models.SuspiciousActivity, error){
		s.detectRapidChanges,
		s.detectPrivilegeEscalation,
		s.detectUnusualPattern,
	}

	var detections []models.SuspiciousActivity
	var errs error
	for _, heuristic := range heuristics {
		activity, err := heuristic(ctx, entry)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if activity == nil {
			continue
		}
		if err := s.db.WithContext(ctx).Create(activity).Error; err != nil {
			errs = multierr.Append(errs, fmt.Errorf("role audit service: store %s detection: %w", activity.Type, err))
			continue
		}
		metrics.SuspiciousActivities.WithLabelValues(string(activity.Type), string(activity.Severity)).Inc()
		s.log.Warn("suspicious activity detected",
			zap.String("user_id", activity.UserID),
			zap.String("type", string(activity.Type)),
			zap.String("severity", string(activity.Severity)),
		)
		detections = append(detections, *activity)
	}
	return detections, errs
}

func (s *RoleAuditService) detectRapidChanges(ctx context.Context, entry *models.RoleAuditEntry) (*models.SuspiciousActivity, error) {
	if !isMutatingAction(entry.Action) {
		return nil, nil
	}

	windowStart := entry.OccurredAt.Add(-s.cfg.RapidChangeWindow)
	var recent []models.RoleAuditEntry
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND action IN ? AND occurred_at >= ? AND occurred_at <= ?",
			entry.UserID, mutatingActions, windowStart, entry.OccurredAt).
		Order("occurred_at ASC").
		Find(&recent).Error
	if err != nil {
		return nil, fmt.Errorf("role audit service: rapid-change lookup: %w", err)
	}
	if len(recent) < s.cfg.RapidChangeThreshold {
		return nil, nil
	}

	ids := make([]string, 0, len(recent))
	for _, e := range recent {
		ids = append(ids, e.ID)
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("role audit service: encode rapid-change entry ids: %w", err)
	}

	return &models.SuspiciousActivity{
		UserID:   entry.UserID,
		Type:     models.SuspiciousRapidChanges,
		Severity: models.SeverityHigh,
		Description: fmt.Sprintf("%d role changes within %s for user %s",
			len(recent), s.cfg.RapidChangeWindow, entry.UserID),
		AuditEntryIDs: datatypes.JSON(raw),
		DetectedAt:    s.now().UTC(),
	}, nil
}

func (s *RoleAuditService) detectPrivilegeEscalation(_ context.Context, entry *models.RoleAuditEntry) (*models.SuspiciousActivity, error) {
	if entry.Action != models.AuditRoleChanged && entry.Action != models.AuditRoleApproved {
		return nil, nil
	}
	if !entry.OldRole.IsValid() || !entry.NewRole.IsValid() {
		return nil, nil
	}
	levels := entry.NewRole.LevelsAbove(entry.OldRole)
	if entry.NewRole != models.RoleSystemAdmin && levels < 2 {
		return nil, nil
	}

	severity := models.SeverityMedium
	switch {
	case entry.NewRole == models.RoleSystemAdmin:
		severity = models.SeverityCritical
	case levels >= 3:
		severity = models.SeverityHigh
	}

	raw, err := json.Marshal([]string{entry.ID})
	if err != nil {
		return nil, fmt.Errorf("role audit service: encode escalation entry id: %w", err)
	}
	return &models.SuspiciousActivity{
		UserID:   entry.UserID,
		Type:     models.SuspiciousPrivilegeEscalation,
		Severity: severity,
		Description: fmt.Sprintf("privilege escalation from %s to %s (%d levels)",
			entry.OldRole, entry.NewRole, levels),
		AuditEntryIDs: datatypes.JSON(raw),
		DetectedAt:    s.now().UTC(),
	}, nil
}

func (s *RoleAuditService) detectUnusualPattern(_ context.Context, entry *models.RoleAuditEntry) (*models.SuspiciousActivity, error) {
	if !isMutatingAction(entry.Action) {
		return nil, nil
	}
	// Automated maintenance runs off hours on purpose.
	if entry.ChangedBy == "system" {
		return nil, nil
	}

	occurred := entry.OccurredAt
	weekend := occurred.Weekday() == time.Saturday || occurred.Weekday() == time.Sunday
	offHours := occurred.Hour() < s.cfg.BusinessHoursStart || occurred.Hour() >= s.cfg.BusinessHoursEnd
	if !weekend && !offHours {
		return nil, nil
	}

	raw, err := json.Marshal([]string{entry.ID})
	if err != nil {
		return nil, fmt.Errorf("role audit service: encode pattern entry id: %w", err)
	}
	return &models.SuspiciousActivity{
		UserID:   entry.UserID,
		Type:     models.SuspiciousUnusualPattern,
		Severity: models.SeverityMedium,
		Description: fmt.Sprintf("role %s by %s outside business hours at %s",
			entry.Action, entry.ChangedBy, occurred.Format(time.RFC3339)),
		AuditEntryIDs: datatypes.JSON(raw),
		DetectedAt:    s.now().UTC(),
	}, nil
}

// SuspiciousFilters narrows a suspicious-activity listing.
type SuspiciousFilters struct {
	UserID     string
	Types      []models.SuspiciousType
	Severities []models.Severity
	Flagged    *bool
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

// GetSuspicious lists detections matching the filters, newest first.
func (s *RoleAuditService) GetSuspicious(ctx context.Context, filters SuspiciousFilters) ([]models.SuspiciousActivity, error) {
	ctx = ensureContext(ctx)

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	query := s.db.WithContext(ctx).Model(&models.SuspiciousActivity{})
	if filters.UserID != "" {
		query = query.Where("user_id = ?", filters.UserID)
	}
	if len(filters.Types) > 0 {
		query = query.Where("type IN ?", filters.Types)
	}
	if len(filters.Severities) > 0 {
		query = query.Where("severity IN ?", filters.Severities)
	}
	if filters.Flagged != nil {
		query = query.Where("flagged = ?", *filters.Flagged)
	}
	if filters.From != nil {
		query = query.Where("detected_at >= ?", *filters.From)
	}
	if filters.To != nil {
		query = query.Where("detected_at <= ?", *filters.To)
	}

	var activities []models.SuspiciousActivity
	if err := query.Order("detected_at DESC").Limit(limit).Offset(max(filters.Offset, 0)).Find(&activities).Error; err != nil {
		return nil, fmt.Errorf("role audit service: list suspicious activities: %w", err)
	}
	return activities, nil
}

// FlagSuspicious marks a detection as reviewed. Flagging an already-flagged
// activity is a no-op.
func (s *RoleAuditService) FlagSuspicious(ctx context.Context, activityID, reviewerID, notes string) error {
	ctx = ensureContext(ctx)

	var activity models.SuspiciousActivity
	if err := s.db.WithContext(ctx).First(&activity, "id = ?", activityID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrActivityNotFound
		}
		return fmt.Errorf("role audit service: load suspicious activity: %w", err)
	}
	if activity.Flagged {
		return nil
	}

	now := s.now().UTC()
	updates := map[string]any{
		"flagged":      true,
		"reviewed_by":  reviewerID,
		"review_notes": notes,
		"reviewed_at":  now,
	}
	if err := s.db.WithContext(ctx).Model(&activity).Updates(updates).Error; err != nil {
		return fmt.Errorf("role audit service: flag suspicious activity: %w", err)
	}
	return nil
}

// GenerateReport builds and persists a summary of audit activity over a date
// range, optionally restricted to one institution.
func (s *RoleAuditService) GenerateReport(ctx context.Context, title, requestedBy string, start, end time.Time, institutionID string) (*models.AuditReport, error) {
	ctx = ensureContext(ctx)
	if requestedBy == "" {
		return nil, fmt.Errorf("role audit service: report requester is required")
	}
	if end.Before(start) {
		return nil, fmt.Errorf("role audit service: report range end precedes start")
	}

	entryQuery := s.db.WithContext(ctx).
		Where("occurred_at >= ? AND occurred_at <= ?", start, end)
	if institutionID != "" {
		entryQuery = entryQuery.Where("institution_id = ?", institutionID)
	}
	var entries []models.RoleAuditEntry
	if err := entryQuery.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("role audit service: collect report entries: %w", err)
	}

	suspiciousQuery := s.db.WithContext(ctx).Model(&models.SuspiciousActivity{}).
		Where("detected_at >= ? AND detected_at <= ?", start, end)
	var suspiciousCount int64
	if err := suspiciousQuery.Count(&suspiciousCount).Error; err != nil {
		return nil, fmt.Errorf("role audit service: count report detections: %w", err)
	}

	summary, err := buildReportSummary(entries)
	if err != nil {
		return nil, err
	}

	report := &models.AuditReport{
		Title:           title,
		RequestedBy:     requestedBy,
		StartDate:       start,
		EndDate:         end,
		InstitutionID:   institutionID,
		TotalEntries:    len(entries),
		SuspiciousCount: int(suspiciousCount),
		Summary:         summary,
		GeneratedAt:     s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(report).Error; err != nil {
		return nil, fmt.Errorf("role audit service: store report: %w", err)
	}
	return report, nil
}

func buildReportSummary(entries []models.RoleAuditEntry) (datatypes.JSON, error) {
	counts := map[models.AuditAction]int{}
	roleDistribution := map[string]int{}
	actorCounts := map[string]int{}
	for _, e := range entries {
		counts[e.Action]++
		if e.NewRole != "" {
			roleDistribution[string(e.NewRole)]++
		}
		actorCounts[e.ChangedBy]++
	}

	type actorCount struct {
		Actor string `json:"actor"`
		Count int    `json:"count"`
	}
	topActors := make([]actorCount, 0, len(actorCounts))
	for actor, n := range actorCounts {
		topActors = append(topActors, actorCount{Actor: actor, Count: n})
	}
	sort.Slice(topActors, func(i, j int) bool {
		if topActors[i].Count != topActors[j].Count {
			return topActors[i].Count > topActors[j].Count
		}
		return topActors[i].Actor < topActors[j].Actor
	})
	if len(topActors) > 5 {
		topActors = topActors[:5]
	}

	raw, err := json.Marshal(map[string]any{
		"total_changes":     counts[models.AuditRoleChanged],
		"assignments":       counts[models.AuditRoleAssigned],
		"revocations":       counts[models.AuditRoleRevoked],
		"requests":          counts[models.AuditRoleRequested],
		"role_distribution": roleDistribution,
		"top_actors":        topActors,
	})
	if err != nil {
		return nil, fmt.Errorf("role audit service: encode report summary: %w", err)
	}
	return datatypes.JSON(raw), nil
}

// PruneOlderThan removes audit entries past the retention horizon. It returns
// the number of rows deleted.
func (s *RoleAuditService) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx = ensureContext(ctx)
	res := s.db.WithContext(ctx).
		Where("occurred_at < ?", cutoff).
		Delete(&models.RoleAuditEntry{})
	if res.Error != nil {
		return 0, fmt.Errorf("role audit service: prune entries: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// RetentionCutoff translates the configured retention into an absolute
// timestamp, or zero time when retention is unbounded.
func (s *RoleAuditService) RetentionCutoff() time.Time {
	if s.cfg.RetentionDays <= 0 {
		return time.Time{}
	}
	return s.now().UTC().AddDate(0, 0, -s.cfg.RetentionDays)
}
