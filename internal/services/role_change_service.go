package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/campushq/rolegate/internal/models"
	"github.com/campushq/rolegate/internal/permissions"
	apperrors "github.com/campushq/rolegate/pkg/errors"
	"github.com/campushq/rolegate/pkg/logger"
	"github.com/campushq/rolegate/pkg/metrics"
)

// RoleChangeConfig tunes the transition policy.
type RoleChangeConfig struct {
	// RequireApprovalRoles always need an approval step when targeted.
	RequireApprovalRoles []models.Role
	// AutoApproveRoles may be entered without approval when no stricter rule
	// applies first.
	AutoApproveRoles []models.Role
	// RequestTTL bounds how long a pending request stays reviewable.
	// Defaults to 7 days.
	RequestTTL time.Duration
}

func (c *RoleChangeConfig) applyDefaults() {
	if c.RequestTTL <= 0 {
		c.RequestTTL = 7 * 24 * time.Hour
	}
}

// RoleChangeService validates and executes role transitions, routing them
// through the approval workflow when policy demands it.
type RoleChangeService struct {
	db       *gorm.DB
	checker  *permissions.Checker
	audit    *RoleAuditService
	notifier Notifier
	cfg      RoleChangeConfig
	log      *zap.Logger
	now      func() time.Time
}

func NewRoleChangeService(db *gorm.DB, checker *permissions.Checker, audit *RoleAuditService, notifier Notifier, cfg RoleChangeConfig) (*RoleChangeService, error) {
	if db == nil {
		return nil, fmt.Errorf("role change service: database handle is required")
	}
	if checker == nil {
		return nil, fmt.Errorf("role change service: permission checker is required")
	}
	if audit == nil {
		return nil, fmt.Errorf("role change service: audit service is required")
	}
	if notifier == nil {
		notifier = NewLogNotifier()
	}
	cfg.applyDefaults()
	return &RoleChangeService{
		db:       db,
		checker:  checker,
		audit:    audit,
		notifier: notifier,
		cfg:      cfg,
		log:      logger.WithModule("rolechange"),
		now:      time.Now,
	}, nil
}

// RoleChangeInput describes one requested transition.
type RoleChangeInput struct {
	UserID             string      `json:"user_id"`
	RequestedBy        string      `json:"requested_by"`
	CurrentRole        models.Role `json:"current_role"`
	NewRole            models.Role `json:"new_role"`
	Reason             string      `json:"reason"`
	InstitutionID      string      `json:"institution_id"`
	DepartmentID       string      `json:"department_id"`
	VerificationMethod string      `json:"verification_method"`
	IPAddress          string      `json:"-"`
	UserAgent          string      `json:"-"`
	SessionID          string      `json:"-"`
}

// ValidationResult reports whether a transition may proceed and under what
// conditions.
type ValidationResult struct {
	IsValid              bool     `json:"is_valid"`
	Errors               []string `json:"errors,omitempty"`
	Warnings             []string `json:"warnings,omitempty"`
	RequiresApproval     bool     `json:"requires_approval"`
	RequiresVerification bool     `json:"requires_verification"`
}

// ProcessOptions adjusts how a validated transition is carried out.
type ProcessOptions struct {
	// BypassApproval executes immediately even when policy wants an approval
	// step. Reserved for system administrators; the bypass is audited.
	BypassApproval bool
}

// ProcessResult is the outcome of a Process call. Exactly one of Assignment
// and Request is set on success.
type ProcessResult struct {
	Success    bool                       `json:"success"`
	Error      string                     `json:"error,omitempty"`
	Assignment *models.UserRoleAssignment `json:"assignment,omitempty"`
	Request    *models.RoleRequest        `json:"request,omitempty"`
}

// ImpactPreview lists the permission delta of a prospective transition.
type ImpactPreview struct {
	FromRole           models.Role `json:"from_role"`
	ToRole             models.Role `json:"to_role"`
	CurrentPermissions []string    `json:"current_permissions"`
	NewPermissions     []string    `json:"new_permissions"`
	AddedPermissions   []string    `json:"added_permissions"`
	RemovedPermissions []string    `json:"removed_permissions"`
	IsUpgrade          bool        `json:"is_upgrade"`
}

// Validate checks a transition without side effects. Policy violations land
// in the result's Errors; only storage failures surface as an error return.
func (s *RoleChangeService) Validate(ctx context.Context, in RoleChangeInput) (*ValidationResult, error) {
	ctx = ensureContext(ctx)
	result := &ValidationResult{}

	if in.UserID == "" {
		result.Errors = append(result.Errors, "user id is required")
	}
	if in.Reason == "" {
		result.Errors = append(result.Errors, "a reason is required")
	}
	if !in.CurrentRole.IsValid() {
		result.Errors = append(result.Errors, fmt.Sprintf("unknown current role %q", in.CurrentRole))
	}
	if !in.NewRole.IsValid() {
		result.Errors = append(result.Errors, fmt.Sprintf("unknown requested role %q", in.NewRole))
	}
	if in.CurrentRole.IsValid() && in.NewRole.IsValid() && in.CurrentRole == in.NewRole {
		result.Errors = append(result.Errors, "requested role matches the current role")
	}

	if in.UserID != "" && in.CurrentRole.IsValid() {
		held, err := s.holdsRole(ctx, in.UserID, in.CurrentRole)
		if err != nil {
			return nil, err
		}
		if !held {
			result.Errors = append(result.Errors, fmt.Sprintf("user does not currently hold role %s", in.CurrentRole))
		}
	}

	if in.RequestedBy != "" && in.RequestedBy != in.UserID {
		allowed, err := s.checker.HasPermission(ctx, in.RequestedBy, "role.assign", &permissions.ResourceContext{
			InstitutionID: in.InstitutionID,
			DepartmentID:  in.DepartmentID,
		})
		if err != nil {
			return nil, fmt.Errorf("role change service: check actor permission: %w", err)
		}
		if !allowed {
			result.Errors = append(result.Errors, "requesting user is not allowed to assign roles")
		}
	}

	if in.UserID != "" {
		pending, err := s.pendingRequestExists(ctx, in.UserID)
		if err != nil {
			return nil, err
		}
		if pending {
			result.Warnings = append(result.Warnings, "user already has a pending role request")
		}
	}

	if in.CurrentRole.IsValid() && in.NewRole.IsValid() {
		result.RequiresApproval, result.RequiresVerification = s.transitionPolicy(in.CurrentRole, in.NewRole)
	}

	result.IsValid = len(result.Errors) == 0
	return result, nil
}

// transitionPolicy resolves the approval and verification requirements for a
// transition. Rules are ordered strictest first; the first match wins.
func (s *RoleChangeService) transitionPolicy(current, next models.Role) (requiresApproval, requiresVerification bool) {
	switch {
	case next.IsAdministrative() || s.roleListed(s.cfg.RequireApprovalRoles, next):
		return true, false
	case current == models.RoleStudent && next == models.RoleTeacher:
		return true, true
	case next.IsUpgradeFrom(current):
		return true, false
	case next == models.RoleStudent:
		return false, false
	case s.roleListed(s.cfg.AutoApproveRoles, next):
		return false, false
	default:
		return true, false
	}
}

func (s *RoleChangeService) roleListed(list []models.Role, role models.Role) bool {
	for _, r := range list {
		if r == role {
			return true
		}
	}
	return false
}

// Process validates the transition and either executes it directly or opens a
// pending request for approval. Validation failures are reported in the
// result, not as errors.
func (s *RoleChangeService) Process(ctx context.Context, in RoleChangeInput, opts ProcessOptions) (*ProcessResult, error) {
	ctx = ensureContext(ctx)

	validation, err := s.Validate(ctx, in)
	if err != nil {
		return nil, err
	}
	if !validation.IsValid {
		metrics.RoleChanges.WithLabelValues("invalid").Inc()
		return &ProcessResult{
			Success: false,
			Error:   "Validation failed: " + strings.Join(validation.Errors, "; "),
		}, nil
	}

	actor := in.RequestedBy
	if actor == "" {
		actor = in.UserID
	}

	if validation.RequiresApproval && !opts.BypassApproval {
		request, err := s.createRequest(ctx, in, actor)
		if err != nil {
			return nil, err
		}
		metrics.RoleChanges.WithLabelValues("pending").Inc()
		s.notifier.RoleChangeRequested(ctx, RoleChangeNotification{
			UserID:    in.UserID,
			ActorID:   actor,
			OldRole:   in.CurrentRole,
			NewRole:   in.NewRole,
			Reason:    in.Reason,
			RequestID: request.ID,
		})
		return &ProcessResult{Success: true, Request: request}, nil
	}

	assignment, err := s.execute(ctx, in, actor)
	if err != nil {
		metrics.RoleChanges.WithLabelValues("failed").Inc()
		return nil, err
	}

	meta := map[string]any{}
	if opts.BypassApproval && validation.RequiresApproval {
		meta["bypass_approval"] = true
	}
	if in.VerificationMethod != "" {
		meta["verification_method"] = in.VerificationMethod
	}
	s.auditExecutedChange(ctx, in, actor, meta)

	metrics.RoleChanges.WithLabelValues("executed").Inc()
	s.notifier.RoleChanged(ctx, RoleChangeNotification{
		UserID:  in.UserID,
		ActorID: actor,
		OldRole: in.CurrentRole,
		NewRole: in.NewRole,
		Reason:  in.Reason,
	})
	return &ProcessResult{Success: true, Assignment: assignment}, nil
}

// execute swaps the user's role inside one transaction: the current
// assignment is revoked and the new one created, atomically. It then drops
// the user's cached permission decisions.
func (s *RoleChangeService) execute(ctx context.Context, in RoleChangeInput, actor string) (*models.UserRoleAssignment, error) {
	now := s.now().UTC()
	assignment := &models.UserRoleAssignment{
		UserID:        in.UserID,
		Role:          in.NewRole,
		Status:        models.AssignmentActive,
		InstitutionID: in.InstitutionID,
		DepartmentID:  in.DepartmentID,
		AssignedBy:    actor,
		AssignedAt:    now,
	}
	if err := assignment.Validate(); err != nil {
		return nil, fmt.Errorf("role change service: %w", err)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.UserRoleAssignment{}).
			Where("user_id = ? AND role = ? AND status = ?", in.UserID, in.CurrentRole, models.AssignmentActive).
			Updates(map[string]any{
				"status":        models.AssignmentRevoked,
				"revoked_at":    now,
				"revoke_reason": "Role change: " + in.Reason,
			})
		if res.Error != nil {
			return fmt.Errorf("revoke current role: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("user no longer holds role %s", in.CurrentRole)
		}
		if err := tx.Create(assignment).Error; err != nil {
			return ErrInconsistentState.WithInternal(err)
		}
		return nil
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			// The transaction already rolled the revoke back, but the failure
			// mode still deserves its own error identity for callers.
			return nil, appErr
		}
		return nil, fmt.Errorf("role change service: execute transition: %w", err)
	}

	if err := s.checker.InvalidateUserCache(ctx, in.UserID); err != nil {
		s.log.Warn("permission cache invalidation failed",
			zap.String("user_id", in.UserID), zap.Error(err))
	}
	return assignment, nil
}

func (s *RoleChangeService) createRequest(ctx context.Context, in RoleChangeInput, actor string) (*models.RoleRequest, error) {
	request := &models.RoleRequest{
		UserID:             in.UserID,
		CurrentRole:        in.CurrentRole,
		RequestedRole:      in.NewRole,
		Reason:             in.Reason,
		VerificationMethod: in.VerificationMethod,
		Status:             models.RequestPending,
		RequestedBy:        actor,
		InstitutionID:      in.InstitutionID,
		DepartmentID:       in.DepartmentID,
		ExpiresAt:          s.now().UTC().Add(s.cfg.RequestTTL),
	}
	if err := s.db.WithContext(ctx).Create(request).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.ErrConflict
		}
		return nil, fmt.Errorf("role change service: store request: %w", err)
	}

	if _, err := s.audit.LogRoleRequest(ctx, AuditEntryInput{
		UserID:        in.UserID,
		ChangedBy:     actor,
		OldRole:       in.CurrentRole,
		NewRole:       in.NewRole,
		Reason:        in.Reason,
		InstitutionID: in.InstitutionID,
		DepartmentID:  in.DepartmentID,
		Metadata:      map[string]any{"request_id": request.ID},
		IPAddress:     in.IPAddress,
		UserAgent:     in.UserAgent,
		SessionID:     in.SessionID,
	}); err != nil {
		return nil, err
	}
	return request, nil
}

// Approve executes a pending request on behalf of an approver holding
// role.approve in the request's institution.
func (s *RoleChangeService) Approve(ctx context.Context, requestID, approverID, notes string) (*models.UserRoleAssignment, error) {
	ctx = ensureContext(ctx)

	request, err := s.loadPendingRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := s.requireApprover(ctx, approverID, request); err != nil {
		return nil, err
	}

	in := RoleChangeInput{
		UserID:        request.UserID,
		RequestedBy:   approverID,
		CurrentRole:   request.CurrentRole,
		NewRole:       request.RequestedRole,
		Reason:        request.Reason,
		InstitutionID: request.InstitutionID,
		DepartmentID:  request.DepartmentID,
	}
	assignment, err := s.execute(ctx, in, approverID)
	if err != nil {
		return nil, err
	}

	if err := s.resolveRequest(ctx, request, models.RequestApproved, approverID, notes); err != nil {
		return nil, err
	}

	if entry, err := s.audit.LogRoleRequestDecision(ctx, AuditEntryInput{
		UserID:        request.UserID,
		ChangedBy:     approverID,
		OldRole:       request.CurrentRole,
		NewRole:       request.RequestedRole,
		Reason:        request.Reason,
		InstitutionID: request.InstitutionID,
		DepartmentID:  request.DepartmentID,
		Metadata:      map[string]any{"request_id": request.ID, "approval_notes": notes},
	}, true); err != nil {
		return nil, err
	} else if _, derr := s.audit.DetectSuspicious(ctx, entry); derr != nil {
		s.log.Warn("suspicion heuristics reported errors", zap.Error(derr))
	}

	metrics.RoleChanges.WithLabelValues("approved").Inc()
	s.notifier.RoleChangeApproved(ctx, RoleChangeNotification{
		UserID:    request.UserID,
		ActorID:   approverID,
		OldRole:   request.CurrentRole,
		NewRole:   request.RequestedRole,
		RequestID: request.ID,
	})
	return assignment, nil
}

// Deny resolves a pending request without executing it.
func (s *RoleChangeService) Deny(ctx context.Context, requestID, approverID, reason string) error {
	ctx = ensureContext(ctx)

	request, err := s.loadPendingRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if err := s.requireApprover(ctx, approverID, request); err != nil {
		return err
	}

	if err := s.resolveRequest(ctx, request, models.RequestDenied, approverID, reason); err != nil {
		return err
	}

	if _, err := s.audit.LogRoleRequestDecision(ctx, AuditEntryInput{
		UserID:        request.UserID,
		ChangedBy:     approverID,
		OldRole:       request.CurrentRole,
		NewRole:       request.RequestedRole,
		Reason:        reason,
		InstitutionID: request.InstitutionID,
		DepartmentID:  request.DepartmentID,
		Metadata:      map[string]any{"request_id": request.ID},
	}, false); err != nil {
		return err
	}

	metrics.RoleChanges.WithLabelValues("denied").Inc()
	s.notifier.RoleChangeDenied(ctx, RoleChangeNotification{
		UserID:    request.UserID,
		ActorID:   approverID,
		OldRole:   request.CurrentRole,
		NewRole:   request.RequestedRole,
		Reason:    reason,
		RequestID: request.ID,
	})
	return nil
}

// PendingRequests lists the open requests, optionally for one user.
func (s *RoleChangeService) PendingRequests(ctx context.Context, userID string) ([]models.RoleRequest, error) {
	ctx = ensureContext(ctx)
	query := s.db.WithContext(ctx).Where("status = ?", models.RequestPending)
	if userID != "" {
		query = query.Where("user_id = ?", userID)
	}
	var requests []models.RoleRequest
	if err := query.Order("created_at ASC").Find(&requests).Error; err != nil {
		return nil, fmt.Errorf("role change service: list pending requests: %w", err)
	}
	return requests, nil
}

// GetRequest loads one role request by id.
func (s *RoleChangeService) GetRequest(ctx context.Context, requestID string) (*models.RoleRequest, error) {
	ctx = ensureContext(ctx)
	var request models.RoleRequest
	if err := s.db.WithContext(ctx).First(&request, "id = ?", requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("role change service: load request: %w", err)
	}
	return &request, nil
}

// Preview reports the permission delta of a prospective transition without
// touching any state.
func (s *RoleChangeService) Preview(fromRole, toRole models.Role) (*ImpactPreview, error) {
	if !fromRole.IsValid() {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown role %q", fromRole))
	}
	if !toRole.IsValid() {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown role %q", toRole))
	}

	current := permissions.RolePermissionIDs(fromRole)
	next := permissions.RolePermissionIDs(toRole)

	return &ImpactPreview{
		FromRole:           fromRole,
		ToRole:             toRole,
		CurrentPermissions: current,
		NewPermissions:     next,
		AddedPermissions:   difference(next, current),
		RemovedPermissions: difference(current, next),
		IsUpgrade:          toRole.IsUpgradeFrom(fromRole),
	}, nil
}

func difference(a, b []string) []string {
	seen := make(map[string]struct{}, len(b))
	for _, id := range b {
		seen[id] = struct{}{}
	}
	var out []string
	for _, id := range a {
		if _, ok := seen[id]; !ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func (s *RoleChangeService) loadPendingRequest(ctx context.Context, requestID string) (*models.RoleRequest, error) {
	request, err := s.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Status != models.RequestPending {
		return nil, ErrRequestNotPending
	}
	if !request.ExpiresAt.IsZero() && s.now().UTC().After(request.ExpiresAt) {
		if err := s.expireRequest(ctx, request); err != nil {
			return nil, err
		}
		return nil, ErrRequestExpired
	}
	return request, nil
}

func (s *RoleChangeService) expireRequest(ctx context.Context, request *models.RoleRequest) error {
	if err := s.db.WithContext(ctx).Model(request).
		Update("status", models.RequestExpired).Error; err != nil {
		return fmt.Errorf("role change service: expire request: %w", err)
	}
	if _, err := s.audit.LogRoleExpiration(ctx, AuditEntryInput{
		UserID:        request.UserID,
		ChangedBy:     "system",
		OldRole:       request.CurrentRole,
		NewRole:       request.RequestedRole,
		Reason:        "role request expired before review",
		InstitutionID: request.InstitutionID,
		DepartmentID:  request.DepartmentID,
		Metadata:      map[string]any{"request_id": request.ID},
	}); err != nil {
		s.log.Warn("audit of request expiry failed", zap.Error(err))
	}
	return nil
}

func (s *RoleChangeService) resolveRequest(ctx context.Context, request *models.RoleRequest, status models.RequestStatus, reviewerID, notes string) error {
	now := s.now().UTC()
	updates := map[string]any{
		"status":       status,
		"reviewed_by":  reviewerID,
		"review_notes": notes,
		"reviewed_at":  now,
	}
	if err := s.db.WithContext(ctx).Model(request).Updates(updates).Error; err != nil {
		return fmt.Errorf("role change service: resolve request: %w", err)
	}
	request.Status = status
	request.ReviewedBy = reviewerID
	request.ReviewNotes = notes
	request.ReviewedAt = &now
	return nil
}

func (s *RoleChangeService) requireApprover(ctx context.Context, approverID string, request *models.RoleRequest) error {
	if approverID == "" {
		return apperrors.ErrUnauthorized
	}
	allowed, err := s.checker.HasPermission(ctx, approverID, "role.approve", &permissions.ResourceContext{
		InstitutionID: request.InstitutionID,
		DepartmentID:  request.DepartmentID,
	})
	if err != nil {
		return fmt.Errorf("role change service: check approver permission: %w", err)
	}
	if !allowed {
		return apperrors.ErrForbidden
	}
	return nil
}

func (s *RoleChangeService) auditExecutedChange(ctx context.Context, in RoleChangeInput, actor string, meta map[string]any) {
	entry, err := s.audit.LogRoleChange(ctx, AuditEntryInput{
		UserID:        in.UserID,
		ChangedBy:     actor,
		OldRole:       in.CurrentRole,
		NewRole:       in.NewRole,
		Reason:        in.Reason,
		InstitutionID: in.InstitutionID,
		DepartmentID:  in.DepartmentID,
		Metadata:      meta,
		IPAddress:     in.IPAddress,
		UserAgent:     in.UserAgent,
		SessionID:     in.SessionID,
	})
	if err != nil {
		// The role swap already committed; losing the audit trail is serious
		// enough to log loudly but not to undo the change.
		s.log.Error("audit of executed role change failed",
			zap.String("user_id", in.UserID), zap.Error(err))
		return
	}
	if _, err := s.audit.DetectSuspicious(ctx, entry); err != nil {
		s.log.Warn("suspicion heuristics reported errors", zap.Error(err))
	}
}

func (s *RoleChangeService) holdsRole(ctx context.Context, userID string, role models.Role) (bool, error) {
	var assignments []models.UserRoleAssignment
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND role = ? AND status = ?", userID, role, models.AssignmentActive).
		Find(&assignments).Error
	if err != nil {
		return false, fmt.Errorf("role change service: load assignments: %w", err)
	}
	now := s.now()
	for i := range assignments {
		if assignments[i].UsableAt(now) {
			return true, nil
		}
	}
	return false, nil
}

func (s *RoleChangeService) pendingRequestExists(ctx context.Context, userID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.RoleRequest{}).
		Where("user_id = ? AND status = ?", userID, models.RequestPending).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("role change service: count pending requests: %w", err)
	}
	return count > 0, nil
}

// ExpireAssignments transitions lapsed assignments to expired and audits each
// one. Meant to be driven by the maintenance sweeper.
func (s *RoleChangeService) ExpireAssignments(ctx context.Context) (int, error) {
	ctx = ensureContext(ctx)
	now := s.now().UTC()

	var lapsed []models.UserRoleAssignment
	err := s.db.WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", models.AssignmentActive, now).
		Find(&lapsed).Error
	if err != nil {
		return 0, fmt.Errorf("role change service: find lapsed assignments: %w", err)
	}

	expired := 0
	for i := range lapsed {
		a := &lapsed[i]
		if err := s.db.WithContext(ctx).Model(a).
			Update("status", models.AssignmentExpired).Error; err != nil {
			return expired, fmt.Errorf("role change service: expire assignment %s: %w", a.ID, err)
		}
		expired++
		if err := s.checker.InvalidateUserCache(ctx, a.UserID); err != nil {
			s.log.Warn("permission cache invalidation failed",
				zap.String("user_id", a.UserID), zap.Error(err))
		}
		if _, err := s.audit.LogRoleExpiration(ctx, AuditEntryInput{
			UserID:        a.UserID,
			ChangedBy:     "system",
			OldRole:       a.Role,
			Reason:        "assignment reached its expiration",
			InstitutionID: a.InstitutionID,
			DepartmentID:  a.DepartmentID,
		}); err != nil {
			s.log.Warn("audit of assignment expiry failed",
				zap.String("assignment_id", a.ID), zap.Error(err))
		}
	}
	return expired, nil
}

// ExpirePendingRequests transitions overdue pending requests to expired.
func (s *RoleChangeService) ExpirePendingRequests(ctx context.Context) (int, error) {
	ctx = ensureContext(ctx)
	now := s.now().UTC()

	var overdue []models.RoleRequest
	err := s.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", models.RequestPending, now).
		Find(&overdue).Error
	if err != nil {
		return 0, fmt.Errorf("role change service: find overdue requests: %w", err)
	}

	for i := range overdue {
		if err := s.expireRequest(ctx, &overdue[i]); err != nil {
			return i, err
		}
	}
	return len(overdue), nil
}
