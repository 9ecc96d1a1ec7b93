package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/campushq/rolegate/internal/models"
	"github.com/campushq/rolegate/pkg/logger"
)

// RoleChangeNotification carries the details delivered to interested parties
// when a role change moves through the workflow.
type RoleChangeNotification struct {
	UserID    string
	ActorID   string
	OldRole   models.Role
	NewRole   models.Role
	Reason    string
	RequestID string
}

// Notifier delivers role-change notifications. Delivery is best effort;
// implementations must not block the workflow and must swallow their own
// failures.
type Notifier interface {
	RoleChangeRequested(ctx context.Context, n RoleChangeNotification)
	RoleChanged(ctx context.Context, n RoleChangeNotification)
	RoleChangeApproved(ctx context.Context, n RoleChangeNotification)
	RoleChangeDenied(ctx context.Context, n RoleChangeNotification)
}

// LogNotifier writes notifications to the application log. It is the default
// when no external delivery channel is configured.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{log: logger.WithModule("notifier")}
}

func (n *LogNotifier) RoleChangeRequested(_ context.Context, msg RoleChangeNotification) {
	n.emit("role change requested", msg)
}

func (n *LogNotifier) RoleChanged(_ context.Context, msg RoleChangeNotification) {
	n.emit("role changed", msg)
}

func (n *LogNotifier) RoleChangeApproved(_ context.Context, msg RoleChangeNotification) {
	n.emit("role change approved", msg)
}

func (n *LogNotifier) RoleChangeDenied(_ context.Context, msg RoleChangeNotification) {
	n.emit("role change denied", msg)
}

func (n *LogNotifier) emit(event string, msg RoleChangeNotification) {
	n.log.Info(event,
		zap.String("user_id", msg.UserID),
		zap.String("actor_id", msg.ActorID),
		zap.String("old_role", msg.OldRole.String()),
		zap.String("new_role", msg.NewRole.String()),
		zap.String("request_id", msg.RequestID),
	)
}
