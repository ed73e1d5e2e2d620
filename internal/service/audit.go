package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable/internal/models"
)

// recordAudit appends an audit entry. Failures are logged and never fail the caller.
func recordAudit(ctx context.Context, audit auditLogger, logger *zap.Logger, actor, action, resource, resourceID string, oldValue, newValue interface{}) {
	if audit == nil {
		return
	}
	entry := &models.AuditLog{
		Action:     action,
		Resource:   resource,
		ResourceID: optionalString(resourceID),
		UserID:     optionalString(actor),
	}
	if oldValue != nil {
		entry.OldValues, _ = json.Marshal(oldValue)
	}
	if newValue != nil {
		entry.NewValues, _ = json.Marshal(newValue)
	}
	if err := audit.Create(ctx, entry); err != nil {
		logger.Warn("audit log write failed", zap.String("action", action), zap.String("resource_id", resourceID), zap.Error(err))
	}
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
