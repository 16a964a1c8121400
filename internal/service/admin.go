package service

import (
	"context"

	"jewelpos/backend/internal/domain"
)

func (s *Service) GetSettings(ctx context.Context) (domain.Settings, error) {
	return s.repo.GetSettings(ctx)
}

func (s *Service) UpdateSettings(ctx context.Context, settings domain.Settings) (domain.Settings, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return nil, err
	}
	if err := s.repo.PutSettings(ctx, settings); err != nil {
		return nil, err
	}
	s.logAudit(ctx, "settings_update", "settings", "system", "")
	return settings, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if limit < 1 || limit > 1000 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, limit)
}

// ListOutbox returns sales still waiting to be stored.
func (s *Service) ListOutbox(ctx context.Context) ([]domain.OutboxEntry, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if s.outbox == nil {
		return []domain.OutboxEntry{}, nil
	}
	return s.outbox.Pending(ctx)
}
