// Package feed is the query surface over matches and alerts: the ranked
// per-profile shortlist, unread alerts, tracking toggles and read marks.
package feed

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tendermatch/internal/model"
)

// Store is the read/write surface the feed needs.
type Store interface {
	Feed(ctx context.Context, orgID uuid.UUID, limit int) ([]model.NoticeMatch, error)
	UnreadAlerts(ctx context.Context, orgID uuid.UUID) ([]model.Alert, error)
	ToggleTracking(ctx context.Context, orgID uuid.UUID, ocid string) (bool, error)
	MarkAlertRead(ctx context.Context, alertID uuid.UUID) error
}

// Service serves the opportunity feed.
type Service struct {
	store  Store
	logger *zap.Logger
}

// New builds the feed service.
func New(store Store, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger.Named("feed")}
}

// Matches returns a profile's ranked shortlist: tracked notices first,
// then by score descending.
func (s *Service) Matches(ctx context.Context, orgID uuid.UUID, limit int) ([]model.NoticeMatch, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.store.Feed(ctx, orgID, limit)
}

// UnreadAlerts returns a profile's unread alerts, newest first.
func (s *Service) UnreadAlerts(ctx context.Context, orgID uuid.UUID) ([]model.Alert, error) {
	return s.store.UnreadAlerts(ctx, orgID)
}

// ToggleTracking flips tracking for one (org, notice) pair and returns
// the new state.
func (s *Service) ToggleTracking(ctx context.Context, orgID uuid.UUID, ocid string) (bool, error) {
	tracked, err := s.store.ToggleTracking(ctx, orgID, ocid)
	if err != nil {
		return false, err
	}
	s.logger.Info("tracking toggled",
		zap.String("org", orgID.String()),
		zap.String("ocid", ocid),
		zap.Bool("tracked", tracked))
	return tracked, nil
}

// MarkAlertRead marks one alert as read.
func (s *Service) MarkAlertRead(ctx context.Context, alertID uuid.UUID) error {
	return s.store.MarkAlertRead(ctx, alertID)
}
