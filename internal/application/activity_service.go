package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BerniPi/BGBB-IKT/internal/persistence"
)

const (
	defaultActivityLimit = 100
	maxActivityLimit     = 1000
)

// ActivityReader lists audit log records.
type ActivityReader interface {
	ListActivity(ctx context.Context, filter persistence.ActivityFilter) ([]persistence.ActivityEntry, error)
}

// ActivityService exposes the audit log.
type ActivityService struct {
	activity ActivityReader
	logger   *slog.Logger
}

// NewActivityService constructs an activity service.
func NewActivityService(activity ActivityReader, logger *slog.Logger) *ActivityService {
	return &ActivityService{activity: activity, logger: defaultLogger(logger)}
}

// ListActivity returns audit records newest first.
func (s *ActivityService) ListActivity(ctx context.Context, principal Principal, query ActivityQuery) ([]ActivityEntry, error) {
	if s == nil {
		return nil, fmt.Errorf("ActivityService is nil")
	}
	if err := requirePrincipal(principal); err != nil {
		return nil, err
	}

	limit := query.Limit
	switch {
	case limit == 0:
		limit = defaultActivityLimit
	case limit < 0 || limit > maxActivityLimit:
		return nil, fieldError("limit", fmt.Sprintf("must be between 1 and %d", maxActivityLimit))
	}

	entries, err := s.activity.ListActivity(ctx, persistence.ActivityFilter{
		Limit:      limit,
		EntityType: strings.TrimSpace(query.EntityType),
		EntityID:   strings.TrimSpace(query.EntityID),
	})
	if err != nil {
		serviceLogger(ctx, s.logger, "ActivityService", "ListActivity").
			ErrorContext(ctx, "failed to list activity", "error", err)
		return nil, err
	}

	out := make([]ActivityEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, fromPersistenceActivity(entry))
	}
	return out, nil
}
