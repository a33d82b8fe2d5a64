package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/homepanel/internal/config"
	"github.com/dokzlo13/homepanel/internal/ledger"
)

// CleanupService applies the ledger retention policy on a cron schedule.
type CleanupService struct {
	ledger    *ledger.Ledger
	retention time.Duration
	cron      *cron.Cron
}

// NewCleanupService validates the schedule up front. A non-positive retention disables cleanup.
func NewCleanupService(cfg *config.Config, l *ledger.Ledger) (*CleanupService, error) {
	s := &CleanupService{
		ledger:    l,
		retention: cfg.Ledger.Retention(),
	}
	if s.retention <= 0 {
		return s, nil
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(cfg.Ledger.CleanupSchedule, s.cleanup); err != nil {
		return nil, fmt.Errorf("invalid ledger.cleanup_schedule %q: %w", cfg.Ledger.CleanupSchedule, err)
	}
	return s, nil
}

// Run cleans once, then on schedule until ctx is done
func (s *CleanupService) Run(ctx context.Context) error {
	if s.cron == nil {
		log.Info().Msg("Ledger cleanup is disabled")
		return nil
	}

	s.cleanup()
	s.cron.Start()

	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}

func (s *CleanupService) cleanup() {
	deleted, err := s.ledger.DeleteOlderThan(s.retention)
	if err != nil {
		log.Error().Err(err).Msg("Failed to cleanup old ledger entries")
	} else if deleted > 0 {
		log.Info().Int64("deleted", deleted).Dur("retention", s.retention).Msg("Cleaned up old ledger entries")
	}
}
