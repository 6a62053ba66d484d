package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/isdelr/userdir-be/internal/models"
	"github.com/isdelr/userdir-be/internal/repository"
	"github.com/isdelr/userdir-be/internal/services"
)

const maintenanceTimeout = 2 * time.Minute

// Scheduler runs periodic storage maintenance on a cron schedule.
type Scheduler struct {
	cron      *cron.Cron
	optimizer repository.Optimizer
	eventSvc  services.EventServiceProvider
}

// NewScheduler validates spec and creates a scheduler. eventSvc may be nil.
func NewScheduler(spec string, optimizer repository.Optimizer, eventSvc services.EventServiceProvider) (*Scheduler, error) {
	s := &Scheduler{
		cron:      cron.New(),
		optimizer: optimizer,
		eventSvc:  eventSvc,
	}
	if _, err := s.cron.AddFunc(spec, s.RunMaintenance); err != nil {
		return nil, fmt.Errorf("invalid maintenance schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	log.Info().Msg("Starting maintenance scheduler...")
	s.cron.Start()
}

// Stop halts the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Info().Msg("Stopped maintenance scheduler.")
}

// RunMaintenance optimizes the store and records the outcome.
func (s *Scheduler) RunMaintenance() {
	ctx, cancel := context.WithTimeout(context.Background(), maintenanceTimeout)
	defer cancel()

	start := time.Now()
	err := s.optimizer.Optimize(ctx)
	elapsed := time.Since(start)

	level, msg := models.LevelInfo, fmt.Sprintf("Storage maintenance completed in %s.", elapsed.Round(time.Millisecond))
	if err != nil {
		log.Error().Err(err).Msg("Storage maintenance failed")
		level, msg = models.LevelError, fmt.Sprintf("Storage maintenance failed: %v", err)
	} else {
		log.Info().Dur("elapsed", elapsed).Msg("Storage maintenance completed")
	}

	if s.eventSvc == nil {
		return
	}
	if err := s.eventSvc.CreateEvent(ctx, models.EventSystemMaintenance, level, msg, nil); err != nil {
		log.Warn().Err(err).Msg("Failed to record maintenance event")
	}
}
