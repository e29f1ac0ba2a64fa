package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"propsync/config"
	"propsync/models"
	"propsync/services"
	"propsync/storage"
)

// Triggerable allows workers to be triggered manually
type Triggerable interface {
	Trigger()
}

// resumeDelay is how long a pause lasts before the daemon lifts it on its
// own. Operators pause to ride out vendor incidents, not forever.
const resumeDelay = 15 * time.Minute

type Scheduler struct {
	cfg      *config.Config
	importer *services.Importer
	store    *storage.SQLiteStore
	cron     *cron.Cron
	ticker   *time.Ticker
	stopCh   chan struct{}

	mediaWorker       Triggerable
	healthcheckWorker Triggerable
}

func New(cfg *config.Config, importer *services.Importer, store *storage.SQLiteStore) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		importer: importer,
		store:    store,
		cron:     cron.New(),
		stopCh:   make(chan struct{}),
	}
}

// SetWorkers registers background workers for manual triggering
func (s *Scheduler) SetWorkers(media, healthcheck Triggerable) {
	s.mediaWorker = media
	s.healthcheckWorker = healthcheck
}

func (s *Scheduler) Start(ctx context.Context) error {
	// Always start background runners
	go s.pollCommands(ctx)
	go s.pollAutoResume(ctx)

	useCron := false

	// Feeds with their own cron expression run on it instead of the
	// global schedule.
	for name, fc := range s.cfg.Feeds {
		if !fc.Enabled || fc.Cron == "" {
			continue
		}
		feedName := name
		log.Printf("Scheduling feed %s with cron: %s", feedName, fc.Cron)
		_, err := s.cron.AddFunc(fc.Cron, func() {
			if s.importer.IsPaused() {
				log.Printf("Imports are paused, skipping cron run for %s", feedName)
				return
			}
			if _, err := s.importer.RunFeedByName(ctx, feedName, nil); err != nil {
				log.Printf("Cron run error for %s: %v", feedName, err)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression for feed %s: %w", feedName, err)
		}
		useCron = true
	}

	if s.cfg.Scheduler.Cron != "" {
		log.Printf("Starting scheduler with cron: %s", s.cfg.Scheduler.Cron)
		_, err := s.cron.AddFunc(s.cfg.Scheduler.Cron, func() {
			s.importer.RunScheduled(ctx)
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		useCron = true
	} else if s.cfg.Scheduler.Interval > 0 {
		log.Printf("Starting scheduler with interval: %s", s.cfg.Scheduler.Interval)
		s.ticker = time.NewTicker(s.cfg.Scheduler.Interval)
		go func() {
			for {
				select {
				case <-s.ticker.C:
					s.importer.RunScheduled(ctx)
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	} else {
		log.Println("No schedule configured, daemon will only respond to commands")
	}

	if useCron {
		s.cron.Start()
	}

	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)
}

func (s *Scheduler) pollCommands(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cmds, err := s.store.GetPendingCommands()
			if err != nil {
				log.Printf("Error getting commands: %v", err)
				continue
			}

			for _, cmd := range cmds {
				log.Printf("Processing command: %s", cmd.Command)
				if err := s.handleCommand(&cmd); err != nil {
					log.Printf("Command error: %v", err)
				}
				if err := s.store.MarkCommandProcessed(cmd.ID); err != nil {
					log.Printf("Error marking command processed: %v", err)
				}
			}
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) handleCommand(cmd *models.Command) error {
	switch cmd.Command {
	case models.CmdRunMedia:
		if s.mediaWorker != nil {
			s.mediaWorker.Trigger()
			log.Println("Media worker triggered via command")
		}
		return nil
	case models.CmdRunHealthcheck:
		if s.healthcheckWorker != nil {
			s.healthcheckWorker.Trigger()
			log.Println("Healthcheck worker triggered via command")
		}
		return nil
	default:
		return s.importer.HandleCommand(cmd)
	}
}

func (s *Scheduler) TriggerNow(ctx context.Context) error {
	return s.importer.RunAll(ctx)
}

// pollAutoResume lifts a pause once it has outlived resumeDelay.
func (s *Scheduler) pollAutoResume(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !s.importer.IsPaused() {
				continue
			}
			pausedAt := s.importer.PausedSince()
			if pausedAt.IsZero() || time.Since(pausedAt) < resumeDelay {
				continue
			}
			log.Printf("Pause exceeded %s, resuming imports", resumeDelay)
			s.importer.Resume()
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}
