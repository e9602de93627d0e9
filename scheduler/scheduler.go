package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"craiseek/config"
	"craiseek/models"
	"craiseek/scraper"
	"craiseek/storage"
)

const commandPollInterval = 2 * time.Second

// Scheduler drives cycles on a fixed interval or a cron expression and
// polls the durable command queue so an operator can run, pause and resume
// without touching the process.
type Scheduler struct {
	cfg          *config.Config
	orchestrator *scraper.Orchestrator
	store        storage.Store
	cron         *cron.Cron
	ticker       *time.Ticker
	stopCh       chan struct{}
	stopOnce     sync.Once

	mu     sync.Mutex
	paused bool
}

func New(cfg *config.Config, orchestrator *scraper.Orchestrator, store storage.Store) *Scheduler {
	return &Scheduler{
		cfg:          cfg,
		orchestrator: orchestrator,
		store:        store,
		cron:         cron.New(),
		stopCh:       make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	go s.pollCommands(ctx)

	if s.cfg.Scheduler.Cron != "" {
		log.Printf("Starting scheduler with cron: %s", s.cfg.Scheduler.Cron)
		_, err := s.cron.AddFunc(s.cfg.Scheduler.Cron, func() {
			s.runScheduled(ctx)
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.cron.Start()
	} else if s.cfg.Scheduler.Interval > 0 {
		log.Printf("Starting scheduler with interval: %s", s.cfg.Scheduler.Interval)
		s.ticker = time.NewTicker(s.cfg.Scheduler.Interval)
		go func() {
			for {
				select {
				case <-s.ticker.C:
					s.runScheduled(ctx)
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

	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	if s.ticker != nil {
		s.ticker.Stop()
	}
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Paused reports whether scheduled runs are currently suppressed. Manual
// run_now commands still fire while paused.
func (s *Scheduler) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *Scheduler) setPaused(v bool) {
	s.mu.Lock()
	s.paused = v
	s.mu.Unlock()
}

func (s *Scheduler) runScheduled(ctx context.Context) {
	if s.Paused() {
		log.Println("Scheduler paused, skipping run")
		return
	}
	if err := s.orchestrator.RunAll(ctx); err != nil {
		log.Printf("Scheduled run error: %v", err)
	}
	s.orchestrator.MarkSleeping()
}

// TriggerNow runs a full pass immediately, bypassing the pause flag.
func (s *Scheduler) TriggerNow(ctx context.Context) error {
	err := s.orchestrator.RunAll(ctx)
	s.orchestrator.MarkSleeping()
	return err
}

func (s *Scheduler) pollCommands(ctx context.Context) {
	ticker := time.NewTicker(commandPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cmds, err := s.store.PendingCommands(ctx)
			if err != nil {
				log.Printf("Error getting commands: %v", err)
				continue
			}

			for _, cmd := range cmds {
				log.Printf("Processing command: %s", cmd.Command)
				if err := s.handleCommand(ctx, &cmd); err != nil {
					log.Printf("Command error: %v", err)
				}
				if err := s.store.MarkCommandProcessed(ctx, cmd.ID); err != nil {
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

func (s *Scheduler) handleCommand(ctx context.Context, cmd *models.Command) error {
	switch cmd.Command {
	case models.CmdRunNow:
		return s.TriggerNow(ctx)
	case models.CmdPause:
		s.setPaused(true)
		log.Println("Scheduled runs paused")
		return nil
	case models.CmdResume:
		s.setPaused(false)
		log.Println("Scheduled runs resumed")
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd.Command)
	}
}
