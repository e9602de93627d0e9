package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"craiseek/config"
	"craiseek/dispatch"
	"craiseek/logging"
	"craiseek/models"
	"craiseek/notify"
	"craiseek/scheduler"
	"craiseek/scraper"
	"craiseek/storage"
)

var (
	runOnce   = flag.Bool("once", false, "Run one full cycle and exit")
	sourceID  = flag.String("source", "", "With -once, run only this source")
	runNowCmd = flag.Bool("run-now", false, "Enqueue a run_now command for a running daemon and exit")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logFile, err := logging.Setup(cfg.LogPath)
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting craiseek...")
	log.Printf("Loaded %d source configs", len(cfg.Sources))
	for id, src := range cfg.Sources {
		log.Printf("  - %s (%s, %s)", src.Name, id, src.Handler)
	}

	ctx := context.Background()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	if *runNowCmd {
		if err := store.EnqueueCommand(ctx, models.CmdRunNow); err != nil {
			log.Fatalf("Failed to enqueue command: %v", err)
		}
		log.Println("run_now enqueued")
		return
	}

	var archiver *storage.SnapshotArchiver
	if cfg.Snapshot.Configured() {
		archiver, err = storage.NewSnapshotArchiver(ctx, cfg.Snapshot)
		if err != nil {
			log.Fatalf("Failed to set up snapshot archive: %v", err)
		}
		log.Printf("Snapshot archive: s3://%s", cfg.Snapshot.Bucket)
	}

	dispatcher := dispatch.New(store, buildSenders(cfg), cfg.Dispatch)
	orchestrator := scraper.NewOrchestrator(cfg, store, dispatcher, archiver)
	defer orchestrator.Close()

	if *runOnce {
		if *sourceID != "" {
			if err := orchestrator.RunCycle(ctx, *sourceID); err != nil {
				log.Fatalf("Cycle failed: %v", err)
			}
		} else if err := orchestrator.RunAll(ctx); err != nil {
			log.Fatalf("Cycle failed: %v", err)
		}
		log.Println("Cycle complete")
		return
	}

	sched := scheduler.New(cfg, orchestrator, store)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	log.Println("Daemon running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	cancel()
	sched.Stop()
	log.Println("Goodbye!")
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	if cfg.DatabaseURL != "" {
		store, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		log.Println("Connected to Postgres")
		return store, nil
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	log.Printf("SQLite database: %s", cfg.DBPath)
	return store, nil
}

// buildSenders wires one sender per channel that has credentials. Missing
// channels stay unwired; dispatch records them as unavailable rather than
// failing the cycle.
func buildSenders(cfg *config.Config) []notify.Sender {
	if cfg.MockSenders {
		log.Println("MOCK_SENDERS enabled, no real deliveries will happen")
		return []notify.Sender{
			notify.NewMockSender(models.ChannelSMS),
			notify.NewMockSender(models.ChannelChat),
			notify.NewMockSender(models.ChannelEmail),
		}
	}

	var senders []notify.Sender
	if cfg.Twilio.Configured() {
		senders = append(senders, notify.NewTwilioSender(cfg.Twilio))
		log.Println("SMS sender configured (Twilio)")
	}
	if cfg.Chat.Configured() {
		senders = append(senders, notify.NewChatSender(cfg.Chat))
		log.Println("Chat sender configured")
	}
	if cfg.SMTP.Configured() {
		senders = append(senders, notify.NewEmailSender(cfg.SMTP))
		log.Println("Email sender configured")
	}
	if len(senders) == 0 {
		log.Println("Warning: no senders configured, all deliveries will be unavailable")
	}
	return senders
}
