package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ILLUVRSE/leadops/internal/analytics"
	"github.com/ILLUVRSE/leadops/internal/audit"
	"github.com/ILLUVRSE/leadops/internal/auth"
	"github.com/ILLUVRSE/leadops/internal/campaign"
	"github.com/ILLUVRSE/leadops/internal/config"
	"github.com/ILLUVRSE/leadops/internal/dispatch"
	"github.com/ILLUVRSE/leadops/internal/events"
	"github.com/ILLUVRSE/leadops/internal/httpserver"
	"github.com/ILLUVRSE/leadops/internal/messaging"
	"github.com/ILLUVRSE/leadops/internal/optimizer"
	"github.com/ILLUVRSE/leadops/internal/reports"
	"github.com/ILLUVRSE/leadops/internal/routing"
	"github.com/ILLUVRSE/leadops/internal/supervisor"
	"github.com/ILLUVRSE/leadops/internal/workflow"
)

func component(name string) *log.Logger {
	return log.New(os.Stdout, "["+name+"] ", log.LstdFlags)
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Audit sink: Postgres when configured, otherwise in memory.
	var sink audit.Sink = audit.NewMemorySink()
	var store httpserver.Pinger
	if cfg.DatabaseURL != "" {
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		db, err := audit.OpenPostgres(pingCtx, cfg.DatabaseURL)
		pingCancel()
		if err != nil {
			log.Fatalf("audit db: %v", err)
		}
		defer db.Close()
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
		pg := audit.NewPGSink(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Fatalf("audit schema: %v", err)
		}
		sink, store = pg, pg
		log.Println("audit records -> postgres")
	}

	var publisher events.Publisher = events.Noop{}
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := events.NewKafkaPublisher(events.KafkaConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic})
		if err != nil {
			log.Fatalf("kafka publisher: %v", err)
		}
		defer kp.Close()
		publisher = kp
		log.Printf("events -> kafka topic %s", cfg.KafkaTopic)
	}

	var archiver supervisor.ReportArchiver = reports.NewMemoryArchiver(cfg.ArchivePrefix)
	if cfg.ArchiveBucket != "" {
		s3a, err := reports.NewS3Archiver(ctx, cfg.ArchiveBucket, cfg.ArchivePrefix)
		if err != nil {
			log.Fatalf("report archiver: %v", err)
		}
		archiver = s3a
	}

	var sender messaging.Sender = messaging.NewLogSender(cfg.SimulatedSendDelay, component("messaging"))
	if cfg.MessagingURL != "" {
		hs, err := messaging.NewHTTPSender(messaging.HTTPSenderConfig{
			BaseURL: cfg.MessagingURL,
			APIKey:  cfg.MessagingAPIKey,
			Retries: cfg.MessagingRetries,
		})
		if err != nil {
			log.Fatalf("messaging sender: %v", err)
		}
		sender = hs
	}

	var executor workflow.Executor = workflow.Noop{}
	if cfg.WorkflowURL != "" {
		wc, err := workflow.NewClient(workflow.ClientConfig{
			BaseURL: cfg.WorkflowURL,
			APIKey:  cfg.WorkflowAPIKey,
			Retries: 2,
		})
		if err != nil {
			log.Fatalf("workflow client: %v", err)
		}
		executor = wc
	}

	routingCfg := routing.DefaultConfig()
	if cfg.RulesFile != "" {
		rf, err := routing.LoadRulesFile(cfg.RulesFile)
		if err != nil {
			log.Fatalf("routing rules: %v", err)
		}
		routingCfg = rf.Apply(routingCfg)
		log.Printf("loaded %d routing rules from %s", len(routingCfg.Rules), cfg.RulesFile)
	}
	engine := routing.New(routingCfg, component("routing"))

	contacts := campaign.NewDirectory()
	scheduler := campaign.New(campaign.Config{
		PollInterval:   cfg.PollInterval,
		StatusRecorder: sink,
	}, sender, contacts, component("campaign"))

	metrics := analytics.NewMemory()
	opt := optimizer.New(optimizer.Config{
		Interval: cfg.OptimizerInterval,
		Scripts:  metrics,
		Events:   publisher,
	}, engine, scheduler, metrics, component("optimizer"))

	sup := supervisor.New(supervisor.Config{}, supervisor.Dependencies{
		Rules:     engine,
		Campaigns: scheduler,
		Optimizer: opt,
		Analytics: metrics,
		Archiver:  archiver,
		Events:    publisher,
		Hooks:     []supervisor.OverrideHook{supervisor.SchedulerHook{Scheduler: scheduler}},
	}, component("supervisor"))

	dispatcher, err := dispatch.New(dispatch.Config{WorkflowID: cfg.WorkflowID}, dispatch.Dependencies{
		Router:       engine,
		Campaigns:    scheduler,
		Contacts:     contacts,
		Availability: sup,
		Workflow:     executor,
		Events:       publisher,
		Analytics:    metrics,
		Audit:        sink,
	}, component("dispatch"))
	if err != nil {
		log.Fatalf("dispatcher: %v", err)
	}

	verifier, err := auth.NewVerifier(auth.Config{
		Secret:        cfg.AuthSecret,
		Issuer:        cfg.AuthIssuer,
		DevAllowLocal: cfg.DevAllowLocal,
	})
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("campaign scheduler: %v", err)
	}
	defer scheduler.Stop()
	if cfg.OptimizerEnabled {
		if err := opt.Start(ctx); err != nil {
			log.Fatalf("optimizer: %v", err)
		}
		defer opt.Stop()
	}

	server := httpserver.New(httpserver.Dependencies{
		Engine:     engine,
		Scheduler:  scheduler,
		Optimizer:  opt,
		Supervisor: sup,
		Dispatcher: dispatcher,
		Verifier:   verifier,
		Store:      store,
	}, cfg.RequestTimeout, component("http"))

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("leadops service listening on %s (%s)", cfg.Addr, cfg.Environment)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	waitForShutdown(cancel, httpServer)
}

func waitForShutdown(cancel context.CancelFunc, srv *http.Server) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	cancel()
	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
