package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	commandsapp "lumina-bridge/internal/commands/application"
	"lumina-bridge/internal/commands/infrastructure/memory"
	commandspostgres "lumina-bridge/internal/commands/infrastructure/postgres"
	commandssqlite "lumina-bridge/internal/commands/infrastructure/sqlite"
	"lumina-bridge/internal/config"
	"lumina-bridge/internal/connectivity"
	"lumina-bridge/internal/firestore"
	"lumina-bridge/internal/liveness"
	"lumina-bridge/internal/observability/metrics"
	"lumina-bridge/internal/push"
	pushmqtt "lumina-bridge/internal/push/mqtt"
	pushnats "lumina-bridge/internal/push/nats"
	"lumina-bridge/internal/wled"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const (
	netCheckTimeout = 2 * time.Second
	shutdownTimeout = 5 * time.Second
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	journal, db, closeJournal, err := openJournal(ctx, cfg.Journal)
	if err != nil {
		logger.Fatalf("journal open error: driver=%s err=%v", cfg.Journal.Driver, err)
	}
	metrics.Init(db, logger)

	deviceOpts := []wled.Option{
		wled.WithRequestTimeout(cfg.Device.Timeout),
		wled.WithDefaultPort(cfg.Device.Port),
	}
	if cfg.Device.RateLimit > 0 {
		deviceOpts = append(deviceOpts, wled.WithRateLimit(cfg.Device.RateLimit, cfg.Device.RateBurst))
	}
	device := wled.NewClient(deviceOpts...)
	state := commandsapp.NewBridgeState(time.Now().UTC())

	var in ingestion
	switch cfg.Mode {
	case config.ModePush:
		in, err = buildPush(cfg, device, state, logger)
	default:
		in, err = buildPull(cfg, logger)
	}
	if err != nil {
		logger.Fatalf("ingestion setup error: mode=%s err=%v", cfg.Mode, err)
	}

	supervisor, err := connectivity.NewSupervisor(in.link,
		connectivity.WithBackoff(cfg.Reconnect.Backoff()),
		connectivity.WithAttemptTimeout(cfg.Reconnect.AttemptTimeout),
		connectivity.WithNetworkCheck(connectivity.NewNetworkCheck(cfg.Reconnect.NetCheckAddr, netCheckTimeout)),
		connectivity.WithLogger(logger),
	)
	if err != nil {
		logger.Fatalf("supervisor error: %v", err)
	}

	engine, err := commandsapp.NewEngine(device, in.reporter, journal,
		commandsapp.WithFaultSink(supervisor),
		commandsapp.WithState(state),
		commandsapp.WithLogger(logger),
		commandsapp.WithSourceName(cfg.Mode),
	)
	if err != nil {
		logger.Fatalf("engine error: %v", err)
	}

	loopOpts := []commandsapp.LoopOption{
		commandsapp.WithPollInterval(cfg.Loop.PollInterval),
		commandsapp.WithBatchLimit(cfg.Loop.BatchLimit),
		commandsapp.WithHeartbeat(liveness.NewHeartbeat(liveness.NewLogSignal(logger), cfg.Loop.HeartbeatInterval)),
		commandsapp.WithLoopLogger(logger),
	}
	for _, task := range in.tasks {
		loopOpts = append(loopOpts, commandsapp.WithTask(task))
	}
	loop, err := commandsapp.NewLoop(engine, in.source, supervisor, loopOpts...)
	if err != nil {
		logger.Fatalf("loop error: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", connectivity.HealthHandler(supervisor))
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(mux, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Printf("bridge started: mode=%s name=%s device=%s", cfg.Mode, cfg.BridgeName, cfg.Device.Address)
		return loop.Run(gctx)
	})
	g.Go(func() error {
		logger.Printf("http listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	runErr := g.Wait()
	if err := supervisor.Close(); err != nil {
		logger.Printf("link close error: %v", err)
	}
	closeJournal()
	if runErr != nil {
		logger.Printf("bridge stopped with error: %v", runErr)
		os.Exit(1)
	}
	logger.Printf("bridge stopped")
}

// ingestion is the mode-specific half of the bridge.
type ingestion struct {
	source   commandsapp.Source
	reporter commandsapp.Reporter
	link     connectivity.Link
	tasks    []commandsapp.Task
}

func buildPull(cfg config.Config, logger *log.Logger) (ingestion, error) {
	creds, err := firestoreCredentials(cfg.Firestore)
	if err != nil {
		return ingestion{}, err
	}
	client, err := firestore.NewClient(cfg.Firestore.ProjectID, creds,
		firestore.WithBaseURL(cfg.Firestore.BaseURL),
		firestore.WithDatabase(cfg.Firestore.Database),
		firestore.WithLogger(logger),
	)
	if err != nil {
		return ingestion{}, err
	}
	source, err := firestore.NewSource(client, logger)
	if err != nil {
		return ingestion{}, err
	}
	reporter, err := firestore.NewReporter(client)
	if err != nil {
		return ingestion{}, err
	}
	return ingestion{source: source, reporter: reporter, link: client}, nil
}

func firestoreCredentials(cfg config.FirestoreConfig) (firestore.Credentials, error) {
	switch cfg.Auth {
	case config.AuthAnonymous:
		return firestore.AnonymousAuth{APIKey: cfg.APIKey, IdentityURL: cfg.IdentityURL}, nil
	case config.AuthServiceAccount:
		return firestore.LoadServiceAccount(cfg.CredentialsFile, cfg.UID)
	default:
		return firestore.PasswordAuth{
			APIKey:      cfg.APIKey,
			Email:       cfg.Email,
			Password:    cfg.Password,
			IdentityURL: cfg.IdentityURL,
		}, nil
	}
}

func buildPush(cfg config.Config, device commandsapp.Device, state *commandsapp.BridgeState, logger *log.Logger) (ingestion, error) {
	deviceID, err := config.ResolveDeviceID(cfg)
	if err != nil {
		return ingestion{}, err
	}

	var (
		transport push.Transport
		topics    push.Topics
	)
	switch cfg.Push.Transport {
	case config.TransportNATS:
		topics = push.DotTopics(cfg.Push.Namespace, deviceID)
		transport, err = pushnats.NewSession(pushnats.Config{
			URL:          cfg.Push.NATSURL,
			Name:         cfg.BridgeName,
			User:         cfg.Push.Username,
			Password:     cfg.Push.Password,
			Token:        cfg.Push.Token,
			PingInterval: cfg.Push.KeepAlive,
		}, logger)
	default:
		topics = push.SlashTopics(cfg.Push.Namespace, deviceID)
		clientID := cfg.Push.ClientID
		if clientID == "" {
			clientID = cfg.BridgeName + "-" + deviceID
		}
		transport, err = pushmqtt.NewSession(pushmqtt.Config{
			Broker:      cfg.Push.Broker,
			ClientID:    clientID,
			Username:    cfg.Push.Username,
			Password:    cfg.Push.Password,
			KeepAlive:   cfg.Push.KeepAlive,
			WillTopic:   topics.Status,
			WillPayload: push.OnlineMessage(cfg.BridgeName, false),
		}, logger)
	}
	if err != nil {
		return ingestion{}, err
	}

	mailbox := push.NewMailbox(cfg.Loop.MailboxSize, logger)
	source, err := push.NewSource(mailbox, cfg.Device.Address, transport, topics.Status, logger)
	if err != nil {
		return ingestion{}, err
	}
	reporter, err := push.NewReporter(transport, topics.Status)
	if err != nil {
		return ingestion{}, err
	}
	link, err := push.NewLink(transport, topics, cfg.BridgeName, source, logger)
	if err != nil {
		return ingestion{}, err
	}
	in := ingestion{source: source, reporter: reporter, link: link}
	if cfg.Loop.StatusInterval > 0 {
		publisher, err := push.NewStatePublisher(device, transport, state, cfg.Device.Address, topics.Status, cfg.BridgeName)
		if err != nil {
			return ingestion{}, err
		}
		in.tasks = append(in.tasks, publisher.Task(cfg.Loop.StatusInterval))
	}
	logger.Printf("push topics: command=%s status=%s", topics.Command, topics.Status)
	return in, nil
}

func openJournal(ctx context.Context, cfg config.JournalConfig) (commandsapp.Journal, *sql.DB, func(), error) {
	switch cfg.Driver {
	case config.JournalSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, nil, nil, err
		}
		journal, err := commandssqlite.Open(ctx, cfg.Path)
		if err != nil {
			return nil, nil, nil, err
		}
		return journal, journal.DB(), func() { _ = journal.Close() }, nil
	case config.JournalPostgres:
		db, err := sql.Open("pgx", cfg.DSN)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, nil, err
		}
		journal := commandspostgres.NewJournal(db)
		if err := journal.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, nil, err
		}
		return journal, db, func() { _ = db.Close() }, nil
	default:
		return memory.NewJournal(), nil, func() {}, nil
	}
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
