// Command nightjar runs the autonomous WiFi reconnaissance and
// handshake-capture agent: it drives an external radio-driver daemon through
// recon/hop/associate/deauth cycles, tracks mood off the epoch engine, and
// persists enough state to resume across a restart.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/lcalzada-xor/nightjar/internal/adapters/pcap"
	"github.com/lcalzada-xor/nightjar/internal/adapters/radio"
	"github.com/lcalzada-xor/nightjar/internal/adapters/recovery"
	"github.com/lcalzada-xor/nightjar/internal/adapters/reporting"
	"github.com/lcalzada-xor/nightjar/internal/config"
	"github.com/lcalzada-xor/nightjar/internal/core/domain"
	"github.com/lcalzada-xor/nightjar/internal/core/ports"
	"github.com/lcalzada-xor/nightjar/internal/core/services/agent"
	"github.com/lcalzada-xor/nightjar/internal/core/services/epoch"
	"github.com/lcalzada-xor/nightjar/internal/core/services/events"
	"github.com/lcalzada-xor/nightjar/internal/core/services/hooks"
	"github.com/lcalzada-xor/nightjar/internal/core/services/mood"
	"github.com/lcalzada-xor/nightjar/internal/core/services/plugins"
	"github.com/lcalzada-xor/nightjar/internal/core/services/session"
	"github.com/lcalzada-xor/nightjar/internal/core/services/supervisor"
	"github.com/lcalzada-xor/nightjar/internal/telemetry"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, cfgPath, err := config.Load(os.Args[1:])
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Debug {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
		slog.SetDefault(logger)
	}
	logger.Info("nightjar starting", "config", cfgPath, "name", cfg.Main.Name)

	telemetry.InitMetrics()
	shutdownTracer, err := telemetry.InitTracer()
	if err != nil {
		logger.Warn("failed to initialize tracer", "error", err)
		shutdownTracer = func(context.Context) error { return nil }
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	recoveryDBPath := cfg.Main.RecoveryDBPath
	if recoveryDBPath == "" {
		recoveryDBPath = filepath.Join(filepath.Dir(cfg.Main.HandshakesPath), "nightjar-recovery.db")
	}
	recoveryStore, err := recovery.NewSQLiteStore(recoveryDBPath)
	if err != nil {
		logger.Error("failed to open recovery store", "path", recoveryDBPath, "error", err)
		os.Exit(1)
	}

	reportsPath := cfg.Main.ReportsPath
	if reportsPath == "" {
		reportsPath = filepath.Join(filepath.Dir(cfg.Main.HandshakesPath), "reports")
	}
	reportExporter := reporting.NewPDFExporter(reportsPath)

	pcapWatcher := pcap.New(cfg.Main.HandshakesPath, logger.With("component", "pcap"))

	radioController := radio.New(radio.Config{
		Hostname: cfg.Bettercap.Hostname,
		Port:     cfg.Bettercap.Port,
		Username: cfg.Bettercap.Username,
		Password: cfg.Bettercap.Password,
	}, nil, logger.With("component", "radio"))

	personality := cfg.Personality
	e := epoch.New(uint32(personality.SadNumEpochs), uint32(personality.BoredNumEpochs), personality.BondEncountersFactor)
	moodAutomaton := mood.New(e, mood.Thresholds{
		ExcitedNumEpochs:     uint32(personality.ExcitedNumEpochs),
		BoredNumEpochs:       uint32(personality.BoredNumEpochs),
		SadNumEpochs:         uint32(personality.SadNumEpochs),
		MaxMissesForRecon:    uint32(personality.MaxMissesForRecon),
		BondEncountersFactor: personality.BondEncountersFactor,
	})
	moodAutomaton.SetReady()

	mode := domain.ModeAuto
	if cfg.Manual {
		mode = domain.ModeManual
	}
	sessionStore := session.New(domain.Session{
		StartedAt:         time.Now(),
		SupportedChannels: personality.Channels,
		Mode:              mode,
		State:             domain.NewSessionState(),
	})

	hookRegistry := hooks.New()

	nightjarAgent := agent.New(cfg, radioController, e, moodAutomaton, sessionStore, hookRegistry, logger.With("component", "agent"))
	nightjarAgent.SetInteractionRecorder(recoveryStore)

	demux := events.New(radioController, sessionStore, e, pcapWatcher, nil, logger.With("component", "events"))

	pluginsDir := filepath.Join(filepath.Dir(cfg.Main.HandshakesPath), "plugins")
	pluginHost := plugins.New(hookRegistry, plugins.CoreModules{
		Mood:    moodAutomaton,
		Session: sessionStore,
		Epoch:   e,
	}, pluginEnabledFunc(cfg), logger.With("component", "plugins"))

	rec := &recoveryService{
		store:     recoveryStore,
		sessions:  sessionStore,
		epoch:     e,
		sessionID: cfg.Main.Name,
		maxAge:    time.Duration(cfg.Main.RecoveryMaxAgeSeconds) * time.Second,
		log:       logger.With("component", "recovery"),
	}

	errChan := make(chan error, 4)

	sup := supervisor.New(logger,
		&recoveryComponent{recovery: rec},
		&pluginComponent{host: pluginHost, dir: pluginsDir, log: logger.With("component", "plugins")},
		&eventsComponent{demux: demux, errChan: errChan, log: logger.With("component", "events")},
		&agentComponent{agent: nightjarAgent, errChan: errChan, log: logger.With("component", "agent")},
	)

	if err := sup.Init(ctx); err != nil {
		logger.Error("component initialization failed", "error", err)
		os.Exit(1)
	}
	if err := sup.Start(ctx); err != nil {
		logger.Error("component start failed", "error", err)
		os.Exit(1)
	}

	logger.Info("nightjar started, press Ctrl+C to exit")

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		logger.Error("fatal component error", "error", err)
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	sup.Shutdown(shutdownCtx)
	for _, h := range sup.Health() {
		logger.Info("component health", "component", h.Name, "state", h.State, "error", h.LastError)
	}

	exportFinalReport(shutdownCtx, sessionStore, e, moodAutomaton, reportExporter, logger)
	logger.Info("nightjar stopped")
}

func pluginEnabledFunc(cfg *config.Config) plugins.EnabledFunc {
	return func(name string) bool {
		pc, ok := cfg.Plugins[name]
		if !ok {
			return true
		}
		return pc.Enabled
	}
}

func exportFinalReport(ctx context.Context, sessions *session.Store, e *epoch.Epoch, m *mood.Automaton, exporter ports.ReportExporter, log *slog.Logger) {
	snap := sessions.GetSession()
	handshakes := make([]domain.Handshake, 0, len(snap.State.Handshakes))
	for _, hs := range snap.State.Handshakes {
		handshakes = append(handshakes, hs)
	}

	data := e.Snapshot()
	path, err := exporter.Export(ctx, ports.ReportSnapshot{
		StartedAt:  snap.StartedAt,
		EndedAt:    time.Now(),
		Mode:       snap.Mode,
		Handshakes: handshakes,
		FinalMood:  m.State(),
		LastReward: data.Reward,
	})
	if err != nil {
		log.Warn("failed to export session report", "error", err)
		return
	}
	log.Info("exported session report", "path", path)
}
