package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/profile"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/toxoid/toxoid-go/internal/component"
	"github.com/toxoid/toxoid-go/internal/config"
	"github.com/toxoid/toxoid-go/internal/core/ecs"
	"github.com/toxoid/toxoid-go/internal/core/event"
	"github.com/toxoid/toxoid-go/internal/core/host"
	"github.com/toxoid/toxoid-go/internal/core/host/memhost"
	"github.com/toxoid/toxoid-go/internal/core/host/native"
	"github.com/toxoid/toxoid-go/internal/loadstate"
	"github.com/toxoid/toxoid-go/internal/persist"
	"github.com/toxoid/toxoid-go/internal/schema"
	"github.com/toxoid/toxoid-go/internal/scripting"
	"github.com/toxoid/toxoid-go/internal/system"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := 42 - len(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

// ── Main loop ──────────────────────────────────────────────────────

func run() error {
	prof := flag.String("profile", "", "write a cpu or mem profile to the working directory")
	flag.Parse()

	switch *prof {
	case "":
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	case "mem":
		defer profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	default:
		return fmt.Errorf("unknown -profile %q", *prof)
	}

	// 1. Load config
	cfg, err := config.Load(config.Path())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	// 3. Host and world
	printSection("host")
	h, err := openHost(cfg.Host, log)
	if err != nil {
		return fmt.Errorf("open host: %w", err)
	}
	w, err := ecs.NewWorld(h, log)
	if err != nil {
		_ = h.Close()
		return fmt.Errorf("create world: %w", err)
	}
	defer w.Close()
	printOK(fmt.Sprintf("%s host, world %s", cfg.Host.Kind, w.ID()))

	// 4. Components
	printSection("components")
	if err := component.Init(w); err != nil {
		return err
	}
	if err := component.SetGameConfig(w, cfg.Runner.Width, cfg.Runner.Height); err != nil {
		return err
	}
	defs, err := schema.LoadDir(cfg.Schema.Dir)
	if err != nil {
		return err
	}
	if _, err := w.RegisterDefinitions(defs); err != nil {
		return fmt.Errorf("register schema files: %w", err)
	}
	printStat("schema file components", len(defs))

	loader := loadstate.NewLoader(loadstate.FileFetcher{Root: cfg.Assets.Root}, cfg.Assets.MaxFetches, log)
	defer loader.Close()
	if err := loader.Init(w); err != nil {
		return err
	}
	for _, path := range cfg.Assets.Preload {
		if _, err := loadstate.Request(w, loadstate.DataRaw, path, 0); err != nil {
			return err
		}
	}
	printStat("preloaded assets", len(cfg.Assets.Preload))

	// 5. Scripts
	if cfg.Scripting.Enabled {
		engine := scripting.NewEngine(w, log)
		defer engine.Close()
		if err := engine.Load(cfg.Scripting.Dir); err != nil {
			return err
		}
		printOK("scripts loaded from " + cfg.Scripting.Dir)
	}
	printStat("registered components", len(w.Descriptors()))

	// 6. Catalog drift check
	if cfg.Database.Enabled {
		printSection("catalog")
		if err := checkCatalog(cfg.Database, w, log); err != nil {
			return err
		}
	}

	// 7. Scene and systems
	printSection("scene")
	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	scene, err := system.SpawnScene(w, rng)
	if err != nil {
		return err
	}
	if err := system.NewSnake(w, scene, 150*time.Millisecond, rng).Register(); err != nil {
		return err
	}
	draw := &system.DrawList{}
	if err := draw.Register(w); err != nil {
		return err
	}
	event.Subscribe(w.Events(), func(e event.EntityDestroyed) {
		log.Debug("entity destroyed", zap.Uint64("entity", uint64(e.Entity)))
	})
	printStat("systems", len(w.Systems()))
	fmt.Println()

	// 8. Game loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Runner.TickRate)
	defer ticker.Stop()

	log.Info("game loop started", zap.Duration("tick", cfg.Runner.TickRate), zap.Int("ticks", cfg.Runner.Ticks))
	for ticks := 0; cfg.Runner.Ticks == 0 || ticks < cfg.Runner.Ticks; ticks++ {
		select {
		case <-ticker.C:
			if err := w.Progress(cfg.Runner.TickRate); err != nil {
				if ecs.IsFatal(err) || w.Poisoned() != nil {
					return err
				}
				log.Warn("tick aborted", zap.Error(err))
			}
		case sig := <-shutdownCh:
			log.Info("shutdown signal", zap.String("signal", sig.String()))
			return nil
		}
	}
	log.Info("game loop finished",
		zap.Uint64("ticks", w.Ticks()),
		zap.Uint64("frames", draw.Frames()),
		zap.Int("last_frame_rects", len(draw.Frame())),
	)
	return nil
}

func openHost(cfg config.HostConfig, log *zap.Logger) (host.Host, error) {
	switch cfg.Kind {
	case "native":
		h, err := native.Open(cfg.Library, log)
		if err != nil {
			return nil, err
		}
		return h, nil
	default:
		return memhost.New(log, memhost.Options{
			MaxEntities:   cfg.MaxEntities,
			MaxComponents: cfg.MaxComponents,
		}), nil
	}
}

// checkCatalog compares the registered layouts with the last stored catalog,
// warns about drift and stores the current one.
func checkCatalog(cfg config.DatabaseConfig, w *ecs.World, log *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := persist.NewDB(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("connect catalog: %w", err)
	}
	defer db.Close()
	if err := persist.RunMigrations(ctx, db.Pool, log); err != nil {
		return err
	}

	repo := persist.NewCatalogRepo(db)
	previous, err := repo.Load(ctx)
	if err != nil {
		return err
	}
	current := persist.EntriesOf(w.Descriptors())
	drift := persist.Diff(previous, current)
	if len(previous) > 0 && !drift.Empty() {
		for _, c := range drift.Changed {
			log.Warn("component layout changed", zap.String("change", c.String()))
		}
		log.Warn("component catalog drifted",
			zap.Strings("added", drift.Added),
			zap.Strings("removed", drift.Removed),
			zap.Int("changed", len(drift.Changed)),
		)
	}
	if err := repo.Save(ctx, current); err != nil {
		return err
	}
	if err := repo.RecordRun(ctx, w.ID(), len(current), drift); err != nil {
		return err
	}
	printOK(fmt.Sprintf("catalog saved (%d components)", len(current)))
	return nil
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
