// Package run implements the long running recognition service.
package run

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/platewatch/internal/alert"
	"github.com/tphakala/platewatch/internal/api"
	"github.com/tphakala/platewatch/internal/buildinfo"
	"github.com/tphakala/platewatch/internal/cache"
	"github.com/tphakala/platewatch/internal/conf"
	"github.com/tphakala/platewatch/internal/datastore"
	"github.com/tphakala/platewatch/internal/diskmanager"
	"github.com/tphakala/platewatch/internal/errors"
	"github.com/tphakala/platewatch/internal/identity"
	"github.com/tphakala/platewatch/internal/logger"
	"github.com/tphakala/platewatch/internal/mqtt"
	"github.com/tphakala/platewatch/internal/notification"
	"github.com/tphakala/platewatch/internal/observability"
	"github.com/tphakala/platewatch/internal/pipeline"
	"github.com/tphakala/platewatch/internal/source"
)

// Options are the run command flags that are not part of the settings.
type Options struct {
	ReplayFile      string
	Realtime        bool
	ExitAfterReplay bool
	LockFile        string
}

// Command creates the run command.
func Command(settings *conf.Settings) *cobra.Command {
	var opts Options

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Resolve incoming plate readings and raise alerts",
		Long: `Start the recognition pipeline. Readings arrive over MQTT and/or from a
JSON-lines replay file; the status API is served when the web server is enabled.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(cmd.Context(), settings, opts)
		},
	}

	if err := setupFlags(cmd, &opts); err != nil {
		panic(err)
	}
	return cmd
}

func setupFlags(cmd *cobra.Command, opts *Options) error {
	flags := cmd.Flags()
	flags.StringVar(&opts.ReplayFile, "replay", "", "Replay detections from a JSON-lines file")
	flags.BoolVar(&opts.Realtime, "realtime", false, "Pace replayed detections by their timestamps")
	flags.BoolVar(&opts.ExitAfterReplay, "exit-after-replay", false, "Stop once the replay file is consumed")
	flags.StringVar(&opts.LockFile, "lock", filepath.Join(os.TempDir(), "platewatch.lock"), "Single instance lock file")
	flags.String("listen", "", "Status API listen address")
	flags.String("images", "", "Directory for detection images")

	for key, name := range map[string]string{
		"webserver.listen": "listen",
		"images.path":      "images",
	} {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("error binding flags: %w", err)
		}
	}
	return nil
}

// Run starts every configured component and blocks until ctx is cancelled,
// a component fails, or a replay finishes with ExitAfterReplay set.
func Run(ctx context.Context, settings *conf.Settings, opts Options) error {
	log := logger.Global().Module("main")
	build := buildinfo.Current()

	lock := flock.New(opts.LockFile)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another platewatch instance holds %s", opts.LockFile)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Warn("failed to release instance lock", logger.Error(err))
		}
	}()

	if settings.Sentry.Enabled {
		if err := initSentry(settings, build); err != nil {
			log.Warn("sentry disabled", logger.Error(err))
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	m, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	store, err := datastore.New(settings, datastore.WithMetrics(m.Datastore))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("failed to close database", logger.Error(err))
		}
	}()

	blacklist := cache.NewTTL("blacklist", settings.BlacklistCacheTTL(), store.Blacklist)

	var images *diskmanager.ImageStore
	if settings.Images.Enabled {
		if images, err = diskmanager.NewImageStore(settings.Images.Path, time.Local); err != nil {
			return err
		}
	}

	var alertClient mqtt.Client
	if settings.Notification.MQTT.Enabled {
		cfg := mqtt.ConfigFromSettings(settings.Notification.MQTT, settings.Main.Name, mqtt.RolePublisher)
		if alertClient, err = mqtt.NewClient(cfg, m.MQTT); err != nil {
			return err
		}
		defer alertClient.Disconnect()
	}
	dispatcher := notification.DispatcherFromSettings(settings, m.Notification,
		notification.ProvidersFromSettings(settings, alertClient)...)

	var resolverOpts []identity.ResolverOption
	if images != nil {
		resolverOpts = append(resolverOpts, identity.WithImageNamer(images.RelPath))
	}
	resolver := identity.NewResolver(store, identity.NewGrouper(store, settings.GroupingWindow()), resolverOpts...)
	evaluator := alert.NewEvaluator(alert.Config{
		SimilarityThreshold: settings.Alerts.BlacklistSimilarityThreshold,
		SuspiciousDuration:  settings.SuspiciousDuration(),
	}, blacklist, alert.NewThrottle(settings.AlertCooldown()))

	deps := pipeline.Deps{
		Store:     store,
		Resolver:  resolver,
		Evaluator: evaluator,
		Images:    images,
		Metrics:   m.Pipeline,
	}
	if dispatcher.Len() > 0 {
		deps.Notifier = dispatcher
		log.Info("notifications enabled", logger.Any("providers", dispatcher.Providers()))
	}

	manager, err := pipeline.NewManager(pipeline.ConfigFromSettings(settings), deps)
	if err != nil {
		return err
	}
	if err := manager.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := manager.Stop(); err != nil {
			log.Warn("pipeline stopped with errors", logger.Error(err))
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if settings.WebServer.Enabled {
		server, err := api.New(api.ConfigFromSettings(settings),
			api.WithDataStore(store),
			api.WithPipeline(manager),
			api.WithBlacklistCache(blacklist),
			api.WithImageStore(images),
			api.WithMetricsHandler(m.Handler()),
		)
		if err != nil {
			return err
		}
		g.Go(func() error { return server.Run(gctx) })
	}

	if settings.Source.MQTT.Enabled {
		cfg := mqtt.ConfigFromSettings(settings.Source.MQTT, settings.Main.Name, mqtt.RoleSubscriber)
		client, err := mqtt.NewClient(cfg, m.MQTT)
		if err != nil {
			return err
		}
		src := source.NewMQTTSource(client, settings.Source.MQTT.Topic, manager)
		g.Go(func() error {
			if err := src.Start(gctx); err != nil {
				return err
			}
			<-gctx.Done()
			src.Stop()
			return nil
		})
	}

	if opts.ReplayFile != "" {
		g.Go(func() error {
			if err := replay(gctx, opts, manager); err != nil {
				return err
			}
			if opts.ExitAfterReplay {
				waitIdle(gctx, manager)
				cancel()
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	log.Info("platewatch started",
		logger.String("version", build.GetVersion()),
		logger.String("database", settings.Database.Type),
		logger.Bool("images", images != nil),
		logger.Bool("api", settings.WebServer.Enabled))

	err = g.Wait()
	log.Info("platewatch stopping")
	return err
}

func replay(ctx context.Context, opts Options, sink source.Sink) error {
	f, err := os.Open(opts.ReplayFile)
	if err != nil {
		return errors.New(err).
			Component("main").
			Category(errors.CategoryFileIO).
			Context("path", opts.ReplayFile).
			Build()
	}
	defer func() { _ = f.Close() }()

	src := source.NewReplaySource(f, sink,
		source.WithRealtime(opts.Realtime),
		source.WithImageDir(filepath.Dir(opts.ReplayFile)))
	if _, err := src.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// waitIdle returns once the pipeline has no queued or in-flight work, or ctx
// is done.
func waitIdle(ctx context.Context, manager *pipeline.Manager) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for !manager.Idle() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func initSentry(settings *conf.Settings, build *buildinfo.Context) error {
	if settings.Sentry.DSN == "" {
		return fmt.Errorf("sentry.dsn is empty")
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.Sentry.DSN,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      "production",
		ServerName:       "",
		Release:          build.Release(),
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			event.Message = errors.Scrub(event.Message)
			return event
		},
	})
	if err != nil {
		return err
	}
	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	return nil
}
