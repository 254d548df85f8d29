package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/soyeahso/chatdesk/internal/analytics"
	"github.com/soyeahso/chatdesk/internal/chat"
	"github.com/soyeahso/chatdesk/internal/config"
	"github.com/soyeahso/chatdesk/internal/gateway"
	"github.com/soyeahso/chatdesk/internal/hooks"
	"github.com/soyeahso/chatdesk/internal/logging"
	"github.com/soyeahso/chatdesk/internal/notify"
	"github.com/soyeahso/chatdesk/internal/rooms"
	"github.com/soyeahso/chatdesk/internal/store"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}
			opts := logging.Options{
				Level: cfg.Logging.Level,
				Style: cfg.Logging.ConsoleStyle,
				Out:   cmd.ErrOrStderr(),
				File:  cfg.Logging.File,
			}
			if logLevel != "" {
				opts.Level = logLevel
			}
			logger, closer, err := logging.Open(opts)
			if err != nil {
				return err
			}
			defer closer.Close()
			log = logger

			if issues := config.Validate(&cfg); len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}
			if err := paths.EnsureDirs(); err != nil {
				return fmt.Errorf("creating data directories: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (auto, lan, loopback, custom)")

	return cmd
}

// serve wires the store, room router, notification relay and analytics
// around the chat coordinator and runs the gateway until ctx is done.
func serve(ctx context.Context, cfg config.Config) error {
	dbPath := cfg.Store.Path
	if dbPath == "" {
		dbPath = paths.Database
	}
	db, err := store.Open(dbPath, log,
		store.WithCallTimeout(time.Duration(cfg.Store.CallTimeoutMs)*time.Millisecond))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()
	log.Info().Str("path", dbPath).Msg("using SQLite store")

	hookMgr := hooks.NewManager(log)
	defer hookMgr.Drain()

	analyticsStore := store.NewAnalyticsStore(db)
	analytics.NewRecorder(analyticsStore, log).Register(hookMgr)

	if cfg.Kafka.Enabled {
		publisher, err := analytics.NewKafkaPublisher(cfg.Kafka, log)
		if err != nil {
			return err
		}
		publisher.Register(hookMgr)
		defer func() {
			publisher.Unregister(hookMgr)
			hookMgr.Drain()
			publisher.Close()
		}()
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("streaming chat events to kafka")
	}

	routerOpts := []rooms.Option{rooms.WithDropHandler(gateway.EvictSlowClients(gateway.SlowClientDrops))}
	if cfg.Redis.Enabled {
		bus, err := rooms.NewRedisBus(cfg.Redis, log)
		if err != nil {
			return err
		}
		defer bus.Close()
		routerOpts = append(routerOpts, rooms.WithBus(bus))
	}
	router := rooms.New(log, routerOpts...)
	go func() {
		if err := router.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("room bus stopped")
		}
	}()

	resolver := gateway.NewIdentityResolver(cfg.Gateway.Auth)
	notifications := store.NewNotificationStore(db)

	relay := notify.NewRelay(notifications, resolver, log)
	if cfg.Notify.IRC != nil {
		relay.Register(notify.NewIRCSender(*cfg.Notify.IRC, log))
	}
	if cfg.Notify.Gmail != nil {
		gmail, err := notify.NewGmailSender(ctx, *cfg.Notify.Gmail, log)
		if err != nil {
			log.Warn().Err(err).Msg("gmail notifications disabled")
		} else {
			relay.Register(gmail)
		}
	}
	relay.Start(ctx)
	defer relay.Stop()
	if senders := relay.Senders(); len(senders) > 0 {
		log.Info().Strs("senders", senders).Msg("notification senders registered")
	}

	log.Debug().Strs("events", hookMgr.Events()).Msg("hook subscribers ready")

	svc := chat.New(chat.Deps{
		Sessions:      store.NewSessionStore(db),
		Messages:      store.NewMessageStore(db),
		Notifications: notifications,
		Canned:        store.NewCannedStore(db),
		Analytics:     analyticsStore,
		Rooms:         router,
		Directory:     resolver,
		Notifier:      relay,
		Hooks:         hookMgr,
		Log:           log,
	})

	srv := gateway.New(cfg, log,
		gateway.WithChat(svc),
		gateway.WithRooms(router),
		gateway.WithResolver(resolver),
		gateway.WithHooks(hookMgr),
	)
	return srv.Start(ctx)
}
