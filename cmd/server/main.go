package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DavidGamba/go-getoptions"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"notifyrouter/internal/api"
	"notifyrouter/internal/config"
	"notifyrouter/internal/mqhandler"
	"notifyrouter/internal/repository"
	"notifyrouter/internal/service/audit"
	"notifyrouter/internal/service/channel"
	"notifyrouter/internal/service/notification"
	"notifyrouter/internal/service/queue"
	pkgconfig "notifyrouter/pkg/config"
	"notifyrouter/pkg/db"
	"notifyrouter/pkg/logger"
	"notifyrouter/pkg/mq"
	"notifyrouter/pkg/otel"
	redisclient "notifyrouter/pkg/redis"
	"notifyrouter/pkg/util"
	"notifyrouter/pkg/workerpool"
)

const (
	serviceName     = "notifyrouter"
	serviceVersion  = "1.0.0"
	retryCounterTTL = 24 * time.Hour
)

type commandLineOptionValues struct {
	ConfigDir string
	Env       string
}

func parseCommandLine() *commandLineOptionValues {
	values := &commandLineOptionValues{}
	opt := getoptions.New()

	opt.Bool("help", false, opt.Alias("h", "?"))
	opt.StringVar(&values.ConfigDir, "config-dir", pkgconfig.GetEnv("CONFIG_DIR", "config"),
		opt.Alias("c"),
		opt.Description("directory holding base.yaml, <env>.yaml and secrets.env"))
	opt.StringVar(&values.Env, "env", pkgconfig.ConfigEnv(),
		opt.Alias("e"),
		opt.Description("configuration environment to overlay on base.yaml"))

	_, err := opt.Parse(os.Args[1:])
	if opt.Called("help") {
		fmt.Fprint(os.Stderr, opt.Help())
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n\n", err)
		fmt.Fprint(os.Stderr, opt.Help(getoptions.HelpSynopsis))
		os.Exit(1)
	}
	return values
}

func main() {
	opts := parseCommandLine()

	cfg, err := config.Load(opts.Env, opts.ConfigDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg.Log.Level)
	defer log.Sync()

	log.Info("Starting notifyrouter...",
		zap.String("env", opts.Env),
		zap.String("db_driver", cfg.DB.Driver),
		zap.Bool("broker_configured", cfg.MQ.Enabled()),
		zap.Bool("redis_configured", cfg.Redis.Enabled()),
		zap.String("mail_provider", cfg.Mail.Provider),
	)

	shutdownTracing, err := otel.Init(cfg.Tracing, serviceName, serviceVersion, log)
	if err != nil {
		log.Fatal("Failed to init tracing", zap.Error(err))
	}
	defer shutdownTracing()

	ctx := context.Background()

	// DB
	store, err := db.Open(ctx, cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer store.Close()
	if err := db.Migrate(ctx, store, log); err != nil {
		log.Fatal("Failed to migrate DB", zap.Error(err))
	}

	// Redis: realtime transport and consumer retry counters
	var rdb *goredis.Client
	if cfg.Redis.Enabled() {
		rdb, err = redisclient.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to init Redis", zap.Error(err))
		}
		defer rdb.Close()
	}

	// Channels
	mailTransport, err := newMailTransport(cfg.Mail, log)
	if err != nil {
		log.Fatal("Failed to init mail transport", zap.Error(err))
	}
	breaker := channel.NewEmailBreaker(cfg.Mail.Breaker.CircuitBreaker(), log)
	emailSender := channel.NewEmailSender(mailTransport, cfg.Mail.From, breaker, log)

	var realtimeTransport channel.Transport = channel.UnavailableTransport{}
	if rdb != nil {
		realtimeTransport = channel.NewRedisTransport(rdb)
	} else {
		log.Warn("Redis not configured, realtime notifications will fail")
	}
	realtimeSender := channel.NewRealtimeSender(realtimeTransport, log)

	// Worker pool
	pool := workerpool.New(cfg.Dispatch, log)
	pool.Start()

	// Broker
	broker := queue.BrokerAbsent()
	var publisher *mq.Publisher
	if cfg.MQ.Enabled() {
		publisher, err = mq.NewPublisher(cfg.MQ.URL)
		if err != nil {
			// 启动时 broker 不可用：降级为直接处理
			log.Error("Failed to init MQ publisher, running without broker", zap.Error(err))
		} else {
			broker = queue.BrokerConfigured(publisher)
		}
	} else {
		log.Warn("MQ not configured, queued notifications are processed directly")
	}

	repo := repository.NewNotificationRepository(store.DB, store.Dialect)
	recorder := audit.NewRecorder(repo, log)
	demux := queue.NewDemultiplexer(emailSender, realtimeSender, log)
	proxy := queue.NewProxy(broker, demux, pool, log)
	dispatcher := notification.NewDispatcher(emailSender, realtimeSender, proxy, recorder, pool, log)

	// MQ consumer for notification.queue
	var consumer *mq.Consumer
	if broker.Present() && cfg.Consumer.Enabled {
		var retries mq.RetryCounter
		if rdb != nil {
			retries = util.NewRetryCounter(rdb, retryCounterTTL)
		}
		consumer, err = mq.NewConsumer(cfg.MQ.URL, cfg.Consumer.MaxRetries, retries, log)
		if err != nil {
			log.Fatal("Failed to init consumer", zap.Error(err))
		}
		consumer.SetHandler(mqhandler.NewQueueNotificationHandler(demux, log).Handle)

		go func() {
			log.Info("Starting notification.queue consumer...")
			if err := consumer.StartConsuming(); err != nil {
				log.Error("Notification consumer failed", zap.Error(err))
			}
		}()
	}

	// HTTP
	router := api.NewRouter(
		api.NewNotifyHandler(dispatcher, serviceName),
		api.NewQueryHandler(repo),
		store,
		log,
	)
	srv := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("notifyrouter is fully initialized and running")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down notifyrouter gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}

	if consumer != nil {
		if err := consumer.Shutdown(shutdownCtx); err != nil {
			log.Warn("Consumer did not drain", zap.Error(err))
		}
	}

	if err := pool.Stop(shutdownCtx); err != nil {
		log.Warn("Worker pool did not drain", zap.Error(err))
	}

	if publisher != nil {
		publisher.Close()
	}

	log.Info("notifyrouter shutdown complete")
}

func newMailTransport(cfg config.MailConfig, log *zap.Logger) (channel.MailTransport, error) {
	switch cfg.Provider {
	case config.MailProviderSMTP:
		return channel.NewSMTPTransport(cfg.SMTP), nil
	case config.MailProviderPostmark:
		return channel.NewPostmarkTransport(cfg.Postmark)
	default:
		log.Warn("Mail provider is log, emails are not delivered")
		return channel.NewLogTransport(log), nil
	}
}
