package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/somedsale/quotelist/internal/syncjob"
	"github.com/somedsale/quotelist/pkg/config"
	"github.com/somedsale/quotelist/pkg/detect"
	"github.com/somedsale/quotelist/pkg/logger"
	"github.com/somedsale/quotelist/pkg/notify"
	"github.com/somedsale/quotelist/pkg/retry"
	"github.com/somedsale/quotelist/pkg/schedule"
	"github.com/somedsale/quotelist/pkg/server"
	"github.com/somedsale/quotelist/pkg/sheets"
	"github.com/somedsale/quotelist/pkg/source"
	"github.com/somedsale/quotelist/pkg/watermark"
)

func main() {
	configPath := flag.String("config", "", "Optional config file (yaml, json or toml)")
	once := flag.Bool("once", false, "Run the startup pass and a single cycle, then exit")
	flag.Parse()

	// 1. Load .env, then config
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Printf("failed to load .env: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	l, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Environment,
		ServiceName: cfg.ServiceName,
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer l.Sync()

	l.Info("quotelist initializing",
		zap.String("env", cfg.Environment),
		zap.String("driver", cfg.Database.Driver),
		zap.String("table", cfg.Database.Table))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Initialize components
	dbOpts := source.Options{
		Driver:         cfg.Database.Driver,
		DSN:            cfg.Database.DSN,
		Host:           cfg.Database.Host,
		Port:           cfg.Database.Port,
		User:           cfg.Database.User,
		Password:       cfg.Database.Password,
		Database:       cfg.Database.Name,
		Table:          cfg.Database.Table,
		ConnectTimeout: cfg.Database.ConnectTimeout,
	}
	reader, err := source.New(dbOpts)
	if err != nil {
		l.Error("failed to create database reader", err)
		os.Exit(1)
	}

	sheetRetry := retry.DefaultOptions()
	sheetRetry.MaxAttempts = cfg.Sheets.MaxAttempts
	sheetClient, err := sheets.NewGoogleClient(ctx, cfg.Sheets.SpreadsheetID, sheets.Auth{
		ServiceAccountEmail: cfg.Sheets.ServiceAccountEmail,
		PrivateKey:          cfg.Sheets.PrivateKey,
		CredentialsFile:     cfg.Sheets.CredentialsFile,
	}, sheetRetry)
	if err != nil {
		l.Error("failed to create sheets client", err)
		os.Exit(1)
	}
	mirror, err := sheets.NewMirror(sheetClient, sheets.Mode(cfg.Sheets.Mode), l.Named("mirror"))
	if err != nil {
		l.Error("failed to create mirror", err)
		os.Exit(1)
	}

	store, closeStore, err := newWatermarkStore(ctx, cfg, dbOpts)
	if err != nil {
		l.Error("failed to create watermark store", err)
		os.Exit(1)
	}
	defer closeStore()
	if cfg.Watermark.Store == "memory" {
		l.Warn("watermark is kept in memory and is re-derived after every restart",
			zap.String("init_table", cfg.Watermark.InitTable))
	}

	detector, err := detect.New(reader, store, detect.Config{
		InitTable: cfg.Watermark.InitTable,
		Delivery:  detect.Delivery(cfg.Watermark.Delivery),
	}, l.Named("detect"))
	if err != nil {
		l.Error("failed to create change detector", err)
		os.Exit(1)
	}

	notifier, closeNotifier, err := newNotifier(ctx, cfg)
	if err != nil {
		l.Error("failed to create notifier", err)
		os.Exit(1)
	}
	defer closeNotifier()

	scheduler, err := schedule.New(cfg.Schedule.Timezone)
	if err != nil {
		l.Error("failed to create scheduler", err)
		os.Exit(1)
	}

	// 4. Create service
	svc := syncjob.NewService(l, reader, mirror, detector, notifier, scheduler, syncjob.Config{
		Cron:         cfg.Schedule.Cron,
		CycleTimeout: cfg.Schedule.CycleTimeout,
	})

	if *once {
		svc.Startup(ctx)
		if err := svc.RunCycle(ctx); err != nil {
			l.Error("sync cycle failed", err)
			os.Exit(1)
		}
		return
	}

	// 5. Start observability server
	obsServer := server.New(cfg.Server.Addr, svc.Ready, l)
	go func() {
		if err := obsServer.Start(); err != nil {
			l.Error("observability server failed", err)
		}
	}()

	// 6. Start service
	l.Info("quotelist starting")
	if err := svc.Start(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			l.Info("quotelist stopping")
		} else {
			l.Error("quotelist failed", err)
		}
	}

	// Clean up observability server
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	obsServer.Shutdown(shutdownCtx)
}

func newWatermarkStore(ctx context.Context, cfg *config.AppConfig, dbOpts source.Options) (watermark.Store, func(), error) {
	wm := cfg.Watermark
	switch wm.Store {
	case "file":
		return watermark.NewFileStore(wm.Path), func() {}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: wm.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to reach redis at %s: %w", wm.RedisAddr, err)
		}
		return watermark.NewRedisStore(client, wm.RedisKey), func() { client.Close() }, nil
	case "database":
		store, err := watermark.OpenGormStore(cfg.Database.Driver, source.ConnString(dbOpts), cfg.Database.Table)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("failed to migrate watermark table: %w", err)
		}
		return store, func() { store.Close() }, nil
	default:
		return watermark.NewMemoryStore(), func() {}, nil
	}
}

func newNotifier(ctx context.Context, cfg *config.AppConfig) (notify.Notifier, func(), error) {
	env := notify.Envelope{
		From:    cfg.Mail.From,
		To:      notify.ParseRecipients(cfg.Mail.To),
		Subject: cfg.Mail.Subject,
	}

	var (
		email notify.Notifier
		err   error
	)
	if cfg.Mail.Transport == "gmail" {
		email, err = notify.NewGmailNotifier(ctx, cfg.Mail.CredentialsFile, env)
	} else {
		email, err = notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
		}, env)
	}
	if err != nil {
		return nil, nil, err
	}

	if len(cfg.Kafka.Brokers) == 0 {
		return email, func() {}, nil
	}
	publisher := notify.NewKafkaPublisher(notify.KafkaConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
	})
	return notify.Fanout{Email: email, Events: publisher}, func() { publisher.Close() }, nil
}
