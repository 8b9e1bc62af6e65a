package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	syssignal "os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/auth"
	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/cache"
	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/collab"
	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/config"
	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/database"
	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/document"
	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/events"
	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/logging"
	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/metrics"
	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/registry"
	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/room"
	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/server"
	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/signal"
	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/whiteboard"
	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/ws"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "collab-api",
		Short: "Realtime document collaboration service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("redis-address", "", "Redis address (empty for in-process storage)")
	cmd.PersistentFlags().String("kafka-brokers", "", "Comma-separated Kafka brokers (empty disables publishing)")
	cmd.PersistentFlags().Int("room-max-participants", defaults.GetInt("room.max_participants"), "Maximum participants per room")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Token signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "redis.address", "redis-address")
	bindFlag(cmd, "kafka.brokers", "kafka-brokers")
	bindFlag(cmd, "room.max_participants", "room-max-participants")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger("collab-api", appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	var keyValue cache.KeyValue
	if appConfig.RedisAddress != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     appConfig.RedisAddress,
			Password: appConfig.RedisPassword,
		})
		defer client.Close()
		keyValue = cache.NewRedisKeyValue(client)
		logger.Info("using redis snapshot storage", zap.String("address", appConfig.RedisAddress))
	} else {
		keyValue = cache.NewMemoryKeyValue()
		logger.Warn("redis not configured, snapshots are process-local")
	}

	publisher, err := events.NewKafkaPublisher(appConfig.KafkaBrokers, appConfig.KafkaTopic, logger)
	if err != nil {
		return err
	}
	if publisher != nil {
		defer publisher.Close() //nolint:errcheck
	}

	registryService, err := registry.NewService(registry.ServiceConfig{Database: db, Clock: time.Now})
	if err != nil {
		return err
	}

	sink := metrics.NewLogSink(logger)
	store := document.NewStore(document.StoreConfig{
		KeyValue:    keyValue,
		Logger:      logger,
		SnapshotTTL: appConfig.SnapshotTTL,
	})
	rooms := room.NewManager(room.ManagerConfig{
		Logger:          logger,
		MaxParticipants: appConfig.MaxRoomParticipants,
	})
	presence := room.NewPresence(rooms, nil)
	coordinator, err := collab.NewCoordinator(collab.CoordinatorConfig{
		Store:     store,
		Rooms:     rooms,
		Presence:  presence,
		Directory: registry.NewAccess(registryService),
		Publisher: kafkaOrNil(publisher),
		Metrics:   sink,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	board, err := whiteboard.NewService(whiteboard.ServiceConfig{
		Rooms:       rooms,
		KeyValue:    keyValue,
		Logger:      logger,
		SnapshotTTL: appConfig.SnapshotTTL,
	})
	if err != nil {
		return err
	}

	wsHandler := &ws.Handler{
		Rooms:       rooms,
		Presence:    presence,
		Coordinator: coordinator,
		Signal:      signal.NewRelay(rooms, logger),
		Whiteboard:  board,
		Metrics:     sink,
		Logger:      logger,
	}
	if err := wsHandler.Validate(); err != nil {
		return err
	}

	tokenManager := auth.NewTokenService(auth.TokenServiceConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.TokenIssuer,
		Audience:      appConfig.TokenAudience,
	})

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager: tokenManager,
		Registry:     registryService,
		Store:        store,
		WSHandler:    wsHandler,
		KeyValue:     keyValue,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := syssignal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go runEvictionLoop(signalCtx, store, appConfig.EvictionInterval, appConfig.IdleEvictionAfter, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func kafkaOrNil(publisher *events.KafkaPublisher) events.Publisher {
	if publisher == nil {
		return nil
	}
	return publisher
}

// runEvictionLoop periodically unloads documents that have sat idle with no
// participants, persisting any unsaved snapshot first.
func runEvictionLoop(ctx context.Context, store *document.Store, interval, idleAfter time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if evicted := store.EvictIdle(ctx, idleAfter); evicted > 0 {
				logger.Info("evicted idle documents", zap.Int("count", evicted))
			}
		}
	}
}
