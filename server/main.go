package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	pb "github.com/hazavi/yumekai-sub000/grpc"
	"github.com/hazavi/yumekai-sub000/server/adaptor"
	"github.com/hazavi/yumekai-sub000/server/catalog"
	"github.com/hazavi/yumekai-sub000/server/config"
	"github.com/hazavi/yumekai-sub000/server/repository"
	"github.com/hazavi/yumekai-sub000/server/store"
	"github.com/hazavi/yumekai-sub000/server/usecase"
)

const (
	sqliteDriver    = "sqlite3_yumekai"
	shutdownTimeout = 10 * time.Second
)

func init() {
	sql.Register(sqliteDriver,
		&sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				if _, err := conn.Exec("PRAGMA journal_mode = WAL", nil); err != nil {
					return err
				}
				_, err := conn.Exec("PRAGMA busy_timeout = 5000", nil)
				return err
			},
		})
}

func main() {
	var configFile string
	rootCmd := &cobra.Command{
		Use:           "yumekai-server",
		Short:         "Watch-party room coordinator",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetViper(), configFile)
			if err != nil {
				return err
			}
			cfg.ConfigureLogging()
			return run(cfg)
		},
	}
	rootCmd.Flags().StringVarP(&configFile, "config", "c", "", "config file (default ./yumekai.yaml)")
	rootCmd.Flags().Int("port", 50051, "gRPC listen port")
	rootCmd.Flags().String("store-backend", config.BackendSQLite, "sqlite, redis or memory")
	viper.BindPFlag("port", rootCmd.Flags().Lookup("port"))
	viper.BindPFlag("store_backend", rootCmd.Flags().Lookup("store-backend"))

	if err := rootCmd.Execute(); err != nil {
		logrus.WithError(err).Fatal("server exited")
	}
}

func run(cfg config.Config) error {
	persister, closePersister, err := openPersister(cfg)
	if err != nil {
		return err
	}
	defer closePersister()

	mem := store.NewMemory(persister)
	defer mem.Close()
	restored, err := mem.Restore()
	if err != nil {
		return fmt.Errorf("failed to restore rooms: %w", err)
	}

	warden := usecase.NewHostWarden(mem, nil)
	reset, err := warden.ResetPresence()
	if err != nil {
		return fmt.Errorf("failed to reset presence: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"backend":  cfg.StoreBackend,
		"restored": restored,
		"reset":    reset,
	}).Info("store ready")

	directory := usecase.NewDirectory(mem, nil)
	catalogClient := catalog.NewClient(cfg.CatalogURL, cfg.CatalogTimeout)
	rooms := usecase.NewRoomSessions(mem, catalogClient, nil)
	uc := usecase.NewSessionUsecase(mem, directory, rooms)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	warden.Start(ctx)
	defer warden.Stop()

	reaper := usecase.NewReaper(mem, nil, cfg.SweepInterval, cfg.InactiveTimeout)
	reaper.SetOnReaped(rooms.Forget)
	reaper.Start(ctx)
	defer reaper.Stop()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s := grpc.NewServer()
	pb.RegisterWatchPartyServer(s, adaptor.NewAdaptor(uc))
	reflection.Register(s)

	serveErr := make(chan error, 1)
	go func() {
		logrus.WithField("port", cfg.Port).Info("server is running")
		serveErr <- s.Serve(lis)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return fmt.Errorf("failed to serve: %w", err)
	case sig := <-quit:
		logrus.WithField("signal", sig.String()).Info("shutting down server")
	}

	cancel()
	stopped := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		logrus.Warn("graceful stop timed out, forcing shutdown")
		s.Stop()
	}
	logrus.Info("server exited")
	return nil
}

func openPersister(cfg config.Config) (store.Persister, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendSQLite:
		conn, err := sql.Open(sqliteDriver, cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open db: %w", err)
		}
		rp, err := repository.NewRepository(conn)
		if err != nil {
			conn.Close()
			return nil, nil, err
		}
		return rp, func() { conn.Close() }, nil
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		return repository.NewRedisRepository(client, cfg.RedisKeyPrefix), func() { client.Close() }, nil
	default:
		return nil, func() {}, nil
	}
}
