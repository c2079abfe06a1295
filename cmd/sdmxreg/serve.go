package main

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sdmxkit/sdmxreg/internal/cli/config"
	"github.com/sdmxkit/sdmxreg/internal/cli/ui"
	"github.com/sdmxkit/sdmxreg/internal/sdmx/artefacts"
	"github.com/sdmxkit/sdmxreg/internal/sdmx/serializer"
	"github.com/sdmxkit/sdmxreg/internal/store"
	"github.com/sdmxkit/sdmxreg/internal/store/sqlstore"
	"github.com/sdmxkit/sdmxreg/internal/web"
	"github.com/sdmxkit/sdmxreg/internal/web/server"
)

var serveDev bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the registry HTTP server",
	Long:  "Serve the structure submission and structure query endpoints until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		logger, err := newLogger(serveDev)
		if err != nil {
			return err
		}
		defer logger.Sync()

		engine, err := artefacts.NewEngine(serializer.Config{
			StructureURLBase: cfg.StructureURLBase,
			Languages:        cfg.Languages,
		})
		if err != nil {
			return err
		}

		db, err := openDatabase(cfg)
		if err != nil {
			return err
		}

		sdb := sqlstore.New(db, artefacts.NewSchema(), logger)
		handler := &web.Handler{
			Engine:   engine,
			SenderID: cfg.SenderID,
			Logger:   logger,
			OpenStore: func(ctx context.Context) (store.Store, func(commit bool) error, error) {
				session, err := sdb.Session(ctx)
				if err != nil {
					return nil, nil, err
				}
				return session, func(commit bool) error {
					if commit {
						return session.Commit()
					}
					return session.Rollback()
				}, nil
			},
		}

		if cfg.Redis.Addr != "" {
			client := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			if err := client.Ping(cmd.Context()).Err(); err != nil {
				db.Close()
				return fmt.Errorf("failed to connect to redis: %w", err)
			}
			handler.Cache = web.NewRenderCache(client, cfg.Redis.TTL)
			logger.Info("render cache enabled", zap.String("addr", cfg.Redis.Addr))
		}

		serverConfig := server.DefaultConfig(web.NewRouter(handler))
		serverConfig.Address = cfg.Server.Addr()
		serverConfig.Database = server.DefaultDatabaseConfig(db)
		serverConfig.Logger = logger

		srv, err := server.New(serverConfig)
		if err != nil {
			db.Close()
			return err
		}

		gs := server.NewGracefulShutdown(srv, cfg.Server.ShutdownTimeout)
		gs.RegisterHook(func(ctx context.Context) error {
			return handler.Cache.Close()
		})
		gs.RegisterHook(func(ctx context.Context) error {
			return db.Close()
		})

		ui.Infof(os.Stdout, "registry listening on %s", cfg.Server.Addr())
		return gs.Start()
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveDev, "dev", false, "use human-readable development logging")
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
