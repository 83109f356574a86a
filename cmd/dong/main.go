package main

import (
	"context"
	"errors"
	"os"

	"github.com/peterolson/dong-chinese-v2-sub000/internal/config"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/database"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/logging"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dong",
		Short: "Dong Chinese character dictionary backend",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		SilenceUsage: true,
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(
		newServeCommand(),
		newIngestCommand(),
		newRebuildCommand(),
		newLedgerCommand(),
		newTokenCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres)")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("database-dsn", defaults.GetString("database.dsn"), "PostgreSQL DSN")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().String("redis-url", defaults.GetString("redis.url"), "Redis URL enabling the rebuild lease")
	cmd.PersistentFlags().StringSlice("allowed-origins", nil, "Browser origins allowed to send credentialed requests")
	cmd.PersistentFlags().String("otlp-endpoint", defaults.GetString("telemetry.otlp_endpoint"), "OTLP/HTTP trace endpoint")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "session.signing_secret", "signing-secret")
	bindFlag(cmd, "redis.url", "redis-url")
	bindFlag(cmd, "http.allowed_origins", "allowed-origins")
	bindFlag(cmd, "telemetry.otlp_endpoint", "otlp-endpoint")
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

// runtime bundles what every command needs: configuration, a logger, tracing and the database.
type runtime struct {
	config   config.AppConfig
	logger   *zap.Logger
	db       *gorm.DB
	shutdown telemetry.Shutdown
}

func openRuntime(ctx context.Context, command string) (*runtime, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.ServiceName, command)
	if err != nil {
		return nil, err
	}

	shutdown, err := telemetry.Setup(ctx, appConfig.OTLPEndpoint, appConfig.ServiceName)
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	}

	db, err := database.Open(appConfig, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	return &runtime{config: appConfig, logger: logger, db: db, shutdown: shutdown}, nil
}

func (r *runtime) Close(ctx context.Context) {
	if err := r.shutdown(ctx); err != nil {
		r.logger.Warn("trace flush failed", zap.Error(err))
	}
	if sqlDB, err := r.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = r.logger.Sync()
}
