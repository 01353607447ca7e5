package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"aide/internal/assistants"
	"aide/internal/auth"
	"aide/internal/chat"
	"aide/internal/config"
	"aide/internal/dispatch"
	"aide/internal/logging"
	"aide/internal/mail"
	"aide/internal/orchestrator"
	"aide/internal/server"
	"aide/internal/store"
	"aide/internal/usage"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:     "aide-server",
		Short:   "REST backend for assistant-driven chat",
		Version: version,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, configPath)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	root.Flags().Int("port", 0, "listen port")
	root.Flags().String("database-url", "", "postgres connection string")
	root.Flags().String("environment", "", "environment name (development, production)")

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, configPath)
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("migrate requires a database_url")
			}
			pool, err := store.Connect(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()
			return store.Migrate(cmd.Context(), pool)
		},
	}
	migrate.Flags().String("database-url", "", "postgres connection string")

	root.AddCommand(migrate)
	return root
}

// loadConfig layers the YAML file (explicit path or discovered via viper),
// environment variables, and command-line flags, in that order.
func loadConfig(cmd *cobra.Command, configPath string) (config.Config, error) {
	if configPath == "" {
		v := viper.New()
		v.SetConfigName("aide-config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
		if err := v.ReadInConfig(); err == nil {
			configPath = v.ConfigFileUsed()
		}
	}

	var opts []config.Option
	if configPath != "" {
		opts = append(opts, config.WithFile(configPath))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("database-url") {
		cfg.DatabaseURL, _ = flags.GetString("database-url")
	}
	if flags.Changed("environment") {
		cfg.Environment, _ = flags.GetString("environment")
	}
	return cfg, nil
}

func runServe(ctx context.Context, cfg config.Config) error {
	logger := logging.NewComponentLogger("Main")

	if cfg.AssistantsAPIKey == "" {
		return errors.New("assistants_api_key is required (AIDE_ASSISTANTS_API_KEY or OPENAI_API_KEY)")
	}
	if cfg.JWTSecret == "" {
		return errors.New("jwt_secret is required (AIDE_JWT_SECRET)")
	}

	client := assistants.NewClient(assistants.Config{
		APIKey:           cfg.AssistantsAPIKey,
		BaseURL:          cfg.AssistantsBaseURL,
		Timeout:          cfg.HTTPTimeout,
		MaxResponseBytes: cfg.MaxResponseBytes,
	})

	var (
		users        store.UserRepo
		assistantsDB store.AssistantRepo
		threads      store.ThreadRepo
		functions    store.FunctionRepo
		integrations store.IntegrationRepo
		credentials  store.CredentialRepo
		usageRepo    store.UsageRepo
	)
	if cfg.DatabaseURL != "" {
		pool, err := store.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()
		if err := store.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		users, assistantsDB, threads, functions, integrations, credentials, usageRepo = repoSet(store.NewPostgresStores(pool))
		logger.Info("using postgres storage")
	} else {
		mem := store.NewMemoryStores()
		users = mem.Users()
		assistantsDB = mem.Assistants()
		threads = mem.Threads()
		functions = mem.Functions()
		integrations = mem.Integrations()
		credentials = mem.Credentials()
		usageRepo = mem.Usage()
		logger.Warn("no database_url configured, falling back to in-memory storage")
	}

	static := dispatch.NewStaticRegistry()
	dispatch.RegisterBuiltins(static)
	dynamic := dispatch.NewDynamicRegistry(functions, logging.NewComponentLogger("Functions"))
	executor := dispatch.NewIntegrationExecutor(
		integrations,
		credentials,
		&http.Client{Timeout: cfg.HTTPTimeout},
		cfg.MaxResponseBytes,
		logging.NewComponentLogger("Integrations"),
	)
	dispatcher := dispatch.New(executor, dynamic, static, logging.NewComponentLogger("Dispatch"))

	runner := orchestrator.NewRunner(client, dispatcher, orchestrator.Config{
		PollInterval: cfg.PollInterval,
		RunDeadline:  cfg.RunDeadline,
		Logger:       logging.NewComponentLogger("Runs"),
	})

	estimator := usage.NewEstimator(usage.EstimatorConfig{
		PriceOverrides: priceOverrides(cfg.PriceOverrides),
		Logger:         logging.NewComponentLogger("Usage"),
	})

	chatSvc := chat.NewService(client, runner, assistantsDB, threads, users, usageRepo, estimator, logging.NewComponentLogger("Chat"))

	var mailer mail.Mailer
	if cfg.SMTPAddr != "" {
		mailer = mail.NewSMTPMailer(cfg.SMTPAddr, cfg.SMTPFrom, logging.NewComponentLogger("Mail"))
	}

	srv := server.New(server.Config{
		Addr:           fmt.Sprintf(":%d", cfg.Port),
		Environment:    cfg.Environment,
		EnableCORS:     true,
		MetricsEnabled: cfg.MetricsEnabled,
	}, server.Deps{
		Chat:       chatSvc,
		Remote:     client,
		Tokens:     auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessTokenTTL),
		Users:      users,
		Assistants: assistantsDB,
		Threads:    threads,
		Functions:  functions,
		Usage:      usageRepo,
		Dynamic:    dynamic,
		Mailer:     mailer,
		Logger:     logging.NewComponentLogger("HTTP"),
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("listening on :%d", cfg.Port)
	return srv.Run(ctx)
}

func repoSet(
	users *store.PostgresUserRepo,
	assistantsDB *store.PostgresAssistantRepo,
	threads *store.PostgresThreadRepo,
	functions *store.PostgresFunctionRepo,
	integrations *store.PostgresIntegrationRepo,
	credentials *store.PostgresCredentialRepo,
	usageRepo *store.PostgresUsageRepo,
) (store.UserRepo, store.AssistantRepo, store.ThreadRepo, store.FunctionRepo, store.IntegrationRepo, store.CredentialRepo, store.UsageRepo) {
	return users, assistantsDB, threads, functions, integrations, credentials, usageRepo
}

func priceOverrides(in map[string]config.ModelPrice) map[string]usage.ModelPrice {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]usage.ModelPrice, len(in))
	for model, price := range in {
		out[model] = usage.ModelPrice{Input: price.Input, Output: price.Output}
	}
	return out
}
