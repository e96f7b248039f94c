package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/seantiz/coinpulse/internal/api"
	"github.com/seantiz/coinpulse/internal/auth"
	"github.com/seantiz/coinpulse/internal/cache"
	"github.com/seantiz/coinpulse/internal/coinbase"
	"github.com/seantiz/coinpulse/internal/coingecko"
	"github.com/seantiz/coinpulse/internal/config"
	"github.com/seantiz/coinpulse/internal/jobs"
	"github.com/seantiz/coinpulse/internal/model"
	"github.com/seantiz/coinpulse/internal/newsapi"
	"github.com/seantiz/coinpulse/internal/payment"
	"github.com/seantiz/coinpulse/internal/store"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	rootCmd := &cobra.Command{
		Use:           "coinpulse",
		Short:         "CoinPulse crypto news and sponsorship server",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Path to a YAML config file")

	rootCmd.AddCommand(serveCmd(&cfgPath))
	rootCmd.AddCommand(userCmd(&cfgPath))
	rootCmd.AddCommand(sweepCmd(&cfgPath))
	return rootCmd
}

// loadConfig reads configuration and builds the logger.
func loadConfig(cfgPath string) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, config.NewLogger(os.Stdout, cfg.Level()), nil
}

func openStore(cfg config.Config) (*store.SQLStore, error) {
	db, err := store.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// setup loads configuration, builds the logger and opens the database.
func setup(cfgPath string) (config.Config, *slog.Logger, *store.SQLStore, error) {
	cfg, logger, err := loadConfig(cfgPath)
	if err != nil {
		return cfg, nil, nil, err
	}
	db, err := openStore(cfg)
	if err != nil {
		return cfg, nil, nil, err
	}
	return cfg, logger, db, nil
}

func serveCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and maintenance scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			db, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			logger.Info("coinpulse: starting",
				"version", Version,
				"listen_addr", cfg.ListenAddr,
				"db_driver", cfg.DBDriver,
				"redis", cfg.RedisURL != "",
			)

			newsCache, err := cache.New(cfg.RedisURL, cfg.CacheSize, cfg.NewsTTL)
			if err != nil {
				return fmt.Errorf("news cache: %w", err)
			}
			defer newsCache.Close()
			priceCache, err := cache.New(cfg.RedisURL, cfg.CacheSize, cfg.PriceTTL)
			if err != nil {
				return fmt.Errorf("price cache: %w", err)
			}
			defer priceCache.Close()

			news := newsapi.NewClient(cfg.NewsBaseURL, cfg.NewsAPIKey, newsCache, cfg.NewsTTL, logger).WithArchive(db)
			prices := coingecko.NewClient(cfg.CoinGeckoBaseURL, priceCache, cfg.PriceTTL, logger)
			charges := coinbase.NewClient(cfg.CoinbaseBaseURL, cfg.CoinbaseAPIKey, logger)
			payments := payment.NewService(db, charges, logger)

			sched, err := jobs.NewScheduler(cfg.SweepSchedule, jobs.NewMaintenance(payments, db, logger), logger)
			if err != nil {
				return err
			}
			sched.Start()
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := sched.Stop(ctx); err != nil {
					logger.Warn("stop scheduler", "error", err)
				}
			}()

			srv := api.NewServer(api.Options{
				Addr:           cfg.ListenAddr,
				StaticDir:      cfg.StaticDir,
				RateLimitRPS:   cfg.RateLimitRPS,
				RateLimitBurst: cfg.RateLimitBurst,
				TrustProxy:     cfg.TrustProxy,
			}, api.Deps{
				Store:    db,
				News:     news,
				Prices:   prices,
				Payments: payments,
				Webhooks: coinbase.NewVerifier(cfg.CoinbaseWebhookSecret),
				Logger:   logger,
			})
			return srv.Run()
		},
	}
}

func userCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage admin accounts",
	}

	add := &cobra.Command{
		Use:   "add <username>",
		Short: "Create an admin account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, _ := cmd.Flags().GetString("password")
			if password == "" {
				password = os.Getenv(config.EnvPrefix + "_ADMIN_PASSWORD")
			}
			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}

			_, logger, db, err := setup(*cfgPath)
			if err != nil {
				return err
			}
			defer db.Close()

			u := &model.User{ID: model.NewID(), Username: args[0], PasswordHash: hash}
			if err := db.CreateUser(cmd.Context(), u); err != nil {
				if errors.Is(err, store.ErrDuplicate) {
					return fmt.Errorf("user %q already exists", args[0])
				}
				return err
			}
			logger.Info("admin user created", "username", u.Username, "id", u.ID)
			return nil
		},
	}
	add.Flags().StringP("password", "p", "", "Password (defaults to $"+config.EnvPrefix+"_ADMIN_PASSWORD)")

	cmd.AddCommand(add)
	return cmd
}

func sweepCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire stale payments and retire ended listings once",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, db, err := setup(*cfgPath)
			if err != nil {
				return err
			}
			defer db.Close()

			payments := payment.NewService(db, nil, logger)
			res, err := jobs.NewMaintenance(payments, db, logger).RunOnce(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "expired payments: %d\nended icos: %d\nended banners: %d\n",
				res.ExpiredPayments, res.EndedICOs, res.EndedBanners)
			return err
		},
	}
}
