// Watchtower Daemon - background mailbox and calendar monitoring.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/quantumlife/watchtower/internal/api"
	"github.com/quantumlife/watchtower/internal/config"
	"github.com/quantumlife/watchtower/internal/core"
	"github.com/quantumlife/watchtower/internal/email"
	"github.com/quantumlife/watchtower/internal/monitor"
	"github.com/quantumlife/watchtower/internal/scheduler"
	"github.com/quantumlife/watchtower/internal/sources"
	"github.com/quantumlife/watchtower/internal/sources/calendar"
	"github.com/quantumlife/watchtower/internal/sources/gmail"
	"github.com/quantumlife/watchtower/internal/storage"
)

var (
	// Config
	dataDir    string
	configPath string

	// Version
	version = "0.1.0"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "watchtower",
		Short: "Watchtower - background monitoring for your inbox and calendar",
		Long: `Watchtower watches your mailbox and calendar in the background,
matches incoming events against your alert rules, and optionally
sends rate-limited auto-replies on your behalf.

All state lives in a local SQLite database under your data directory.`,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (default ~/.watchtower)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(pollCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// serveCmd runs the daemon: scheduler plus HTTP API.
func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the monitoring daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			db, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			engine := buildEngine(cfg, db)

			sched := scheduler.NewScheduler()
			interval := time.Duration(cfg.Poller.IntervalSeconds) * time.Second
			task := scheduler.IntervalTask("poll-monitors", "Poll monitors", interval, func(ctx context.Context) error {
				_, err := engine.PollAll(ctx, core.PollScheduled)
				return err
			})
			if err := sched.Register(task); err != nil {
				return fmt.Errorf("failed to register poll task: %w", err)
			}
			if err := sched.Start(); err != nil {
				return fmt.Errorf("failed to start scheduler: %w", err)
			}

			server := api.New(api.Config{
				Port:      cfg.Server.Port,
				DB:        db,
				Engine:    engine,
				Scheduler: sched,
			})

			go func() {
				sigCh := make(chan os.Signal, 1)
				signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
				<-sigCh

				fmt.Println("\nShutting down...")
				sched.Stop()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				server.Stop(shutdownCtx)
			}()

			fmt.Printf("Watchtower listening on http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
			return server.Start()
		},
	}

	cmd.Flags().IntVar(&port, "port", 8080, "HTTP server port")
	return cmd
}

// pollCmd runs a single manual poll and exits.
func pollCmd() *cobra.Command {
	var monitorID string

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Poll monitors once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			db, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			engine := buildEngine(cfg, db)
			ctx := context.Background()

			var results []*core.PollResult
			if monitorID != "" {
				result, err := engine.PollOne(ctx, monitorID, core.PollManual)
				if err != nil {
					return err
				}
				results = []*core.PollResult{result}
			} else {
				results, err = engine.PollAll(ctx, core.PollManual)
				if err != nil {
					return err
				}
			}

			for _, r := range results {
				if r.Success {
					fmt.Printf("✅ %s: %d events, %d alerts, %d replies (%dms)\n",
						r.MonitorID, r.EventsFetched, r.AlertsGenerated, r.AutoRepliesSent, r.DurationMs)
				} else {
					fmt.Printf("❌ %s: %s\n", r.MonitorID, r.Error)
				}
			}
			if len(results) == 0 {
				fmt.Println("No monitors configured.")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&monitorID, "monitor", "", "poll a single monitor by ID")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("watchtower %s\n", version)
		},
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	return cfg, nil
}

func openDatabase(cfg *config.Config) (*storage.DB, error) {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := storage.Open(storage.Config{Path: cfg.DatabasePath()})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return db, nil
}

// buildEngine wires stores, sources and the auto-reply sender into a
// polling engine.
func buildEngine(cfg *config.Config, db *storage.DB) *monitor.Engine {
	sender := email.NewSender(email.Config{
		SMTPHost:    cfg.SMTP.Host,
		SMTPPort:    cfg.SMTP.Port,
		Username:    cfg.SMTP.Username,
		Password:    cfg.SMTP.Password,
		FromEmail:   cfg.SMTP.FromEmail,
		FromName:    cfg.SMTP.FromName,
		UseStartTLS: true,
		Timeout:     30 * time.Second,
	})
	if !sender.IsConfigured() {
		fmt.Println("⚠️  SMTP not configured - auto-replies will be skipped")
	}

	srcs := loadSources(cfg)

	orchestrator := monitor.NewOrchestrator(
		storage.NewStateStore(db),
		storage.NewAlertStore(db),
		srcs,
		sender,
		cfg.Poller.ProcessedWindow,
	)
	return monitor.NewEngine(storage.NewMonitorStore(db), orchestrator, cfg.Poller.Concurrency)
}

// loadSources builds the event sources that have stored OAuth tokens.
// A missing token just means the source stays disconnected.
func loadSources(cfg *config.Config) []sources.Source {
	ctx := context.Background()
	var srcs []sources.Source

	if token := loadToken(filepath.Join(cfg.DataDir, "gmail_token.json")); token != nil {
		flow := gmail.NewOAuthFlow(gmail.DefaultOAuthConfig())
		service, err := flow.CreateService(ctx, token)
		if err != nil {
			fmt.Printf("⚠️  Gmail unavailable: %v\n", err)
		} else {
			srcs = append(srcs, gmail.NewAdapter(gmail.NewClient(service)))
			fmt.Println("✅ Gmail connected")
		}
	}

	if token := loadToken(filepath.Join(cfg.DataDir, "calendar_token.json")); token != nil {
		client := calendar.NewOAuthClient(calendar.DefaultOAuthConfig())
		service, err := client.CreateService(ctx, token)
		if err != nil {
			fmt.Printf("⚠️  Calendar unavailable: %v\n", err)
		} else {
			srcs = append(srcs, calendar.NewAdapter(calendar.NewClient(service, "")))
			fmt.Println("✅ Calendar connected")
		}
	}

	if len(srcs) == 0 {
		fmt.Println("⚠️  No event sources connected - polls will report no sources")
	}
	return srcs
}

func loadToken(path string) *oauth2.Token {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		fmt.Printf("⚠️  Ignoring malformed token file %s\n", filepath.Base(path))
		return nil
	}
	return &token
}
