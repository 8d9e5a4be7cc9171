package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"recruitline/internal/app"
	"recruitline/internal/config"
	"recruitline/internal/db"
	"recruitline/internal/engine"
	"recruitline/internal/server"
	"recruitline/internal/sweep"
)

var rootCmd = &cobra.Command{
	Use:   "rl",
	Short: "Recruitline CLI",
	Long: `Recruitline runs a hiring pipeline: candidates, interviews and trials,
self-service booking links, feedback and hire/reject decisions.

- Workspace: a directory holding recruitline.yml and the .recruitline database.
- Candidates move new -> screening -> interview_scheduled -> interview_complete
  -> trial_scheduled -> trial_complete -> approved/rejected (withdrawn on no-show).
- Archive is a soft delete; restore brings back the previous status and
  reactivate starts a fresh application for a returning candidate.
- Every change lands in the append-only activity log ('rl activity').`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	// .env in the workspace is optional.
	_ = godotenv.Load(filepath.Join(viper.GetString("workspace"), ".env"))
	viper.SetEnvPrefix("RECRUITLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	level := slog.LevelInfo
	if viper.GetBool("debug") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("actor-name", "", "actor display name for the activity log")
	rootCmd.PersistentFlags().String("redis-url", "", "redis URL for outbound messages (overrides config)")
	rootCmd.PersistentFlags().Bool("offline", false, "drop outbound messages instead of publishing them")
	rootCmd.PersistentFlags().Bool("debug", false, "debug logging")
	for _, name := range []string{"workspace", "json", "actor-id", "actor-name", "redis-url", "offline", "debug"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(candidateCmd())
	rootCmd.AddCommand(interviewCmd())
	rootCmd.AddCommand(decisionCmd())
	rootCmd.AddCommand(bookingCmd())
	rootCmd.AddCommand(activityCmd())
	rootCmd.AddCommand(rbacCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage recruitline.yml"}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default recruitline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(c)
		},
	}
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate recruitline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(viper.GetString("workspace")); err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	}
	cfg.AddCommand(initCmd, showCmd, validateCmd)
	return cfg
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var legacyHeader, devLogin, noSweep bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API, webhook dispatcher and sweep scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := slog.Default()
			ws, err := openWorkspace(ctx)
			if err != nil {
				return err
			}
			defer ws.Close()

			authCfg := server.AuthConfig{
				JWTSecret:              viper.GetString("jwt_secret"),
				AllowLegacyActorHeader: legacyHeader,
				DevLogin:               devLogin,
				Logger:                 logger,
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("RECRUITLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: ws.Engine, BasePath: basePath, Auth: authCfg, Logger: logger})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(ctx, ws.Engine, logger)
			if !noSweep {
				sched := sweep.New(ws.Engine, ws.Config.Sweep.Schedule, logger)
				if err := sched.Start(ctx); err != nil {
					return err
				}
				defer sched.Stop()
			}

			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
			logger.Info("serving recruitline API", "addr", addr, "base_path", basePath, "docs", "/docs")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&legacyHeader, "allow-actor-header", false, "accept X-Actor-Id without credentials (local use only)")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "expose POST /auth/dev/login")
	cmd.Flags().BoolVar(&noSweep, "no-sweep", false, "do not run the feedback reminder sweep")
	return cmd
}

// --- helpers ---

func openWorkspace(ctx context.Context) (*app.Workspace, error) {
	return app.Open(ctx, viper.GetString("workspace"), app.Options{
		Logger:           slog.Default(),
		RedisURL:         viper.GetString("redis-url"),
		OfflineMessaging: viper.GetBool("offline"),
	})
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	ws, err := openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer ws.Close()
	return fn(ctx, ws.Engine)
}

func currentActor() engine.Actor {
	return engine.Actor{ID: viper.GetString("actor-id"), Name: viper.GetString("actor-name")}
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderTable prints rows unless --json is set, in which case v is encoded.
func renderTable(v any, header table.Row, rows []table.Row) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	tw.AppendRows(rows)
	tw.Render()
	return nil
}

func optionalString(cmd *cobra.Command, flag, value string) *string {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	return &value
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}
