package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/blockedby/outreach/internal/app"
	"github.com/blockedby/outreach/internal/config"
	"github.com/blockedby/outreach/internal/logger"
	"github.com/blockedby/outreach/internal/models"
)

var (
	configPath string
	envFile    string
	recentN    int
	interval   time.Duration

	sendOpts        app.SendOptions
	coverLetterFile string
)

var recordFields = []string{
	models.FieldEmail,
	models.FieldName,
	models.FieldCompany,
	models.FieldSector,
	models.FieldCity,
	models.FieldPosition,
}

var rootCmd = &cobra.Command{
	Use:           "outreach",
	Short:         "Send personalized emails and job applications over SMTP",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runMenu,
}

var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Run the interactive menu",
	RunE:  runMenu,
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send one email",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			rec := flagRecord(cmd)
			if err := a.SendOne(ctx, rec, sendOpts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent to %s\n", rec.Email())
			return nil
		})
	},
}

var batchCmd = &cobra.Command{
	Use:   "batch [csv]",
	Short: "Send the outreach template to every row of a CSV file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			stats, err := a.SendBatch(ctx, firstArg(args))
			app.PrintStats(cmd.OutOrStdout(), stats)
			return err
		})
	},
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Send one job application with the CV attached",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			rec := flagRecord(cmd)
			letter, err := readCoverLetter(coverLetterFile)
			if err != nil {
				return err
			}
			if err := a.Apply(ctx, rec, letter); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Application sent to %s\n", rec.Email())
			return nil
		})
	},
}

var applyBatchCmd = &cobra.Command{
	Use:   "apply-batch [csv]",
	Short: "Send applications with the CV attached to every row of a CSV file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			stats, err := a.ApplyBatch(ctx, firstArg(args))
			app.PrintStats(cmd.OutOrStdout(), stats)
			return err
		})
	},
}

var sampleCmd = &cobra.Command{
	Use:   "sample [path]",
	Short: "Write an example CSV file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(_ context.Context, a *app.App) error {
			path, err := a.WriteSample(firstArg(args))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sample written to %s\n", path)
			return nil
		})
	},
}

var testConnCmd = &cobra.Command{
	Use:   "test-connection",
	Short: "Check SMTP connectivity and credentials",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if err := a.TestConnection(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Connection OK")
			return nil
		})
	},
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the batch on a fixed interval until interrupted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if err := a.StartSchedule(interval); err != nil {
				return err
			}
			app.PrintSchedule(cmd.OutOrStdout(), a.ScheduleStatus())
			<-ctx.Done()
			return nil
		})
	},
}

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List recent sends",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(_ context.Context, a *app.App) error {
			app.PrintRecent(cmd.OutOrStdout(), a.Recent(recentN))
			return nil
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "config file, created with defaults if missing")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional env file with OUTREACH_* overrides")

	for _, cmd := range []*cobra.Command{sendCmd, applyCmd} {
		for _, f := range recordFields {
			cmd.Flags().String(f, "", "recipient "+f)
		}
		_ = cmd.MarkFlagRequired(models.FieldEmail)
	}

	sendCmd.Flags().StringVar(&sendOpts.Subject, "subject", "", "subject, overrides the outreach template")
	sendCmd.Flags().StringVar(&sendOpts.Body, "body", "", "message body, overrides the outreach template")
	sendCmd.Flags().StringSliceVar(&sendOpts.Attachments, "attach", nil, "file to attach (repeatable)")
	applyCmd.Flags().StringVar(&coverLetterFile, "cover-letter-file", "", "file with a cover letter replacing the application template body")

	recentCmd.Flags().IntVarP(&recentN, "limit", "n", 20, "number of entries")
	scheduleCmd.Flags().DurationVar(&interval, "interval", 0, "interval between runs (default from config)")

	rootCmd.AddCommand(
		menuCmd,
		sendCmd,
		batchCmd,
		applyCmd,
		applyBatchCmd,
		sampleCmd,
		testConnCmd,
		scheduleCmd,
		recentCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runMenu(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		if a.Config().ScheduleEnabled {
			if err := a.StartSchedule(0); err != nil {
				return err
			}
		}
		return app.NewMenu(a, cmd.InOrStdin(), cmd.OutOrStdout()).Run(ctx)
	})
}

// withApp loads config, initializes logging and runs fn with a wired app.
// The context is canceled on SIGINT or SIGTERM.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}

	cfg, created, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	log := logger.Get()
	if created {
		log.Info().Str("path", configPath).Msg("config file created with defaults")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		a.Close(shutdownCtx)
	}()

	return fn(ctx, a)
}

// flagRecord builds a record from the recipient flags that were set.
func flagRecord(cmd *cobra.Command) models.Record {
	rec := models.Record{}
	for _, f := range recordFields {
		if v, _ := cmd.Flags().GetString(f); v != "" {
			rec[f] = v
		}
	}
	return rec
}

func readCoverLetter(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read cover letter: %w", err)
	}
	return string(data), nil
}

func firstArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}
