package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"time"

	"fitrec/internal/app"
	"fitrec/internal/config"
	"fitrec/internal/model"
	"fitrec/internal/recon"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a FitrecApp. The caller must defer app.Close().
// command names the CLI command being run (e.g. "import", "reimport").
func newApp(ctx context.Context, command string) (*app.FitrecApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewFitrecApp(ctx, cfg, command)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:          "fitrec",
	Short:        "Import and reconcile personal fitness records",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Timezone:   %s\n", cfg.Timezone)
		fmt.Printf("Database:   %s\n", cfg.Database.Type)
		fmt.Printf("Archive:    %s\n", cfg.Archive.Type)
		fmt.Printf("Encryption: %s\n", cfg.Encryption.Type)
		return nil
	},
}

// archive command
var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Manage the raw import archive",
}

var archiveCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the archive is reachable and writable",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "archive-check")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.CheckArchive(); err != nil {
			return err
		}
		fmt.Println("Archive OK")
		return nil
	},
}

// import command
var importCmd = &cobra.Command{
	Use:   "import PATH...",
	Short: "Import export files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		recursive, _ := cmd.Flags().GetBool("recursive")
		sourceFlag, _ := cmd.Flags().GetString("source")

		var source model.Source
		if sourceFlag != "" {
			s, err := model.ParseSource(sourceFlag)
			if err != nil {
				return err
			}
			if !s.IsImport() {
				return fmt.Errorf("source %s cannot be imported from a file", s)
			}
			source = s
		}

		a, err := newApp(cmd.Context(), "import")
		if err != nil {
			return err
		}
		defer a.Close()

		batches, importErr := a.ImportPaths(cmd.Context(), args, recursive, source)
		for _, b := range batches {
			if b != nil {
				printBatch(b)
			}
		}
		if importErr != nil {
			return fmt.Errorf("import failed: %w", importErr)
		}
		return nil
	},
}

// log command
var logCmd = &cobra.Command{
	Use:   "log KIND [VALUE]",
	Short: "Log a measurement by hand",
	Long: `Log a measurement by hand. VALUE is kilograms for weight, percent for
body_fat, minutes for workout, hours for sleep and calories for meal.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := model.ParseKind(args[0])
		if err != nil {
			return err
		}
		entry := app.ManualEntry{Kind: kind}
		if len(args) == 2 {
			if entry.Value, err = strconv.ParseFloat(args[1], 64); err != nil {
				return fmt.Errorf("invalid value %q: %w", args[1], err)
			}
		}
		entry.Name, _ = cmd.Flags().GetString("name")
		entry.Note, _ = cmd.Flags().GetString("note")
		entry.Items, _ = cmd.Flags().GetStringSlice("item")
		at, _ := cmd.Flags().GetString("at")

		a, err := newApp(cmd.Context(), "log")
		if err != nil {
			return err
		}
		defer a.Close()

		if at != "" {
			if entry.At, err = parseTime(at, a.Location()); err != nil {
				return err
			}
		}

		out, err := a.LogRecord(cmd.Context(), entry)
		if err != nil {
			return err
		}
		fmt.Printf("%s %s\n", out.Action, out.RecordID)
		return nil
	},
}

// parseTime accepts RFC 3339 or a local "YYYY-MM-DD HH:MM" time.
func parseTime(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02T15:04"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q: use RFC 3339 or YYYY-MM-DD HH:MM", s)
}

// records command
var recordsCmd = &cobra.Command{
	Use:   "records [KIND]",
	Short: "List stored records",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		var kind model.Kind
		if len(args) == 1 {
			k, err := model.ParseKind(args[0])
			if err != nil {
				return err
			}
			kind = k
		}

		a, err := newApp(cmd.Context(), "records")
		if err != nil {
			return err
		}
		defer a.Close()

		recs, err := a.Records(cmd.Context(), kind, limit)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			fmt.Println("No records.")
			return nil
		}

		loc := a.Location()
		for _, r := range recs {
			fmt.Printf("%s  %-8s  %-12s  %s\n",
				r.Timestamp.In(loc).Format("2006-01-02 15:04"),
				r.Kind,
				r.Source,
				formatAttributes(r.EffectiveAttributes()),
			)
		}
		return nil
	},
}

func formatAttributes(attrs map[string]any) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		if !strings.HasPrefix(k, "item:") {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	parts := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, attrs[k]))
	}
	if n := len(attrs) - len(keys); n > 0 {
		parts = append(parts, fmt.Sprintf("items=%d", n))
	}
	return strings.Join(parts, " ")
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history [BATCH_ID]",
	Short: "View import history",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context(), "history")
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) == 1 {
			b, err := a.Batch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if b == nil {
				return fmt.Errorf("batch not found: %s", args[0])
			}
			printBatch(b)
			for _, e := range b.Errors {
				fmt.Printf("  %-16s  %-10s  %s\n", e.Code, e.RawEntryRef, e.Message)
			}
			return nil
		}

		batches, err := a.History(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(batches) == 0 {
			fmt.Println("No imports recorded.")
			return nil
		}
		for _, b := range batches {
			printBatch(b)
		}
		return nil
	},
}

func printBatch(b *recon.ImportBatch) {
	duration := ""
	if !b.FinishedAt.IsZero() {
		duration = b.FinishedAt.Sub(b.StartedAt).Truncate(time.Millisecond).String()
	}
	fmt.Printf("%s  %-12s  %-14s  %s  %-9s  +%d ~%d >%d =%d fold:%d skip:%d err:%d  %s\n",
		b.ID,
		b.Source,
		b.FileName,
		b.StartedAt.Local().Format("2006-01-02 15:04:05"),
		b.Status,
		b.Inserted,
		b.Replaced,
		b.Merged,
		b.DiscardedAsDuplicate,
		b.Folded,
		b.Skipped,
		len(b.Errors),
		duration,
	)
	if b.FailureMessage != "" {
		fmt.Printf("  %s: %s\n", b.FailureCode, b.FailureMessage)
	}
}

// reimport command
var reimportCmd = &cobra.Command{
	Use:   "reimport BATCH_ID",
	Short: "Run an archived import file through the resolver again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "reimport")
		if err != nil {
			return err
		}
		defer a.Close()

		b, err := a.Reimport(cmd.Context(), args[0], func() (string, error) {
			return app.ReadPassphrase("Archive passphrase: ", false)
		})
		if b != nil {
			printBatch(b)
		}
		if err != nil {
			return fmt.Errorf("reimport failed: %w", err)
		}
		return nil
	},
}

// encryption command
var encryptionCmd = &cobra.Command{
	Use:   "encryption",
	Short: "Manage archive encryption",
}

var encryptionSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Generate the archive key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "encryption-setup")
		if err != nil {
			return err
		}
		defer a.Close()

		pass, err := app.ReadPassphrase("New passphrase: ", true)
		if err != nil {
			return err
		}
		if err := a.SetupEncryption(pass); err != nil {
			return err
		}
		fmt.Println("Encryption key pair created")
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	archiveCmd.AddCommand(archiveCheckCmd)
	encryptionCmd.AddCommand(encryptionSetupCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(encryptionCmd)
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().BoolP("recursive", "r", false, "Recurse into subdirectories")
	importCmd.Flags().StringP("source", "s", "", "Source of every file (import_apple or import_hevy); detected from the file name when empty")
	rootCmd.AddCommand(logCmd)
	logCmd.Flags().String("at", "", "Time of the measurement (default now)")
	logCmd.Flags().String("name", "", "Workout title or meal name")
	logCmd.Flags().String("note", "", "Free-text note")
	logCmd.Flags().StringSlice("item", nil, "Meal item (repeatable)")
	rootCmd.AddCommand(recordsCmd)
	recordsCmd.Flags().IntP("limit", "n", 50, "Maximum number of records to show")
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of imports to show")
	rootCmd.AddCommand(reimportCmd)
}
