// Command intakectl drives the commission intake service from a terminal:
// interactive intake chats, maker queues and maker profile seeding.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"commission-intake/internal/app"
	"commission-intake/internal/domain"
	"commission-intake/internal/repository"
	"commission-intake/internal/usecase"
)

var (
	recordsTable  string
	paramPrefix   string
	maxMessageLen int
	contactAfter  int
	timeout       time.Duration
	verbose       bool

	makerHandle string
	queueLimit  int

	makerName        string
	makerEmail       string
	makerDescription string
	makerLocation    string
	makerCategories  string
	makerCompleted   int
)

var rootCmd = &cobra.Command{
	Use:   "intakectl",
	Short: "Operate the commission intake service",
	Long: `intakectl talks to the same DynamoDB table and SSM parameters as the
intake Lambda.

Defaults for --table and --param-prefix come from RECORDS_TABLE and
PARAM_PREFIX.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		if strings.TrimSpace(recordsTable) == "" {
			return fmt.Errorf("--table is required (or set RECORDS_TABLE)")
		}
		return nil
	},
}

// chatCmd runs an interactive intake session against a maker.
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive intake chat with a maker",
	Long: `Open an intake session for --maker and read customer turns from stdin.

Type /order to place the order, /quit to leave.`,
	RunE: runChat,
}

// queueCmd prints a maker's commissions, newest first.
var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List a maker's commissions",
	RunE:  runQueue,
}

var makerCmd = &cobra.Command{
	Use:   "maker",
	Short: "Manage maker profiles",
}

// makerPutCmd creates or replaces a maker profile.
var makerPutCmd = &cobra.Command{
	Use:   "put <handle>",
	Short: "Create or replace a maker profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runMakerPut,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&recordsTable, "table", os.Getenv("RECORDS_TABLE"), "DynamoDB records table")
	rootCmd.PersistentFlags().StringVar(&paramPrefix, "param-prefix", os.Getenv("PARAM_PREFIX"), "SSM parameter prefix")
	rootCmd.PersistentFlags().IntVar(&maxMessageLen, "max-message-length", app.DefaultMaxMessageLength, "Maximum customer message length")
	rootCmd.PersistentFlags().IntVar(&contactAfter, "contact-prompt-after", app.DefaultContactPromptAfter, "Transcript length that triggers the contact prompt")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Per-request timeout")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	chatCmd.Flags().StringVar(&makerHandle, "maker", "", "Maker handle (required)")
	_ = chatCmd.MarkFlagRequired("maker")

	queueCmd.Flags().StringVar(&makerHandle, "maker", "", "Maker handle (required)")
	queueCmd.Flags().IntVar(&queueLimit, "limit", 0, "Maximum commissions to list (0 uses the service default)")
	_ = queueCmd.MarkFlagRequired("maker")

	makerPutCmd.Flags().StringVar(&makerName, "name", "", "Display name (required)")
	makerPutCmd.Flags().StringVar(&makerEmail, "email", "", "Contact email")
	makerPutCmd.Flags().StringVar(&makerDescription, "description", "", "Profile description")
	makerPutCmd.Flags().StringVar(&makerLocation, "location", "", "Location")
	makerPutCmd.Flags().StringVar(&makerCategories, "categories", "", "Comma-separated craft categories")
	makerPutCmd.Flags().IntVar(&makerCompleted, "completed", 0, "Completed project count")
	_ = makerPutCmd.MarkFlagRequired("name")

	makerCmd.AddCommand(makerPutCmd)
	rootCmd.AddCommand(chatCmd, queueCmd, makerCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRecords(ctx context.Context) (*repository.Client, error) {
	awsCfg, err := app.LoadAWS(ctx)
	if err != nil {
		return nil, err
	}
	return app.NewRecords(awsCfg, recordsTable)
}

func newIntakeService(ctx context.Context) (*usecase.IntakeService, error) {
	if strings.TrimSpace(paramPrefix) == "" {
		return nil, fmt.Errorf("--param-prefix is required (or set PARAM_PREFIX)")
	}
	awsCfg, err := app.LoadAWS(ctx)
	if err != nil {
		return nil, err
	}
	return app.NewIntakeService(awsCfg, app.Config{
		RecordsTable:       strings.TrimSpace(recordsTable),
		ParamPrefix:        strings.TrimSpace(paramPrefix),
		MaxMessageLength:   maxMessageLen,
		ContactPromptAfter: contactAfter,
	})
}

func runChat(cmd *cobra.Command, args []string) error {
	svc, err := newIntakeService(cmd.Context())
	if err != nil {
		return err
	}
	return chatLoop(cmd.Context(), svc, makerHandle, timeout, cmd.InOrStdin(), cmd.OutOrStdout())
}

func runQueue(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	svc, err := newIntakeService(ctx)
	if err != nil {
		return err
	}
	return showQueue(ctx, svc, makerHandle, queueLimit, cmd.OutOrStdout())
}

func runMakerPut(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	records, err := newRecords(ctx)
	if err != nil {
		return err
	}
	maker := domain.Maker{
		Handle:            strings.TrimSpace(args[0]),
		Name:              makerName,
		Email:             makerEmail,
		Description:       makerDescription,
		Location:          makerLocation,
		Categories:        splitCategories(makerCategories),
		CompletedProjects: makerCompleted,
	}
	if existing, found, err := records.GetMakerByHandle(ctx, maker.Handle); err != nil {
		return err
	} else if found {
		maker.ID = existing.ID
	}
	if err := records.PutMaker(ctx, maker); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "maker %s saved\n", maker.Handle)
	return nil
}

func splitCategories(raw string) []string {
	var out []string
	for _, c := range strings.Split(raw, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}
