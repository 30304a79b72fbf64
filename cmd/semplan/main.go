// Package main provides the semplan binary entry point.
// semplan generates multi-section documents (lesson or training plans) by
// delegating each component to a generative backend, and revises them
// through chat.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	// Register LLM providers via init()
	_ "github.com/c360studio/semplan/llm/providers"

	"github.com/c360studio/semplan/config"
	"github.com/c360studio/semplan/export"
	"github.com/c360studio/semplan/orchestrator"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "semplan"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
	owner      string
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Component generation orchestrator",
		Long: `semplan generates structured documents such as lesson plans by
generating each component with a language model.

Foundation components are generated first; every other component is then
generated concurrently with the foundation as context. Documents can be
revised through chat messages, which are classified and applied to only
the affected components.`,
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "Config file path (YAML)")
	pf.StringVar(&flags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&flags.logFormat, "log-format", "text", "Log format (text, json)")
	pf.StringVar(&flags.owner, "owner", "local", "Owner ID for stored documents")

	cmd.AddCommand(
		serveCmd(flags),
		generateCmd(flags),
		documentsCmd(flags),
		analyzeCmd(flags),
		chatCmd(flags),
		regenerateCmd(flags),
		versionsCmd(flags),
		historyCmd(flags),
		profilesCmd(flags),
		initConfigCmd(flags),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
			},
		},
	)
	return cmd
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.ToLower(format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// setup configures logging, loads config and wires the app.
func setup(cmd *cobra.Command, flags *globalFlags) (*App, error) {
	logger := newLogger(cmd.ErrOrStderr(), flags.logLevel, flags.logFormat)
	slog.SetDefault(logger)

	cfg, err := config.NewLoader(logger).Load(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewApp(cfg, logger)
}

func serveCmd(flags *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(cmd, flags)
			if err != nil {
				return err
			}
			defer app.Close()
			if addr == "" {
				addr = app.cfg.Server.Addr
			}

			srv := app.Server()
			signalCtx, signalCancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer signalCancel()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start(addr) }()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-signalCtx.Done():
				slog.Info("Received shutdown signal")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return srv.Stop(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}

func generateCmd(flags *globalFlags) *cobra.Command {
	var (
		base    orchestrator.BaseContext
		profile string
	)
	cmd := &cobra.Command{
		Use:   "generate <topic>",
		Short: "Generate and store a new document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if profile != "" {
				if err := json.Unmarshal([]byte(profile), &base.Profile); err != nil {
					return fmt.Errorf("parse --profile: %w", err)
				}
			}
			app, err := setup(cmd, flags)
			if err != nil {
				return err
			}
			defer app.Close()

			doc, err := app.service.GenerateDocument(cmd.Context(), flags.owner, args[0], base)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), doc)
		},
	}
	f := cmd.Flags()
	f.StringVar(&base.Grade, "grade", "", "Grade level (lesson)")
	f.StringVar(&base.Subject, "subject", "", "Subject (lesson)")
	f.StringVar(&base.ProfileID, "profile-id", "", "Stored learner profile name (lesson)")
	f.StringVar(&profile, "profile", "", "Student profile as a JSON object, overriding stored fields (lesson)")
	f.StringVar(&base.Goals, "goals", "", "Training goals (training)")
	f.StringVar(&base.ExperienceLevel, "experience", "", "Experience level (training)")
	f.StringVar(&base.AvailableDays, "days", "", "Available days per week (training)")
	f.StringSliceVar(&base.Components, "components", nil, "Generate only these components (foundation is always generated)")
	return cmd
}

func documentsCmd(flags *globalFlags) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "documents [document-id]",
		Short: "List stored documents, or print one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(cmd, flags)
			if err != nil {
				return err
			}
			defer app.Close()

			if len(args) == 1 {
				f, err := export.ParseFormat(format)
				if err != nil {
					return err
				}
				doc, err := app.service.GetDocument(cmd.Context(), flags.owner, args[0])
				if err != nil {
					return err
				}
				return export.Write(cmd.OutOrStdout(), doc, f)
			}
			list, err := app.service.ListDocuments(cmd.Context(), flags.owner)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, meta := range list {
				fmt.Fprintf(out, "%s\tv%d\t%s\t%s\n", meta.DocumentID, meta.Version,
					meta.LastModified.Format(time.RFC3339), meta.Topic)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "Output format for one document: json, yaml or markdown")
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <document-id>",
		Short: "Delete a document with its versions and chat history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(cmd, flags)
			if err != nil {
				return err
			}
			defer app.Close()
			return app.service.DeleteDocument(cmd.Context(), flags.owner, args[0])
		},
	})
	return cmd
}

func profilesCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles [name]",
		Short: "List learner profiles, or print one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(cmd, flags)
			if err != nil {
				return err
			}
			defer app.Close()

			if len(args) == 1 {
				p, err := app.service.GetProfile(cmd.Context(), flags.owner, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), p)
			}
			list, err := app.service.ListProfiles(cmd.Context(), flags.owner)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, p := range list {
				state := "active"
				if !p.Active {
					state = "inactive"
				}
				fmt.Fprintf(out, "%s\t%s\t%s\n", p.Name, state, p.Demographics)
			}
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a learner profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(cmd, flags)
			if err != nil {
				return err
			}
			defer app.Close()
			return app.service.DeleteProfile(cmd.Context(), flags.owner, args[0])
		},
	})
	return cmd
}

func analyzeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <document-id> <message>",
		Short: "Classify a chat message without applying it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(cmd, flags)
			if err != nil {
				return err
			}
			defer app.Close()

			in, err := app.service.AnalyzeMessage(cmd.Context(), flags.owner, args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), in)
		},
	}
}

func chatCmd(flags *globalFlags) *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "chat <document-id> <message>",
		Short: "Apply a chat message to a stored document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(cmd, flags)
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := app.service.ApplyChatUpdate(cmd.Context(), flags.owner, args[0], args[1], nil)
			if err != nil {
				return err
			}
			if full {
				return printJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n(version %d)\n", res.Response, res.Version)
			return nil
		},
	}
	cmd.Flags().BoolVar(&full, "json", false, "Print the full result with the updated document")
	return cmd
}

func regenerateCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "regenerate <document-id> <component> <directive>",
		Short: "Rewrite one component following a directive",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(cmd, flags)
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := app.service.RegenerateComponent(cmd.Context(), flags.owner, args[0], args[1], args[2])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n(version %d)\n", res.Response, res.Version)
			return nil
		},
	}
}

func versionsCmd(flags *globalFlags) *cobra.Command {
	var show int
	cmd := &cobra.Command{
		Use:   "versions <document-id>",
		Short: "List a document's versions, or print one with --show",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(cmd, flags)
			if err != nil {
				return err
			}
			defer app.Close()

			if show > 0 {
				snap, err := app.service.GetVersion(cmd.Context(), flags.owner, args[0], show)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), snap)
			}
			versions, err := app.service.ListVersions(cmd.Context(), flags.owner, args[0])
			if err != nil {
				return err
			}
			for _, v := range versions {
				fmt.Fprintf(cmd.OutOrStdout(), "v%d\t%s\n", v.Version, v.CreatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&show, "show", 0, "Print this version's document")
	return cmd
}

func historyCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "history <document-id>",
		Short: "Print a document's chat history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(cmd, flags)
			if err != nil {
				return err
			}
			defer app.Close()

			entries, err := app.service.ListChat(cmd.Context(), flags.owner, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range entries {
				fmt.Fprintf(out, "%s\tv%d\t%s\n\t> %s\n\t< %s\n", e.CreatedAt.Format(time.RFC3339),
					e.Version, strings.Join(e.Changed, ","), e.Message, e.Response)
			}
			return nil
		},
	}
}

func initConfigCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init-config",
		Short: "Write the default user config if none exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(cmd.ErrOrStderr(), flags.logLevel, flags.logFormat)
			path, err := config.NewLoader(logger).EnsureUserConfig()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
