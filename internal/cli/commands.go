package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"investly/configs"
	"investly/internal/app"
	"investly/internal/usecase"
)

// builder wires the service graph; replaced in tests
type builder func(ctx context.Context, cfg *configs.Config) (*app.App, error)

func buildApp(ctx context.Context, cfg *configs.Config) (*app.App, error) {
	return app.Build(ctx, cfg, nil)
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	return newRootCmd(buildApp)
}

func newRootCmd(build builder) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "investly",
		Short:         "Investly - conversational crypto trading assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newAskCmd(build))
	rootCmd.AddCommand(newCallCmd(build))
	rootCmd.AddCommand(newHistoryCmd(build))
	rootCmd.AddCommand(newToolsCmd())

	return rootCmd
}

func loadApp(ctx context.Context, build builder) (*app.App, error) {
	cfg, err := configs.Load()
	if err != nil {
		return nil, err
	}
	return build(ctx, cfg)
}

// newAskCmd runs one conversation turn
func newAskCmd(build builder) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask [PROMPT...]",
		Short: "Ask the assistant a question",
		Long: `Post a prompt to the scope's thread and print the assistant's reply.
Example: investly ask --scope alice "What is my balance?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, _ := cmd.Flags().GetString("scope")
			timeout, _ := cmd.Flags().GetDuration("timeout")

			cfg, err := configs.Load()
			if err != nil {
				return err
			}
			if timeout <= 0 {
				timeout = app.TurnTimeout(cfg)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			services, err := build(ctx, cfg)
			if err != nil {
				return err
			}
			defer services.Close()

			// failures print as an {"error": ...} payload like any other reply
			fmt.Fprintln(cmd.OutOrStdout(), services.Orchestrator.Answer(ctx, scope, strings.Join(args, " ")))
			return nil
		},
	}

	cmd.Flags().String("scope", "cli", "Conversation scope")
	cmd.Flags().Duration("timeout", 0, "Maximum time to wait for a reply (default: the configured turn budget)")
	return cmd
}

// newCallCmd dispatches a single tool without the assistant
func newCallCmd(build builder) *cobra.Command {
	return &cobra.Command{
		Use:   "call TOOL [JSON_ARGS]",
		Short: "Run one tool directly and print its output",
		Long: `Dispatch a tool call against the exchange without involving the assistant.
Example: investly call get_top_movers '{"timeframe":"1h","limit":3}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			arguments := "{}"
			if len(args) == 2 {
				arguments = args[1]
			}

			services, err := loadApp(cmd.Context(), build)
			if err != nil {
				return err
			}
			defer services.Close()

			fmt.Fprintln(cmd.OutOrStdout(), services.Dispatcher.Dispatch(cmd.Context(), args[0], arguments))
			return nil
		},
	}
}

// newHistoryCmd prints the persisted records of a scope
func newHistoryCmd(build builder) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the stored conversation of a scope",
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, _ := cmd.Flags().GetString("scope")

			services, err := loadApp(cmd.Context(), build)
			if err != nil {
				return err
			}
			defer services.Close()

			records, err := services.Store.History(cmd.Context(), scope)
			if err != nil {
				return err
			}
			for _, r := range records {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-9s  %s\n", r.CreatedAt.Format(time.DateTime), r.Role, r.Text)
			}
			return nil
		},
	}

	cmd.Flags().String("scope", "cli", "Conversation scope")
	return cmd
}

// newToolsCmd prints the tool schema sent to the assistant
func newToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools exposed to the assistant",
		RunE: func(cmd *cobra.Command, args []string) error {
			verbose, _ := cmd.Flags().GetBool("schema")
			return printTools(cmd.OutOrStdout(), verbose)
		},
	}

	cmd.Flags().Bool("schema", false, "Print the JSON parameter schema of each tool")
	return cmd
}

func printTools(w io.Writer, verbose bool) error {
	for _, def := range usecase.ToolDefinitions() {
		fmt.Fprintf(w, "%-26s %s\n", def.Name, def.Description)
		if !verbose {
			continue
		}
		var indented bytes.Buffer
		if err := json.Indent(&indented, def.Parameters, "    ", "  "); err != nil {
			return fmt.Errorf("failed to render schema of %s: %w", def.Name, err)
		}
		fmt.Fprintf(w, "    %s\n", indented.String())
	}
	return nil
}
