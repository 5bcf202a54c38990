package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	healthcheckVerbose bool
	healthcheckProbe   bool
)

var (
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))
)

// errUnhealthy is returned after the failing step has been reported
var errUnhealthy = errors.New("health check failed")

// healthcheckCmd represents the healthcheck command
var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check that Bob can store discussions and produce replies",
	Long: `Check the health of bob by verifying:
  • Configuration loading
  • Discussion store accessibility
  • Reply backend selection (and, with --probe, one test reply)

This command is useful for debugging setup issues, especially in CI/CD environments.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, sectionStyle.Render("🔍 Bob the Lawyer Health Check"))
		fmt.Fprintln(out)

		fmt.Fprintln(out, infoStyle.Render("Step 1: Loading configuration..."))
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render("❌ Failed to load configuration:"), err)
			return errUnhealthy
		}
		fmt.Fprintln(out, successStyle.Render("✅ Configuration loaded"))
		if healthcheckVerbose {
			fmt.Fprintf(out, "   Data directory: %s\n", cfg.DataDir)
			fmt.Fprintf(out, "   Reply backend: %s\n", cfg.ReplyBackend)
			for _, ep := range cfg.ReplyEndpoints {
				fmt.Fprintf(out, "   Endpoint: %s\n", ep)
			}
		}
		fmt.Fprintln(out)

		fmt.Fprintln(out, infoStyle.Render("Step 2: Opening discussion store..."))
		store, err := openStore(ctx, cfg)
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render("❌ Failed to open store:"), err)
			return errUnhealthy
		}
		defer func() { _ = store.Close() }()

		stats, err := store.Stats(ctx)
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render("❌ Failed to read store:"), err)
			return errUnhealthy
		}
		fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✅ %s store accessible", store.Dialect())))
		fmt.Fprintf(out, "   %s, %s\n", plural(stats.Discussions, "discussion"), plural(stats.Messages, "message"))
		if healthcheckVerbose {
			if cfg.DatabaseURL == "" {
				fmt.Fprintf(out, "   Database: %s\n", cfg.DatabasePath)
			}
			fmt.Fprintf(out, "   Last discussion number: %d\n", stats.LastNumber)
		}
		fmt.Fprintln(out)

		fmt.Fprintln(out, infoStyle.Render("Step 3: Selecting reply backend..."))
		client, err := newReplyClient(cfg)
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render("❌ No reply backend:"), err)
			return errUnhealthy
		}
		defer func() { _ = client.Close() }()

		name := client.BackendName()
		if name == "mock" {
			fmt.Fprintln(out, warningStyle.Render("⚠️  Using mock replies (no endpoint or local model configured)"))
		} else {
			fmt.Fprintln(out, successStyle.Render("✅ Reply backend: "+name))
		}

		if healthcheckProbe {
			res := client.Generate(ctx, "Reply with OK.")
			if !res.OK() {
				fmt.Fprintln(out, errorStyle.Render("❌ Test reply failed:"), res.Display())
				return errUnhealthy
			}
			fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✅ Test reply received in %s", res.Elapsed.Round(time.Millisecond))))
		}
		fmt.Fprintln(out)

		fmt.Fprintln(out, successStyle.Render("✅ Health check passed"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthcheckCmd)
	healthcheckCmd.Flags().BoolVarP(&healthcheckVerbose, "verbose", "V", false, "Show detailed information")
	healthcheckCmd.Flags().BoolVar(&healthcheckProbe, "probe", false, "Request one test reply from the backend")
}
