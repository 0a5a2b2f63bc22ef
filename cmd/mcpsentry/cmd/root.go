// Package cmd implements mcpsentry's command-line surface: --policy to
// select the policy file, --version to print the version and exit.
// Concrete tool plugins, plugin discovery, and argument-parsing niceties
// beyond these two flags are out of scope — this is deliberately a thin
// shell around internal/server.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mcpsentry/internal/dispatch"
	"mcpsentry/internal/logging"
	"mcpsentry/internal/plugins/echo"
	"mcpsentry/internal/policy"
	"mcpsentry/internal/security"
	"mcpsentry/internal/server"
	"mcpsentry/internal/transport"
	"mcpsentry/internal/version"
)

var policyPath string

// rootCmd is the base command for mcpsentry. Setting Version makes cobra
// register the --version flag itself (printed, then exit 0) rather than
// needing a hand-rolled flag check.
var rootCmd = &cobra.Command{
	Use:           "mcpsentry",
	Short:         "A security-gatekeeping MCP server",
	Long:          "mcpsentry brokers MCP tool calls over stdio through a fail-closed security pipeline: network firewall, input validation, rate limiting, and audit logging.",
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

// Execute runs the root command, exiting non-zero on any configuration or
// system error encountered before the server loop starts.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "mcpsentry:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&policyPath, "policy", "", "path to the policy YAML file (default: XDG config dir)")
}

func run(cmd *cobra.Command, args []string) error {
	p, err := loadPolicy()
	if err != nil {
		return fmt.Errorf("load policy: %w", err)
	}

	engine, err := security.Open(p)
	if err != nil {
		return fmt.Errorf("open security engine: %w", err)
	}
	defer func() {
		if dropped := engine.Dropped(); dropped > 0 {
			logging.Info("audit log gaps over server lifetime", "dropped", dropped)
		}
		if err := engine.Close(); err != nil {
			logging.Error("failed to close security engine cleanly", "error", err)
		}
	}()

	d := dispatch.New()
	if err := registerPlugins(d); err != nil {
		return fmt.Errorf("register plugins: %w", err)
	}

	tr := transport.New(os.Stdin, os.Stdout)
	srv := server.New(tr, engine, d)

	logging.Info("mcpsentry starting", "policy", policyPath)
	return srv.Run()
}

func loadPolicy() (*policy.Policy, error) {
	if policyPath != "" {
		return policy.LoadFrom(policyPath)
	}
	return policy.Load()
}

// registerPlugins wires the one reference plugin this distribution ships
// with. Concrete tool implementations (web search, bug tracker, etc.) are
// external collaborators and are registered the same way by an embedding
// binary.
func registerPlugins(d *dispatch.Dispatcher) error {
	def, err := echo.Definition()
	if err != nil {
		return err
	}
	return d.Register(def, echo.New())
}
