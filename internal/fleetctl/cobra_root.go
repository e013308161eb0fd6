package fleetctl

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// buildRootCmd is a convenience for help-only fallbacks.
func buildRootCmd() *cobra.Command { return buildRootCmdWith(defaultConfig()) }

// buildRootCmdWith constructs the command tree wired to the fn* actions.
func buildRootCmdWith(cfg *Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "fleetctl",
		Short:         "Operate a running fleetd daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags -> Config
	pf := root.PersistentFlags()
	pf.String("addr", cfg.Addr, "Base URL of the fleetd API (defaults FLEETD_ADDR or "+defaultAddr+")")
	pf.Int("timeout", cfg.TimeoutSec, "Request timeout in seconds (defaults FLEETCTL_TIMEOUT or 30)")
	pf.String("log-level", cfg.LogLvl, "Log level: debug|info|warn|error (defaults FLEETCTL_LOG_LEVEL or info)")
	pf.String("model", cfg.Model, "Model alias for chat and agent runs (empty keeps the server default)")
	pf.String("dir", cfg.Dir, "Working directory for agent runs, relative to the sandbox root")
	pf.Int("max-steps", cfg.MaxSteps, "Step budget for agent runs (0 keeps the server default)")
	pf.Int("limit", cfg.Limit, "Cap for 'agent runs' listings (0 keeps the server default)")
	pf.Bool("force", cfg.Force, "Bypass gaming-mode gating for chat")
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		flags := cmd.InheritedFlags()
		if f := flags.Lookup("addr"); f != nil {
			if v := f.Value.String(); v != "" {
				cfg.Addr = v
			}
		}
		if f := flags.Lookup("timeout"); f != nil {
			var n int
			_, _ = fmt.Sscanf(f.Value.String(), "%d", &n)
			if n > 0 {
				cfg.TimeoutSec = n
			}
		}
		if f := flags.Lookup("log-level"); f != nil {
			if v := f.Value.String(); v != "" {
				cfg.LogLvl = v
			}
		}
		if f := flags.Lookup("model"); f != nil {
			cfg.Model = f.Value.String()
		}
		if f := flags.Lookup("dir"); f != nil {
			cfg.Dir = f.Value.String()
		}
		if f := flags.Lookup("max-steps"); f != nil {
			var n int
			_, _ = fmt.Sscanf(f.Value.String(), "%d", &n)
			if n > 0 {
				cfg.MaxSteps = n
			}
		}
		if f := flags.Lookup("limit"); f != nil {
			var n int
			_, _ = fmt.Sscanf(f.Value.String(), "%d", &n)
			if n > 0 {
				cfg.Limit = n
			}
		}
		if f := flags.Lookup("force"); f != nil {
			cfg.Force = f.Value.String() == "true"
		}
		SetLogLevel(cfg.LogLvl)
	}

	statusCmd := &cobra.Command{Use: "status", Short: "Show providers, containers and the gaming-mode switch", Example: "  fleetctl status", RunE: func(cmd *cobra.Command, args []string) error { return fnShowStatus(cfg) }}
	modelsCmd := &cobra.Command{Use: "models", Short: "List the models the daemon can serve", RunE: func(cmd *cobra.Command, args []string) error { return fnShowModels(cfg) }}
	healthCmd := &cobra.Command{Use: "health", Short: "Show per-provider probe health", RunE: func(cmd *cobra.Command, args []string) error { return fnShowHealth(cfg) }}
	stopAllCmd := &cobra.Command{Use: "stop-all", Short: "Stop every managed container", RunE: func(cmd *cobra.Command, args []string) error { return fnStopAll(cfg) }}
	root.AddCommand(statusCmd, modelsCmd, healthCmd, stopAllCmd)

	// gaming group
	gamingCmd := &cobra.Command{Use: "gaming", Short: "Toggle the GPU preemption switch", RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("gaming requires a subcommand: on|off")
	}}
	gamingOn := &cobra.Command{Use: "on", Short: "Stop GPU containers and refuse new GPU admissions", Example: "  fleetctl gaming on", RunE: func(cmd *cobra.Command, args []string) error { return fnSetGamingMode(cfg, true) }}
	gamingOff := &cobra.Command{Use: "off", Short: "Allow GPU admissions again", RunE: func(cmd *cobra.Command, args []string) error { return fnSetGamingMode(cfg, false) }}
	gamingCmd.AddCommand(gamingOn, gamingOff)
	root.AddCommand(gamingCmd)

	// agent group
	agentCmd := &cobra.Command{Use: "agent", Short: "Run and inspect sandboxed agent tasks", RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("agent requires a subcommand: run|tools|runs")
	}}
	agentRun := &cobra.Command{Use: "run <task>", Short: "Execute a bounded tool-using run and print its steps", Example: "  fleetctl agent run --dir jobs/42 \"create a file named result.txt containing OK\"", Args: cobra.MinimumNArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		return fnRunAgentTask(cfg, strings.Join(args, " "))
	}}
	agentTools := &cobra.Command{Use: "tools", Short: "Show the sandbox tool catalog", RunE: func(cmd *cobra.Command, args []string) error { return fnShowToolCatalog(cfg) }}
	agentRuns := &cobra.Command{Use: "runs", Short: "List recent persisted runs", Example: "  fleetctl agent runs --limit 10", RunE: func(cmd *cobra.Command, args []string) error { return fnShowRecentRuns(cfg) }}
	agentCmd.AddCommand(agentRun, agentTools, agentRuns)
	root.AddCommand(agentCmd)

	// chat
	chatCmd := &cobra.Command{Use: "chat <prompt>", Short: "Send a one-shot completion through the router", Example: "  fleetctl chat --model small \"write a haiku about GPUs\"", Args: cobra.MinimumNArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		return fnChatOnce(cfg, strings.Join(args, " "))
	}}
	root.AddCommand(chatCmd)

	// completion command
	completionCmd := &cobra.Command{Use: "completion", Short: "Generate the autocompletion script for the specified shell"}
	completionCmd.AddCommand(&cobra.Command{Use: "bash", Short: "Bash completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenBashCompletion(os.Stdout) }})
	completionCmd.AddCommand(&cobra.Command{Use: "zsh", Short: "Zsh completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenZshCompletion(os.Stdout) }})
	completionCmd.AddCommand(&cobra.Command{Use: "fish", Short: "Fish completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenFishCompletion(os.Stdout, true) }})
	completionCmd.AddCommand(&cobra.Command{Use: "powershell", Short: "PowerShell completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenPowerShellCompletionWithDesc(os.Stdout) }})
	root.AddCommand(completionCmd)

	return root
}
