package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

// CheckWorkerCLI verifies that the configured worker program is available in
// PATH. Returns an error with remediation instructions if not found.
func CheckWorkerCLI(source string) error {
	if source == "" {
		return nil
	}
	_, err := exec.LookPath(source)
	if err != nil {
		return fmt.Errorf("worker program %q not found in PATH\n\n"+
			"agentexec spawns this program for every task. Install it, or point\n"+
			"worker.source at a different runtime:\n\n"+
			"  agentexec config worker.source <program>\n\n"+
			"or set AGENTEXEC_WORKER_SOURCE for this shell.", source)
	}
	return nil
}

var rootCmd = &cobra.Command{
	Use:   "agentexec",
	Short: "Agent execution orchestrator",
	Long: `Agentexec supervises coding-agent worker processes for task-tracking
applications.

It spawns one worker per task, streams the worker's output into structured
progress events, classifies failures (rate limit, auth, generic), swaps
credential profiles automatically when a rate limit hits, and tears workers
down safely under concurrent kill and respawn.

Core capabilities:
- One supervised worker process per task, killed and respawned atomically
- Phase markers in worker output become live progress reports
- Rate-limit and auth failures classified from trailing output
- Automatic credential profile failover with manual override
- Run journal with crash recovery for interrupted tasks`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(profilesCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
