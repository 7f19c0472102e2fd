package main

import (
	"flag"
	"fmt"
	"os"

	"metronome/pkg/version"
)

func main() {
	// Parse command line flags
	var (
		configPath  = flag.String("config", "metronome.yaml", "Path to the configuration file")
		showStatus  = flag.Bool("status", false, "Print recent runs and exit")
		showStats   = flag.Bool("stats", false, "Query per-role rates from Prometheus and exit")
		follow      = flag.Bool("follow", false, "Tail the lifecycle journal")
		tee         = flag.Bool("tee", false, "Output logs to both console and file (default: file only)")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	// Handle version flag
	if *showVersion {
		fmt.Printf("metronome %s\n", version.Version)
		fmt.Printf("  commit: %s\n", version.Commit)
		fmt.Printf("  built:  %s\n", version.Date)
		os.Exit(0)
	}

	// Read-only modes never start the daemon.
	if *showStatus {
		os.Exit(runStatus(*configPath))
	}
	if *showStats {
		os.Exit(runStats(*configPath))
	}
	if *follow {
		os.Exit(runFollow(*configPath))
	}

	// User-friendly startup message
	fmt.Println("⏳ Starting up...")

	os.Exit(runDaemon(*configPath, *tee))
}
