package main

import (
	"fmt"
	"os"

	"portfolio-sentry/internal/cli"
	"portfolio-sentry/internal/config"
	"portfolio-sentry/internal/logging"
)

func main() {
	configDir := configDirFlag(os.Args[1:])

	cfg, err := config.Load(configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger()

	rootCmd := cli.NewRootCmd(cfg, logger)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// configDirFlag pre-scans argv for --config so the directory is known
// before cobra parses flags; config must load before commands are built.
func configDirFlag(args []string) string {
	for i, arg := range args {
		if arg == "--config" && i+1 < len(args) {
			return args[i+1]
		}
		if len(arg) > len("--config=") && arg[:len("--config=")] == "--config=" {
			return arg[len("--config="):]
		}
	}
	return ""
}
