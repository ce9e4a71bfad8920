// Package main is the entry point for the authorization service.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/vyrodovalexey/avauthz/internal/config"
	"github.com/vyrodovalexey/avauthz/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	envFile     string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	loadEnvFile(flags.envFile)

	cfg, err := loadConfig(flags.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg, flags)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting avauthz",
		observability.String("version", version),
		observability.String("config", flags.configPath),
	)

	app := initApplication(cfg, flags.configPath, logger)
	runServer(app, logger)
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("AUTHZ_CONFIG_PATH", ""),
		"Path to configuration file (defaults are used when empty)")
	envFile := flag.String("env-file", getEnvOrDefault("AUTHZ_ENV_FILE", ".env"),
		"Optional dotenv file loaded before the configuration")
	logLevel := flag.String("log-level", getEnvOrDefault("AUTHZ_LOG_LEVEL", ""),
		"Log level (debug, info, warn, error), overrides the config file")
	logFormat := flag.String("log-format", getEnvOrDefault("AUTHZ_LOG_FORMAT", ""),
		"Log format (json, console), overrides the config file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		envFile:     *envFile,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

// printVersion prints version information.
func printVersion() {
	fmt.Printf("avauthz version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// loadEnvFile loads path into the process environment. Variables that are
// already set win. A missing file is not an error.
func loadEnvFile(path string) {
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", path, err)
	}
}

// loadConfig reads and validates the configuration. An empty path yields
// the defaults.
func loadConfig(path string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// initLogger initializes the logger. Flags override the file.
func initLogger(cfg *config.Config, flags cliFlags) observability.Logger {
	logCfg := cfg.Log
	if flags.logLevel != "" {
		logCfg.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		logCfg.Format = flags.logFormat
	}

	logger, err := observability.NewLogger(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}
