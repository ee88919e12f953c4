// floxctl is a maintenance tool for Flox games. It reads and writes
// entities, inspects leaderboards and queries or exports the game's logs.
//
// Usage:
//
//	floxctl [global flags] <command> [flags] [args]
//
// Commands:
//
//	status                              show the service status
//	entity get <type> <id>              print an entity
//	entity put <type> <id> <json>       store an entity
//	entity delete <type> <id>           delete an entity
//	query <type> [where] [args...]      search entities
//	scores <board>                      show a leaderboard
//	post-score <board> <value> <name>   post a score
//	logs                                find, print or export logs
//
// The game is configured in ~/.floxctl.yaml or through FLOX_* environment
// variables. When a hero key is configured every command runs as that hero.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/birbparty/flox-go/internal/config"
	"github.com/birbparty/flox-go/internal/telemetry"
	"github.com/birbparty/flox-go/sdk"
)

// usageError is reported together with the usage text.
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...interface{}) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		errorf(os.Stderr, "%v", err)
		if _, ok := err.(*usageError); ok {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		os.Exit(1)
	}
}

const usage = `
Usage: floxctl [global flags] <command> [flags] [args]

Commands:
  status                              show the service status
  entity get <type> <id>              print an entity
  entity put <type> <id> <json>       store an entity
  entity delete <type> <id>           delete an entity
  query <type> [where] [args...]      search entities
  scores <board>                      show a leaderboard
  post-score <board> <value> <name>   post a score
  logs                                find, print or export logs

Run "floxctl <command> --help" for the flags of a command.
`

// globalOptions are the flags accepted before the command.
type globalOptions struct {
	configPath  string
	baseURL     string
	logLevel    string
	stats       bool
	pushGateway string
	otel        bool
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var opts globalOptions

	flagSet := pflag.NewFlagSet("floxctl", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.SetInterspersed(false)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "config file (default ~/"+config.DefaultFileName+")")
	flagSet.StringVar(&opts.baseURL, "base-url", "", "Flox service address")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flagSet.BoolVar(&opts.stats, "stats", false, "print request statistics when done")
	flagSet.StringVar(&opts.pushGateway, "pushgateway", "", "push client metrics to this Prometheus Pushgateway")
	flagSet.BoolVar(&opts.otel, "otel", false, "export client metrics over OTLP (see OTEL_EXPORTER_OTLP_ENDPOINT)")
	flagSet.Usage = func() { fmt.Fprint(stderr, usage) }

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return &usageError{msg: err.Error()}
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		return usagef("no command given")
	}

	command, ok := commands[rest[0]]
	if !ok {
		return usagef("unknown command %q", rest[0])
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	logger := telemetry.NewLogger(&telemetry.Config{
		ServiceName: "floxctl",
		LogLevel:    cfg.LogLevel,
	}, stderr)

	sdkConfig := cfg.ToSDK(telemetry.SDKLogger(logger))

	collector := sdk.NewMetricsCollector()
	observers := []sdk.Observer{collector}

	registry := prometheus.NewRegistry()
	if opts.pushGateway != "" {
		observers = append(observers, telemetry.NewPrometheusObserver(registry))
	}

	if opts.otel {
		telemetryConfig := telemetry.NewConfigFromEnv("floxctl")
		telemetryConfig.Metrics.Enabled = true
		if err := telemetry.InitMetrics(telemetryConfig); err != nil {
			return fmt.Errorf("failed to initialize metrics: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := telemetry.CloseMetrics(shutdownCtx); err != nil {
				logger.WithError(err).Warn("Failed to flush metrics")
			}
		}()

		otelObserver, err := telemetry.NewOTelObserver(nil)
		if err != nil {
			return err
		}
		observers = append(observers, otelObserver)
	}
	sdkConfig = sdkConfig.WithObserver(sdk.NewCompositeObserver(observers...))

	client, err := sdk.NewClient(sdkConfig)
	if err != nil {
		return err
	}
	defer client.Close()

	if cfg.HeroKey != "" {
		player, err := client.LoginWithKey(ctx, cfg.HeroKey)
		if err != nil {
			return fmt.Errorf("hero login failed: %w", err)
		}
		logger.WithField("player", player.ID()).Debug("Logged in as hero")
	}

	app := &cli{
		client: client,
		config: cfg,
		logger: logger,
		stdout: stdout,
		stderr: stderr,
	}
	err = command(ctx, app, rest[1:])
	if err == pflag.ErrHelp {
		err = nil
	}

	if opts.stats {
		printStats(stderr, collector)
	}
	if opts.pushGateway != "" {
		pusher := push.New(opts.pushGateway, "floxctl").
			Gatherer(registry).
			Grouping("game", cfg.GameID)
		if pushErr := pusher.PushContext(ctx); pushErr != nil {
			logger.WithError(pushErr).Warn("Failed to push metrics")
		}
	}
	return err
}

func loadConfig(opts globalOptions) (*config.Config, error) {
	path := opts.configPath
	required := path != ""
	if path == "" {
		path = config.DefaultPath()
	}

	cfg, err := config.Load(path, required)
	if err != nil {
		return nil, err
	}
	if opts.baseURL != "" {
		cfg.BaseURL = opts.baseURL
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// cli is the state shared by all commands
type cli struct {
	client *sdk.Client
	config *config.Config
	logger *logrus.Logger
	stdout io.Writer
	stderr io.Writer
}

var (
	errorColor  = color.New(color.FgRed, color.Bold)
	okColor     = color.New(color.FgGreen)
	keyColor    = color.New(color.FgCyan)
	subtleColor = color.New(color.FgHiBlack)
)

func errorf(w io.Writer, format string, args ...interface{}) {
	errorColor.Fprint(w, "error: ")
	fmt.Fprintf(w, format+"\n", args...)
}

func printStats(w io.Writer, collector *sdk.MetricsCollector) {
	metrics := collector.GetMetrics()
	requests, _ := metrics["requests"].(map[string]int64)
	errs, _ := metrics["errors"].(map[string]int64)

	subtleColor.Fprintf(w, "%d requests\n", collector.TotalRequests())
	for _, endpoint := range sortedKeys(requests) {
		line := fmt.Sprintf("  %-40s %d", endpoint, requests[endpoint])
		if n := errs[endpoint]; n > 0 {
			line += fmt.Sprintf(" (%d failed)", n)
		}
		subtleColor.Fprintln(w, line)
	}
}
