package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/modwarden/warden/automod/capture"
	"github.com/modwarden/warden/automod/settings"
	"github.com/modwarden/warden/pkg/env"
	"github.com/modwarden/warden/pkg/metrics"
	"github.com/modwarden/warden/util/cliutil"

	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "warden",
		Usage:   "community moderation daemon: requires a source comment on new posts, and acts on posts which never get one",
		Version: env.GetVersion(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			Value:   "info",
			EnvVars: []string{"WARDEN_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "log output format (text or json)",
			EnvVars: []string{"WARDEN_LOG_FMT"},
		},
		&cli.StringFlag{
			Name:    "bridge-host",
			Usage:   "method, hostname, and port of the platform bridge sidecar",
			Value:   "http://localhost:4100",
			EnvVars: []string{"WARDEN_BRIDGE_HOST"},
		},
		&cli.StringFlag{
			Name:    "bridge-token",
			Usage:   "bearer token for the platform bridge",
			EnvVars: []string{"WARDEN_BRIDGE_TOKEN"},
		},
		&cli.Float64Flag{
			Name:    "bridge-rate-limit",
			Usage:   "max requests per second to the platform bridge (0 for unlimited)",
			Value:   10,
			EnvVars: []string{"WARDEN_BRIDGE_RATE_LIMIT"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL, for flags, counters, and cache (also tasks and settings, if no database is configured)",
			EnvVars: []string{"WARDEN_REDIS_URL", "REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "SQL database for tasks and settings (sqlite:// or postgresql://)",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			EnvVars: []string{"MAX_DB_CONNECTIONS"},
			Value:   20,
		},
		&cli.BoolFlag{
			Name:    "db-tracing",
			Usage:   "emit trace spans for SQL queries",
			EnvVars: []string{"WARDEN_DB_TRACING"},
		},
		&cli.StringFlag{
			Name:    "namespace",
			Usage:   "settings namespace (eg, community name)",
			Value:   "default",
			EnvVars: []string{"WARDEN_NAMESPACE"},
		},
		&cli.StringFlag{
			Name:    "identity",
			Usage:   "account name the bot acts as; its own comments never qualify",
			Value:   "warden-bot",
			EnvVars: []string{"WARDEN_IDENTITY"},
		},
	}

	app.Before = func(cctx *cli.Context) error {
		_, err := cliutil.SetupSlog(cliutil.LogOptions{
			Level:  cctx.String("log-level"),
			Format: cctx.String("log-format"),
		})
		return err
	}

	app.Commands = []*cli.Command{
		runCmd,
		settingsCmd,
		captureCmd,
		checkCmd,
	}

	return app.Run(args)
}

func configFromCLI(cctx *cli.Context) Config {
	return Config{
		Logger:          slog.Default(),
		BridgeHost:      cctx.String("bridge-host"),
		BridgeToken:     cctx.String("bridge-token"),
		BridgeRateLimit: cctx.Float64("bridge-rate-limit"),
		RedisURL:        cctx.String("redis-url"),
		DatabaseURL:     cctx.String("database-url"),
		MaxDBConns:      cctx.Int("max-db-connections"),
		DBTracing:       cctx.Bool("db-tracing"),
		Namespace:       cctx.String("namespace"),
		Identity:        cctx.String("identity"),
	}
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the webhook server and task runner",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for webhooks and the settings API",
			Value:   ":4200",
			EnvVars: []string{"WARDEN_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":4201",
			EnvVars: []string{"WARDEN_METRICS_LISTEN"},
		},
		&cli.StringFlag{
			Name:    "webhook-secret",
			Usage:   "shared secret required in the X-Warden-Secret header",
			EnvVars: []string{"WARDEN_WEBHOOK_SECRET"},
		},
		&cli.StringFlag{
			Name:    "slack-webhook-url",
			Usage:   "full URL of slack webhook, for removal and fallback notifications",
			EnvVars: []string{"SLACK_WEBHOOK_URL"},
		},
		&cli.IntFlag{
			Name:    "quota-actions-day",
			Usage:   "per-community daily limit on removals and flair changes, after which actions degrade to reports (0 for unlimited)",
			EnvVars: []string{"WARDEN_QUOTA_ACTIONS_DAY"},
		},
		&cli.DurationFlag{
			Name:    "task-poll-interval",
			Usage:   "how often to check for due tasks",
			Value:   5 * time.Second,
			EnvVars: []string{"WARDEN_TASK_POLL_INTERVAL"},
		},
		&cli.IntFlag{
			Name:    "task-parallelism",
			Usage:   "max number of tasks executed concurrently",
			Value:   8,
			EnvVars: []string{"WARDEN_TASK_PARALLELISM"},
		},
		&cli.DurationFlag{
			Name:    "cache-ttl",
			Usage:   "how long community metadata (name, flair templates) is cached",
			Value:   30 * time.Minute,
			EnvVars: []string{"WARDEN_CACHE_TTL"},
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		shutdownOTEL, err := configOTEL(ctx, "warden")
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownOTEL(ctx); err != nil {
				slog.Error("failed to shutdown trace exporter", "err", err)
			}
		}()

		config := configFromCLI(cctx)
		config.Bind = cctx.String("bind")
		config.WebhookSecret = cctx.String("webhook-secret")
		config.SlackWebhook = cctx.String("slack-webhook-url")
		config.QuotaActions = cctx.Int("quota-actions-day")
		config.PollInterval = cctx.Duration("task-poll-interval")
		config.Parallelism = cctx.Int("task-parallelism")
		config.CacheTTL = cctx.Duration("cache-ttl")

		srv, err := NewServer(config)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := metrics.RunServer(ctx, cancel, cctx.String("metrics-listen")); err != nil {
				slog.Error("failed to start metrics endpoint", "err", err)
			}
		}()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("failed to run warden service: %w", err)
		}
		return nil
	},
}

var settingsCmd = &cli.Command{
	Name:  "settings",
	Usage: "inspect and change moderation settings",
	Subcommands: []*cli.Command{
		{
			Name:      "validate",
			Usage:     "check a JSON settings file, without storing anything",
			ArgsUsage: "<file>",
			Action:    runSettingsValidate,
		},
		{
			Name:      "import",
			Usage:     "validate a JSON settings file, then store every value in it",
			ArgsUsage: "<file>",
			Action:    runSettingsImport,
		},
		{
			Name:  "show",
			Usage: "print the effective settings (defaults filled in) as JSON",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "explicit",
					Usage: "only print values which have been set",
				},
			},
			Action: runSettingsShow,
		},
		{
			Name:      "set",
			Usage:     "validate and store a single value",
			ArgsUsage: "<key> <value>",
			Action:    runSettingsSet,
		},
		{
			Name:   "keys",
			Usage:  "list every setting, with its type and default",
			Action: runSettingsKeys,
		},
	},
}

func readSettingsFile(path string) (settings.Values, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	dec.UseNumber()
	var vals settings.Values
	if err := dec.Decode(&vals); err != nil {
		return nil, fmt.Errorf("parsing settings file: %w", err)
	}
	return vals, nil
}

func settingsStore(cctx *cli.Context) (settings.Store, error) {
	st, err := openStores(configFromCLI(cctx), slog.Default())
	if err != nil {
		return nil, err
	}
	return st.Settings, nil
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func runSettingsValidate(cctx *cli.Context) error {
	if cctx.Args().Len() != 1 {
		return fmt.Errorf("expected a single settings file argument")
	}
	vals, err := readSettingsFile(cctx.Args().First())
	if err != nil {
		return err
	}
	norm, err := vals.Normalize()
	if err != nil {
		return err
	}
	// some problems only show up once all values are combined
	if _, err := settings.Parse(norm); err != nil {
		return err
	}
	fmt.Fprintf(cctx.App.Writer, "ok: %d settings\n", len(norm))
	return nil
}

func runSettingsImport(cctx *cli.Context) error {
	if cctx.Args().Len() != 1 {
		return fmt.Errorf("expected a single settings file argument")
	}
	vals, err := readSettingsFile(cctx.Args().First())
	if err != nil {
		return err
	}
	store, err := settingsStore(cctx)
	if err != nil {
		return err
	}
	if err := settings.Import(cctx.Context, store, vals); err != nil {
		return err
	}
	fmt.Fprintf(cctx.App.Writer, "imported %d settings\n", len(vals))
	return nil
}

func runSettingsShow(cctx *cli.Context) error {
	store, err := settingsStore(cctx)
	if err != nil {
		return err
	}
	vals, err := store.Get(cctx.Context)
	if err != nil {
		return err
	}
	if !cctx.Bool("explicit") {
		vals = vals.WithDefaults()
	}
	return printJSON(cctx.App.Writer, vals)
}

func runSettingsSet(cctx *cli.Context) error {
	if cctx.Args().Len() != 2 {
		return fmt.Errorf("expected <key> and <value> arguments")
	}
	store, err := settingsStore(cctx)
	if err != nil {
		return err
	}
	key, val := cctx.Args().Get(0), cctx.Args().Get(1)
	if err := store.Set(cctx.Context, key, val); err != nil {
		return err
	}
	fmt.Fprintf(cctx.App.Writer, "%s updated\n", key)
	return nil
}

func runSettingsKeys(cctx *cli.Context) error {
	defs := append([]settings.Definition{}, settings.Catalogue...)
	sort.Slice(defs, func(i, j int) bool { return defs[i].Key < defs[j].Key })
	for _, def := range defs {
		fmt.Fprintf(cctx.App.Writer, "%-32s %-12s %v\n", def.Key, def.Type, def.Default)
	}
	return nil
}

var captureCmd = &cli.Command{
	Name:      "capture",
	Usage:     "fetch a post, its author flair, reply tree and the current settings, and write them as JSON",
	ArgsUsage: "<post-id>",
	Action: func(cctx *cli.Context) error {
		if cctx.Args().Len() != 1 {
			return fmt.Errorf("expected a single post ID argument")
		}
		config := configFromCLI(cctx)
		p, err := newPlatform(config, slog.Default())
		if err != nil {
			return err
		}
		store, err := settingsStore(cctx)
		if err != nil {
			return err
		}
		pc, err := capture.CapturePost(cctx.Context, p, store, cctx.Args().First())
		if err != nil {
			return err
		}
		return printJSON(cctx.App.Writer, pc)
	},
}

var checkCmd = &cli.Command{
	Name:      "check",
	Usage:     "replay a captured post offline, and print what would happen to it",
	ArgsUsage: "<capture-file>",
	Action: func(cctx *cli.Context) error {
		if cctx.Args().Len() != 1 {
			return fmt.Errorf("expected a single capture file argument")
		}
		f, err := os.Open(cctx.Args().First())
		if err != nil {
			return err
		}
		defer f.Close()
		pc, err := capture.LoadCapture(f)
		if err != nil {
			return err
		}
		// replay logs are noise next to the printed result
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		ev, err := capture.Evaluate(cctx.Context, pc, cctx.String("identity"), logger)
		if err != nil {
			return err
		}
		return printJSON(cctx.App.Writer, ev)
	},
}
