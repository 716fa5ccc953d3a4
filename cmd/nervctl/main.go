/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Command nervctl inspects and migrates the persistence contexts of a nerv
// configuration file.
//
//	nervctl [-config nerv.yaml] contexts|health|stats|migrate|migrations [context...]
//
// Settings may also come from NERV_CONFIG, NERV_LOG_LEVEL and NERV_LOG_JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tomoncle/nerv"
	"github.com/tomoncle/nerv/database"
)

type settings struct {
	ConfigPath string `env:"NERV_CONFIG" envDefault:"nerv.yaml"`
	LogLevel   string `env:"NERV_LOG_LEVEL" envDefault:"info"`
	LogJSON    bool   `env:"NERV_LOG_JSON" envDefault:"false"`
}

func main() {
	var s settings
	if err := env.Parse(&s); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	flag.StringVar(&s.ConfigPath, "config", s.ConfigPath, "Path to the nerv YAML configuration")
	flag.StringVar(&s.LogLevel, "log-level", s.LogLevel, "Log level (debug, info, warn, error)")
	flag.BoolVar(&s.LogJSON, "log-json", s.LogJSON, "Log as JSON")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	logger, err := newLogger(s)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	database.InitLogger(database.NewZapLogger(logger))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, s, flag.Arg(0), flag.Args()[1:]); err != nil {
		logger.Error("nervctl failed", zap.String("command", flag.Arg(0)), zap.Error(err))
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] contexts|health|stats|migrate|migrations [context...]\n", os.Args[0])
	flag.PrintDefaults()
}

func newLogger(s settings) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(s.LogLevel)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewDevelopmentConfig()
	if s.LogJSON {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}

func run(ctx context.Context, s settings, command string, args []string) error {
	cfg, err := nerv.LoadConfig(s.ConfigPath)
	if err != nil {
		return err
	}
	if command == "contexts" {
		out := make(map[string]string, len(cfg.Contexts))
		for _, name := range cfg.Names() {
			c := cfg.Contexts[name].Connection
			out[name] = fmt.Sprintf("%s %s:%d/%s", c.Type, c.Host, c.Port, c.DBName)
		}
		return printJSON(out)
	}

	// migrations run explicitly below
	for _, c := range cfg.Contexts {
		c.MigrateOnStartup = false
	}
	n, err := nerv.Open(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer func() { _ = n.Close() }()

	switch command {
	case "health":
		return printJSON(n.Health(ctx))
	case "stats":
		return printJSON(n.Stats())
	case "migrate":
		names := args
		if len(names) == 0 {
			names = n.Registry().Names()
		}
		for _, name := range names {
			if err := n.Registry().Migrate(ctx, name); err != nil {
				return err
			}
		}
		return nil
	case "migrations":
		names := args
		if len(names) == 0 {
			names = n.Registry().Names()
		}
		out := make(map[string][]database.Migration, len(names))
		for _, name := range names {
			applied, err := n.Registry().AppliedMigrations(ctx, name)
			if err != nil {
				return err
			}
			out[name] = applied
		}
		return printJSON(out)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
