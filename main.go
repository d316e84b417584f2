package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"traffic-exp/internal/config"
	"traffic-exp/internal/db"
	"traffic-exp/internal/router"
	"traffic-exp/internal/runner"
	"traffic-exp/internal/service"

	"github.com/docopt/docopt-go"
)

const defaultConfigPath = "config/config.yaml"

func usage() string {
	return `Traffic experiment scheduler.
Usage:
  traffic-exp run -t FILE [-c FILE] [-l DIR] [--topo FILE] [-p PROTO] [--port PORT] [-s FILE]
  traffic-exp score -t FILE [-c FILE] [-l DIR] [--topo FILE] [-p PROTO] [-s FILE]
  traffic-exp serve [-c FILE]
  traffic-exp -h | --help
Options:
  -h, --help                      Show this screen.
  -c FILE, --config FILE          YAML config file. [default: config/config.yaml]
  -t FILE, --trace FILE           Trace file to replay.
  -l DIR, --logdir DIR            Directory the workloads write their result logs to.
  --topo FILE                     Topology json listing the hosts.
  -p PROTO, --protocol PROTO      Throughput transport, tcp or udp.
  --port PORT                     Port for the throughput workload.
  -s FILE, --score-config FILE    Two-line file holding the score weights a and b.
`
}

func main() {
	opts, err := docopt.ParseDoc(usage())
	if err != nil {
		log.Fatalf("parse arguments: %v", err)
	}

	cfg, err := loadConfig(optString(opts, "--config"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := applyFlags(&cfg.Experiment, opts); err != nil {
		log.Fatalf("invalid arguments: %v", err)
	}
	if err := cfg.Runner.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	if err := cfg.Experiment.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	r, err := runner.New(cfg.Runner)
	if err != nil {
		log.Fatalf("create runner: %v", err)
	}
	gdb, err := db.Open(cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}

	experimentRunner := service.NewExperimentRunner(cfg.Experiment, r, runner.CommandsFromConfig(cfg.Runner.Commands), gdb)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case optBool(opts, "run"):
		result, err := experimentRunner.Run(ctx, service.ExperimentRequest{})
		if err != nil {
			log.Fatalf("run experiment: %v", err)
		}
		fmt.Print(service.RenderReport(result))

	case optBool(opts, "score"):
		result, err := experimentRunner.ScoreOnly(ctx, service.ExperimentRequest{})
		if err != nil {
			log.Fatalf("score experiment: %v", err)
		}
		fmt.Print(service.RenderReport(result))

	case optBool(opts, "serve"):
		engine := router.SetupRouter(experimentRunner, gdb)
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		log.Printf("serving on %s", addr)
		if err := engine.Run(addr); err != nil {
			log.Fatalf("serve: %v", err)
		}
	}
}

// loadConfig falls back to the built-in defaults when the default config
// file does not exist. An explicitly named file must exist.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil && path == defaultConfigPath && errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

func applyFlags(e *config.ExperimentConfig, opts docopt.Opts) error {
	if v := optString(opts, "--trace"); v != "" {
		e.TraceFile = v
	}
	if v := optString(opts, "--logdir"); v != "" {
		e.LogDir = v
	}
	if v := optString(opts, "--topo"); v != "" {
		e.TopoFile = v
		// an explicit topology replaces any host list from the config file
		e.Hosts = nil
	}
	if v := optString(opts, "--protocol"); v != "" {
		e.Protocol = v
	}
	if v := optString(opts, "--port"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("port %q is not a number", v)
		}
		e.Port = port
	}
	if v := optString(opts, "--score-config"); v != "" {
		e.ScoreFile = v
	}
	return nil
}

// optString returns "" for options that were not given.
func optString(opts docopt.Opts, key string) string {
	v, err := opts.String(key)
	if err != nil {
		return ""
	}
	return v
}

func optBool(opts docopt.Opts, key string) bool {
	v, err := opts.Bool(key)
	return err == nil && v
}
