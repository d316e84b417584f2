package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"traffic-exp/internal/config"
	"traffic-exp/internal/runner"
	"traffic-exp/internal/topology"
	"traffic-exp/internal/trace"

	"gorm.io/gorm"
)

var (
	// ErrBusy is returned while another experiment holds the runner.
	ErrBusy = errors.New("another experiment is running")
	// ErrInvalidRequest wraps overrides that fail validation.
	ErrInvalidRequest = errors.New("invalid experiment request")
)

type ExperimentRequest struct {
	TraceFile string `json:"trace_file" binding:"required"`
	Protocol  string `json:"protocol"`
	Port      *int   `json:"port"`
	LogDir    string `json:"log_dir"`
	ScoreFile string `json:"score_file"`
}

type ExperimentResult struct {
	RunID                uint      `json:"run_id"`
	TraceFile            string    `json:"trace_file"`
	Protocol             string    `json:"protocol"`
	Port                 int       `json:"port"`
	LogDir               string    `json:"log_dir"`
	Hosts                []string  `json:"hosts"`
	RequestResponseHosts []string  `json:"request_response_hosts"`
	DurationSeconds      float64   `json:"duration_seconds"`
	Epoch                time.Time `json:"epoch"`
	Deadline             time.Time `json:"deadline"`
	Interrupted          bool      `json:"interrupted"`
	Score                *Score    `json:"score"`
	Errors               []string  `json:"errors"`
	ResultPath           string    `json:"result_path"`
	ReportPath           string    `json:"report_path"`

	// runtime errors from scheduling and scoring, in the order they happened
	errs []error
}

// Failures returns the collected non-fatal errors.
func (r *ExperimentResult) Failures() []error {
	return r.errs
}

func (r *ExperimentResult) addErrors(errs ...error) {
	for _, err := range errs {
		r.errs = append(r.errs, err)
		r.Errors = append(r.Errors, err.Error())
	}
}

// ExperimentRunner runs one experiment end to end: parse, build, schedule,
// score, clean up, report. Only one experiment runs at a time.
type ExperimentRunner struct {
	cfg    config.ExperimentConfig
	runner runner.TaskRunner
	cmds   runner.Commands
	db     *gorm.DB
	clock  Clock

	mu sync.Mutex
}

// NewExperimentRunner builds a runner. db may be nil to skip persistence.
func NewExperimentRunner(cfg config.ExperimentConfig, r runner.TaskRunner, cmds runner.Commands, db *gorm.DB) *ExperimentRunner {
	return &ExperimentRunner{
		cfg:    cfg,
		runner: r,
		cmds:   cmds,
		db:     db,
		clock:  wallClock{},
	}
}

func (r *ExperimentRunner) WithClock(c Clock) *ExperimentRunner {
	r.clock = c
	return r
}

// resolve applies the request's overrides to a copy of the base config.
func (r *ExperimentRunner) resolve(req ExperimentRequest) (config.ExperimentConfig, error) {
	cfg := r.cfg
	if req.TraceFile != "" {
		cfg.TraceFile = req.TraceFile
	}
	if req.Protocol != "" {
		cfg.Protocol = req.Protocol
	}
	if req.Port != nil {
		cfg.Port = *req.Port
	}
	if req.LogDir != "" {
		cfg.LogDir = req.LogDir
	}
	if req.ScoreFile != "" {
		cfg.ScoreFile = req.ScoreFile
	}
	if cfg.TraceFile == "" {
		return cfg, fmt.Errorf("%w: trace file must be set", ErrInvalidRequest)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return cfg, nil
}

type prepared struct {
	cfg          config.ExperimentConfig
	trace        *trace.Trace
	participants trace.Participants
	weights      Weights
	duration     time.Duration
}

// prepare does everything that can fail fatally, before any side effect.
func (r *ExperimentRunner) prepare(req ExperimentRequest) (*prepared, error) {
	cfg, err := r.resolve(req)
	if err != nil {
		return nil, err
	}

	hosts := cfg.Hosts
	if len(hosts) == 0 {
		hosts, err = topology.LoadHosts(cfg.TopoFile)
		if err != nil {
			return nil, err
		}
	}

	tr, err := trace.ParseFile(cfg.TraceFile)
	if err != nil {
		return nil, err
	}
	participants, err := trace.NewParticipants(hosts, tr)
	if err != nil {
		return nil, err
	}

	weights, err := ReadWeights(cfg.ScoreFile)
	if err != nil {
		return nil, err
	}

	return &prepared{
		cfg:          cfg,
		trace:        tr,
		participants: participants,
		weights:      weights,
		duration:     tr.Duration(cfg.GracePeriod),
	}, nil
}

// Run schedules the experiment and scores it. A non-nil error with a nil
// result means nothing was dispatched.
func (r *ExperimentRunner) Run(ctx context.Context, req ExperimentRequest) (*ExperimentResult, error) {
	if !r.mu.TryLock() {
		return nil, ErrBusy
	}
	defer r.mu.Unlock()

	p, err := r.prepare(req)
	if err != nil {
		return nil, err
	}
	cfg := p.cfg

	if err := BuildTrafficGenerator(ctx, cfg.BuildDir); err != nil {
		return nil, err
	}
	if err := PrepareLogDir(cfg.LogDir); err != nil {
		return nil, err
	}

	log.Println("########### traffic experiment ############")
	log.Printf("trace file: %s\n", cfg.TraceFile)
	log.Printf("host list: %v\n", p.participants.Hosts)
	log.Printf("traffic duration: %.3f seconds\n", p.duration.Seconds())
	log.Printf("log directory: %s\n", cfg.LogDir)
	if !p.trace.HasRequestResponse() {
		log.Println("no request/response hosts, memcached is not started")
	}

	result := newResult(cfg, p)
	run := r.createRun(ctx, result)

	sched := NewScheduler(cfg, r.runner, r.cmds).WithClock(r.clock)
	sres, runErr := sched.Run(ctx, Plan{
		Trace:        p.trace,
		Participants: p.participants,
		Duration:     p.duration,
		Protocol:     cfg.Protocol,
		Port:         cfg.Port,
	})
	result.Epoch = sres.Epoch
	result.Deadline = sres.Deadline
	result.addErrors(sres.Errors...)
	if des := sres.DispatchErrors(); len(des) > 0 {
		log.Printf("warning: %d commands could not be dispatched\n", len(des))
	}
	if runErr != nil {
		result.Interrupted = true
		log.Printf("warning: %v\n", runErr)
	}

	// give clients time to flush their logs
	if runErr == nil {
		_ = r.clock.Sleep(ctx, cfg.Settle)
	}

	score, err := NewAggregator(cfg).Score(p.participants, cfg.Protocol, p.weights)
	if err != nil {
		return nil, err
	}
	result.Score = score
	result.addErrors(score.Problems...)

	r.cleanup(cfg, p.participants.Hosts)

	if err := writeOutputs(cfg.OutputDir, run, result); err != nil {
		log.Printf("warning: write outputs: %v\n", err)
	}
	r.finishRun(run, result)

	return result, nil
}

// ScoreOnly scores the logs already in the log directory without scheduling
// anything. It returns ErrBusy while a run owns the log directory.
func (r *ExperimentRunner) ScoreOnly(ctx context.Context, req ExperimentRequest) (*ExperimentResult, error) {
	if !r.mu.TryLock() {
		return nil, ErrBusy
	}
	defer r.mu.Unlock()

	p, err := r.prepare(req)
	if err != nil {
		return nil, err
	}

	result := newResult(p.cfg, p)
	score, err := NewAggregator(p.cfg).Score(p.participants, p.cfg.Protocol, p.weights)
	if err != nil {
		return nil, err
	}
	result.Score = score
	result.addErrors(score.Problems...)
	return result, nil
}

func newResult(cfg config.ExperimentConfig, p *prepared) *ExperimentResult {
	return &ExperimentResult{
		TraceFile:            cfg.TraceFile,
		Protocol:             cfg.Protocol,
		Port:                 cfg.Port,
		LogDir:               cfg.LogDir,
		Hosts:                p.participants.Hosts,
		RequestResponseHosts: p.participants.RequestResponse,
		DurationSeconds:      p.duration.Seconds(),
		Errors:               []string{},
	}
}

func (r *ExperimentRunner) cleanup(cfg config.ExperimentConfig, hosts []string) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ClientTimeout)
	defer cancel()

	if cfg.CleanupScript != "" {
		cmd := exec.CommandContext(ctx, cfg.CleanupScript)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			log.Printf("warning: cleanup script %s: %v\n", cfg.CleanupScript, err)
		}
		return
	}

	params := runner.Params{
		runner.ParamLogDir:   cfg.LogDir,
		runner.ParamTopoFile: cfg.TopoFile,
	}
	for _, err := range runner.Cleanup(ctx, r.runner, hosts, r.cmds, params) {
		log.Printf("warning: %v\n", err)
	}
}

// BuildTrafficGenerator runs make in dir. An empty dir skips the build.
func BuildTrafficGenerator(ctx context.Context, dir string) error {
	if dir == "" {
		return nil
	}
	log.Printf("building traffic generator in %s\n", dir)

	cmd := exec.CommandContext(ctx, "make", "-C", dir)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("build traffic generator: %w", err)
	}
	return nil
}

// PrepareLogDir empties the log directory, creating it if needed.
func PrepareLogDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("clear log dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	return nil
}

func writeOutputs(dir string, runID uint, result *ExperimentResult) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	name := fmt.Sprintf("experiment_run_%d", runID)
	if runID == 0 {
		name = fmt.Sprintf("experiment_%d", result.Epoch.Unix())
	}
	result.ResultPath = filepath.Join(dir, name+".json")
	result.ReportPath = filepath.Join(dir, name+".md")

	b, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(result.ResultPath, b, 0o644); err != nil {
		return err
	}
	return os.WriteFile(result.ReportPath, []byte(RenderReport(result)), 0o644)
}
