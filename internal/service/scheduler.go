package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"traffic-exp/internal/config"
	"traffic-exp/internal/runner"
	"traffic-exp/internal/trace"
)

const (
	WorkloadMemcached = "memcached"
	WorkloadIperf     = "iperf"

	RoleServer = "server"
	RoleClient = "client"

	PhaseStart = "start"
	PhaseStop  = "stop"
)

type State int32

const (
	StateIdle State = iota
	StateServersStarting
	StateWarmupWait
	StateClientsStarting
	StateRunningWait
	StateTearingDown
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateServersStarting:
		return "ServersStarting"
	case StateWarmupWait:
		return "WarmupWait"
	case StateClientsStarting:
		return "ClientsStarting"
	case StateRunningWait:
		return "RunningWait"
	case StateTearingDown:
		return "TearingDown"
	case StateDone:
		return "Done"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Plan is what one scheduler run needs from the trace.
type Plan struct {
	Trace        *trace.Trace
	Participants trace.Participants
	Duration     time.Duration
	Protocol     string
	Port         int
}

type ScheduleResult struct {
	Epoch    time.Time
	Deadline time.Time
	Duration time.Duration
	Errors   []error
}

// DispatchErrors returns only the launch/signal failures.
func (r *ScheduleResult) DispatchErrors() []*DispatchError {
	var out []*DispatchError
	for _, err := range r.Errors {
		var de *DispatchError
		if errors.As(err, &de) {
			out = append(out, de)
		}
	}
	return out
}

// Scheduler drives one experiment through its timeline. It is single use:
// once Done, Run returns an error.
type Scheduler struct {
	cfg    config.ExperimentConfig
	runner runner.TaskRunner
	cmds   runner.Commands
	clock  Clock

	state atomic.Int32

	mcServers    map[string]runner.Handle
	mcClients    map[string]runner.Handle
	iperfServers map[string]runner.Handle
	iperfClients map[string]runner.Handle

	errs []error
}

func NewScheduler(cfg config.ExperimentConfig, r runner.TaskRunner, cmds runner.Commands) *Scheduler {
	return &Scheduler{
		cfg:          cfg,
		runner:       r,
		cmds:         cmds,
		clock:        wallClock{},
		mcServers:    map[string]runner.Handle{},
		mcClients:    map[string]runner.Handle{},
		iperfServers: map[string]runner.Handle{},
		iperfClients: map[string]runner.Handle{},
	}
}

// WithClock replaces the wall clock, for tests.
func (s *Scheduler) WithClock(c Clock) *Scheduler {
	s.clock = c
	return s
}

func (s *Scheduler) State() State {
	return State(s.state.Load())
}

func (s *Scheduler) setState(st State) {
	s.state.Store(int32(st))
}

// Run blocks until every workload has been started, run for the plan's
// duration, and torn down. Dispatch failures are collected in the result
// rather than returned; the returned error is only set when ctx ended the
// run early or the scheduler was reused.
func (s *Scheduler) Run(ctx context.Context, plan Plan) (*ScheduleResult, error) {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateServersStarting)) {
		return nil, fmt.Errorf("scheduler is %s, not %s", s.State(), StateIdle)
	}

	if plan.Protocol == "" {
		plan.Protocol = s.cfg.Protocol
	}

	now := s.clock.Now()
	epoch := now.Truncate(time.Second).Add(s.cfg.StartupMargin)
	result := &ScheduleResult{
		Epoch:    epoch,
		Deadline: epoch.Add(plan.Duration),
		Duration: plan.Duration,
	}
	params := s.params(plan, epoch)
	hosts := plan.Participants.Hosts

	log.Println("start iperf and memcached servers")
	for _, host := range hosts {
		if plan.Participants.IsRequestResponse(host) {
			log.Printf("run memcached server on host %s\n", host)
			s.dispatch(ctx, s.mcServers, host, WorkloadMemcached, RoleServer, s.cmds.MemcachedServer.Start, params)
		}
		log.Printf("run iperf server on host %s\n", host)
		s.dispatch(ctx, s.iperfServers, host, WorkloadIperf, RoleServer, s.cmds.IperfServer.Start, params)
	}

	s.setState(StateWarmupWait)
	log.Printf("wait %v for iperf and memcached servers to start\n", s.cfg.Warmup)
	interrupted := s.clock.Sleep(ctx, s.cfg.Warmup)

	if interrupted == nil {
		s.setState(StateClientsStarting)
		log.Println("start iperf and memcached clients")
		for _, host := range hosts {
			if plan.Participants.IsRequestResponse(host) {
				log.Printf("run memcached client on host %s\n", host)
				s.dispatch(ctx, s.mcClients, host, WorkloadMemcached, RoleClient, s.cmds.MemcachedClient.Start, params)
			}
			log.Printf("run iperf client on host %s\n", host)
			s.dispatch(ctx, s.iperfClients, host, WorkloadIperf, RoleClient, s.cmds.IperfClient.Start, params)
		}

		s.setState(StateRunningWait)
		log.Printf("wait for experiment to finish at %s\n", result.Deadline.Format(time.RFC3339))
		interrupted = s.waitUntil(ctx, result.Deadline)
	}

	s.setState(StateTearingDown)
	log.Println("stop everything")
	s.teardown(plan, params)

	s.setState(StateDone)
	result.Errors = s.errs
	if interrupted != nil {
		return result, fmt.Errorf("experiment interrupted: %w", interrupted)
	}
	return result, nil
}

func (s *Scheduler) params(plan Plan, epoch time.Time) runner.Params {
	trafficFile := s.cfg.TraceFile
	if plan.Trace != nil && plan.Trace.Path != "" {
		trafficFile = plan.Trace.Path
	}
	p := runner.Params{
		runner.ParamTrafficFile: trafficFile,
		runner.ParamLogDir:      s.cfg.LogDir,
		runner.ParamProtocol:    plan.Protocol,
		runner.ParamTopoFile:    s.cfg.TopoFile,
	}
	return p.WithInt(runner.ParamStartTime, epoch.Unix()).WithInt(runner.ParamPort, int64(plan.Port))
}

// waitUntil returns at once when the deadline has already passed.
func (s *Scheduler) waitUntil(ctx context.Context, deadline time.Time) error {
	d := deadline.Sub(s.clock.Now())
	if d <= 0 {
		return nil
	}
	return s.clock.Sleep(ctx, d)
}

func (s *Scheduler) dispatch(ctx context.Context, handles map[string]runner.Handle, host, workload, role string, tmpl runner.Template, params runner.Params) {
	h, err := s.runner.Launch(ctx, host, tmpl, params)
	if err != nil {
		s.fail(&DispatchError{Host: host, Workload: workload, Role: role, Phase: PhaseStart, Err: err})
		return
	}
	handles[host] = h
}

func (s *Scheduler) fail(err error) {
	log.Printf("warning: %v\n", err)
	s.errs = append(s.errs, err)
}

// teardown goes host by host, memcached before iperf. Server stop signals
// are sent before blocking on the matching client.
func (s *Scheduler) teardown(plan Plan, params runner.Params) {
	for _, host := range plan.Participants.Hosts {
		if plan.Participants.IsRequestResponse(host) {
			if h, ok := s.mcServers[host]; ok {
				if err := h.Terminate(); err != nil {
					s.fail(&DispatchError{Host: host, Workload: WorkloadMemcached, Role: RoleServer, Phase: PhaseStop, Err: err})
				}
			}
			s.awaitClient(s.mcClients, host, WorkloadMemcached)
		}

		if h, ok := s.iperfServers[host]; ok {
			s.stopIperfServer(host, h, params)
		}
		s.awaitClient(s.iperfClients, host, WorkloadIperf)
	}
}

// stopIperfServer launches the receiver's kill command without waiting on
// it, and falls back to terminating the start handle when that launch fails.
func (s *Scheduler) stopIperfServer(host string, server runner.Handle, params runner.Params) {
	if s.cmds.IperfServer.Stop != "" {
		_, err := s.runner.Launch(context.Background(), host, s.cmds.IperfServer.Stop, params)
		if err == nil {
			return
		}
		s.fail(&DispatchError{Host: host, Workload: WorkloadIperf, Role: RoleServer, Phase: PhaseStop, Err: err})
	}
	if err := server.Terminate(); err != nil {
		log.Printf("warning: terminate iperf server on %s: %v\n", host, err)
	}
}

func (s *Scheduler) awaitClient(handles map[string]runner.Handle, host, workload string) {
	h, ok := handles[host]
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ClientTimeout)
	defer cancel()

	err := h.Wait(ctx)
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		s.fail(&ClientTimeoutError{Host: host, Workload: workload, Timeout: s.cfg.ClientTimeout})
		if err := h.Terminate(); err != nil {
			log.Printf("warning: terminate %s client on %s: %v\n", workload, host, err)
		}
	default:
		s.fail(&ClientExitError{Host: host, Workload: workload, Err: err})
	}
}
