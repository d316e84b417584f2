package service

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"traffic-exp/internal/config"
	"traffic-exp/internal/trace"
)

// Metric is one workload's share of the score. Valid is false when no
// samples were collected, and the metric then counts as 0 in the final score.
type Metric struct {
	Valid   bool    `json:"valid"`
	Average float64 `json:"average"`
	LogMean float64 `json:"log_mean"`
	Samples int     `json:"samples"`
}

func newMetric(pool []float64) Metric {
	if len(pool) == 0 {
		return Metric{}
	}
	return Metric{
		Valid:   true,
		Average: Mean(pool),
		LogMean: LogMean(pool),
		Samples: len(pool),
	}
}

func (m Metric) contribution() float64 {
	if !m.Valid {
		return 0
	}
	return m.LogMean
}

type Score struct {
	// Throughput is in kbps, Latency in microseconds.
	Throughput Metric  `json:"throughput"`
	Latency    Metric  `json:"latency"`
	Weights    Weights `json:"weights"`
	Final      float64 `json:"final"`
	// Problems holds the EmptyLogError and MalformedLogError values met while reading.
	Problems []error `json:"-"`
}

// Aggregator turns per-host result logs into a Score.
type Aggregator struct {
	cfg config.ExperimentConfig
}

func NewAggregator(cfg config.ExperimentConfig) *Aggregator {
	return &Aggregator{cfg: cfg}
}

func (a *Aggregator) LatencyLogPath(host string) string {
	return filepath.Join(a.cfg.LogDir, host+"_mc.log")
}

// ThroughputLogPath picks the side that reports throughput for protocol:
// the receiver for udp, the sender for tcp.
func (a *Aggregator) ThroughputLogPath(host, protocol string) string {
	if protocol == config.ProtocolUDP {
		return filepath.Join(a.cfg.LogDir, host+"_iperf_server.log")
	}
	return filepath.Join(a.cfg.LogDir, host+"_iperf.log")
}

// Score computes final = A*throughput - B*latency over pooled samples.
// Unreadable logs are recorded in Score.Problems; the only error returned
// is for an unknown protocol.
func (a *Aggregator) Score(p trace.Participants, protocol string, w Weights) (*Score, error) {
	if protocol != config.ProtocolTCP && protocol != config.ProtocolUDP {
		return nil, fmt.Errorf("unknown protocol %q", protocol)
	}

	score := &Score{Weights: w}

	var latencies []float64
	for _, host := range p.RequestResponse {
		path := a.LatencyLogPath(host)
		samples, err := readSamples(host, path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			score.problem(err)
			continue
		}
		latencies = append(latencies, samples...)
	}

	var throughputs []float64
	for _, host := range p.Hosts {
		path := a.ThroughputLogPath(host, protocol)
		samples, err := readSamples(host, path)
		var mle *MalformedLogError
		switch {
		case errors.As(err, &mle):
			score.problem(err)
			continue
		case err != nil:
			score.problem(&EmptyLogError{Host: host, Path: path, Err: err})
			continue
		case len(samples) == 0:
			score.problem(&EmptyLogError{Host: host, Path: path})
			continue
		}
		throughputs = append(throughputs, samples...)
	}

	score.Latency = newMetric(latencies)
	score.Throughput = newMetric(throughputs)
	score.Final = w.A*score.Throughput.contribution() - w.B*score.Latency.contribution()

	return score, nil
}

func (s *Score) problem(err error) {
	log.Printf("warning: %v\n", err)
	s.Problems = append(s.Problems, err)
}

// readSamples returns every sample of one log, or a MalformedLogError if
// any line is not a positive finite number. Blank lines are skipped.
func readSamples(host, path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var samples []float64
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		v, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return nil, &MalformedLogError{Host: host, Path: path, Line: lineNo, Reason: fmt.Sprintf("not a number: %q", line)}
		}
		if v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
			return nil, &MalformedLogError{Host: host, Path: path, Line: lineNo, Reason: fmt.Sprintf("not a positive sample: %q", line)}
		}
		samples = append(samples, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return samples, nil
}

func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// LogMean is the arithmetic mean of log10 of the samples.
func LogMean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += math.Log10(x)
	}
	return sum / float64(len(xs))
}
