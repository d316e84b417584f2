package service

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	undefined = "undefined"
	// maxLogProblems caps the result log problems section of a report.
	maxLogProblems = 20
)

func RenderReport(result *ExperimentResult) string {
	var b strings.Builder
	b.WriteString("# Traffic experiment report\n\n")
	if result.RunID > 0 {
		b.WriteString(fmt.Sprintf("- run_id: %d\n", result.RunID))
	}
	b.WriteString(fmt.Sprintf("- trace_file: %s\n", result.TraceFile))
	b.WriteString(fmt.Sprintf("- protocol: %s\n", result.Protocol))
	b.WriteString(fmt.Sprintf("- port: %d\n", result.Port))
	b.WriteString(fmt.Sprintf("- log_dir: %s\n", result.LogDir))
	b.WriteString(fmt.Sprintf("- hosts: %s\n", strings.Join(result.Hosts, " ")))
	rr := strings.Join(result.RequestResponseHosts, " ")
	if rr == "" {
		rr = "(none)"
	}
	b.WriteString(fmt.Sprintf("- request/response hosts: %s\n", rr))
	b.WriteString(fmt.Sprintf("- duration: %.3f s\n", result.DurationSeconds))
	if !result.Epoch.IsZero() {
		b.WriteString(fmt.Sprintf("- epoch: %s\n", result.Epoch.Format(time.RFC3339)))
	}
	if result.Interrupted {
		b.WriteString("- interrupted: yes\n")
	}
	b.WriteString("\n")

	b.WriteString("## Score\n\n")
	if s := result.Score; s != nil {
		b.WriteString("| Component | Samples | Average | log10 mean |\n")
		b.WriteString("| --- | ---: | ---: | ---: |\n")
		writeMetricRow(&b, "throughput (kbps)", s.Throughput)
		writeMetricRow(&b, "latency (us)", s.Latency)
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("- weights: a=%g b=%g\n", s.Weights.A, s.Weights.B))
		b.WriteString(fmt.Sprintf("- final score: %.6f\n", s.Final))
	} else {
		b.WriteString("- not scored\n")
	}

	writeFailures(&b, result)
	return b.String()
}

func writeMetricRow(b *strings.Builder, name string, m Metric) {
	if !m.Valid {
		b.WriteString(fmt.Sprintf("| %s | 0 | %s | %s |\n", name, undefined, undefined))
		return
	}
	b.WriteString(fmt.Sprintf("| %s | %d | %.3f | %.6f |\n", name, m.Samples, m.Average, m.LogMean))
}

// writeFailures lists failures by kind. Every dispatch and client failure
// is printed; result log problems are capped at maxLogProblems.
func writeFailures(b *strings.Builder, result *ExperimentResult) {
	errs := result.Failures()
	if len(errs) == 0 {
		// results decoded from json carry only the messages
		if len(result.Errors) == 0 {
			return
		}
		b.WriteString("\n## Failures\n\n")
		for _, msg := range result.Errors {
			b.WriteString(fmt.Sprintf("- %s\n", msg))
		}
		return
	}

	var dispatch, clients, logs, other []error
	for _, err := range errs {
		var de *DispatchError
		var cte *ClientTimeoutError
		var cee *ClientExitError
		var ele *EmptyLogError
		var mle *MalformedLogError
		switch {
		case errors.As(err, &de):
			dispatch = append(dispatch, err)
		case errors.As(err, &cte), errors.As(err, &cee):
			clients = append(clients, err)
		case errors.As(err, &ele), errors.As(err, &mle):
			logs = append(logs, err)
		default:
			other = append(other, err)
		}
	}

	b.WriteString("\n## Failures\n")
	writeErrorList(b, "Dispatch failures", dispatch, 0)
	writeErrorList(b, "Client failures", clients, 0)
	writeErrorList(b, "Result log problems", logs, maxLogProblems)
	writeErrorList(b, "Other", other, 0)
}

// writeErrorList prints errs under title. A limit of 0 prints everything.
func writeErrorList(b *strings.Builder, title string, errs []error, limit int) {
	if len(errs) == 0 {
		return
	}
	b.WriteString(fmt.Sprintf("\n### %s (%d)\n\n", title, len(errs)))
	n := len(errs)
	if limit > 0 && n > limit {
		n = limit
	}
	for _, err := range errs[:n] {
		b.WriteString(fmt.Sprintf("- %s\n", err))
	}
	if n < len(errs) {
		b.WriteString(fmt.Sprintf("- ...(%d more)\n", len(errs)-n))
	}
}
