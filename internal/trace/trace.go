package trace

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Flow types 0 and 1 end at their launch offset; every other type carries
// an extent in the fifth column.
const (
	FlowTypeInstantA = 0
	FlowTypeInstantB = 1

	extentColumn = 4
)

// DefaultGracePeriod is added to the last flow end when computing a run duration.
const DefaultGracePeriod = 10 * time.Second

type FlowRecord struct {
	Host string
	// OffsetMicros is the launch offset relative to the shared epoch.
	OffsetMicros float64
	Type         int
	ExtentMicros float64
	Fields       []string
}

// EndMicros is the time the flow finishes, in microseconds after the epoch.
func (f FlowRecord) EndMicros() float64 {
	if f.Instant() {
		return f.OffsetMicros
	}
	return f.OffsetMicros + f.ExtentMicros
}

func (f FlowRecord) Instant() bool {
	return f.Type == FlowTypeInstantA || f.Type == FlowTypeInstantB
}

type Trace struct {
	Path string
	// RequestResponseHosts are the even-indexed tokens of the first line.
	RequestResponseHosts []string
	// Peers are the odd-indexed tokens, paired with RequestResponseHosts by index.
	Peers []string
	Flows []FlowRecord
}

// Duration returns the experiment length for this trace.
func (t *Trace) Duration(grace time.Duration) time.Duration {
	return CalcDuration(t.Flows, grace)
}

// HasRequestResponse reports whether the trace configures the latency-sensitive workload.
func (t *Trace) HasRequestResponse() bool {
	return len(t.RequestResponseHosts) > 0
}

// CalcDuration is the latest flow end plus grace. It uses the maximum, never the sum.
func CalcDuration(flows []FlowRecord, grace time.Duration) time.Duration {
	last := 0.0
	for _, f := range flows {
		if end := f.EndMicros(); end > last {
			last = end
		}
	}
	return time.Duration(last*float64(time.Microsecond)) + grace
}

func ParseFile(path string) (*Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	defer f.Close()

	t, err := Parse(f)
	if err != nil {
		return nil, err
	}
	t.Path = path
	return t, nil
}

// Parse reads a trace. Nothing is returned on error, so a malformed first
// line never yields a partial participant set.
func Parse(r io.Reader) (*Trace, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read trace: %w", err)
		}
		return nil, &MalformedTraceError{Line: 1, Reason: "empty trace"}
	}

	t := &Trace{}
	tokens := strings.Fields(scanner.Text())
	if len(tokens)%2 != 0 {
		return nil, &MalformedTraceError{
			Line:   1,
			Reason: fmt.Sprintf("odd number of host pair tokens (%d)", len(tokens)),
		}
	}
	for i := 0; i < len(tokens); i += 2 {
		t.RequestResponseHosts = append(t.RequestResponseHosts, tokens[i])
		t.Peers = append(t.Peers, tokens[i+1])
	}

	lineNo := 1
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		flow, err := parseFlow(strings.Fields(line))
		if err != nil {
			return nil, &MalformedTraceError{Line: lineNo, Reason: err.Error()}
		}
		t.Flows = append(t.Flows, flow)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}

	return t, nil
}

func parseFlow(fields []string) (FlowRecord, error) {
	if len(fields) < 3 {
		return FlowRecord{}, fmt.Errorf("expected at least 3 columns, got %d", len(fields))
	}

	offset, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return FlowRecord{}, fmt.Errorf("invalid offset %q: %w", fields[1], err)
	}
	if offset < 0 {
		return FlowRecord{}, fmt.Errorf("negative offset %q", fields[1])
	}

	flowType, err := strconv.Atoi(fields[2])
	if err != nil {
		return FlowRecord{}, fmt.Errorf("invalid flow type %q: %w", fields[2], err)
	}

	flow := FlowRecord{
		Host:         fields[0],
		OffsetMicros: offset,
		Type:         flowType,
		Fields:       fields[3:],
	}
	if flow.Instant() {
		return flow, nil
	}

	if len(fields) <= extentColumn {
		return FlowRecord{}, fmt.Errorf("flow type %d needs an extent in column %d", flowType, extentColumn+1)
	}
	extent, err := strconv.ParseFloat(fields[extentColumn], 64)
	if err != nil {
		return FlowRecord{}, fmt.Errorf("invalid extent %q: %w", fields[extentColumn], err)
	}
	if extent < 0 {
		return FlowRecord{}, fmt.Errorf("negative extent %q", fields[extentColumn])
	}
	flow.ExtentMicros = extent

	return flow, nil
}
