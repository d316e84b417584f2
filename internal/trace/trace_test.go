package trace

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseScenarioDuration(t *testing.T) {
	src := "\nh1 0 2 x 1000000\nh2 500000 0\n"

	tr, err := Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if tr.HasRequestResponse() {
		t.Errorf("expected no request/response hosts, got %v", tr.RequestResponseHosts)
	}
	if len(tr.Flows) != 2 {
		t.Fatalf("expected 2 flows, got %d", len(tr.Flows))
	}

	got := tr.Duration(DefaultGracePeriod)
	if got != 11*time.Second {
		t.Errorf("duration = %v, want 11s", got)
	}
}

func TestParseHostPairs(t *testing.T) {
	src := "h1 h2 h3 h4\nh1 0 0\n"

	tr, err := Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []string{"h1", "h3"}
	if strings.Join(tr.RequestResponseHosts, ",") != strings.Join(want, ",") {
		t.Errorf("request/response hosts = %v, want %v", tr.RequestResponseHosts, want)
	}
	if strings.Join(tr.Peers, ",") != "h2,h4" {
		t.Errorf("peers = %v", tr.Peers)
	}
}

func TestParseOddTokenCount(t *testing.T) {
	for _, line := range []string{"h1", "h1 h2 h3", "a b c d e"} {
		tr, err := Parse(strings.NewReader(line + "\nh1 0 0\n"))
		var mte *MalformedTraceError
		if !errors.As(err, &mte) {
			t.Fatalf("%q: expected MalformedTraceError, got %v", line, err)
		}
		if mte.Line != 1 {
			t.Errorf("%q: error line = %d, want 1", line, mte.Line)
		}
		if tr != nil {
			t.Errorf("%q: expected no trace, got %+v", line, tr)
		}
	}
}

func TestParseMalformedFlowLines(t *testing.T) {
	cases := map[string]string{
		"too few columns":  "\nh1 0\n",
		"bad offset":       "\nh1 abc 0\n",
		"bad type":         "\nh1 0 x\n",
		"missing extent":   "\nh1 0 2 x\n",
		"bad extent":       "\nh1 0 2 x y\n",
		"negative offset":  "\nh1 -5 0\n",
		"negative extent":  "\nh1 0 3 x -1\n",
		"completely empty": "",
	}
	for name, src := range cases {
		_, err := Parse(strings.NewReader(src))
		var mte *MalformedTraceError
		if !errors.As(err, &mte) {
			t.Errorf("%s: expected MalformedTraceError, got %v", name, err)
		}
	}
}

func TestParseSkipsBlankAndCommentLines(t *testing.T) {
	src := "\n# comment\n\nh1 10 1\n   \nh2 20 5 a 30\n"
	tr, err := Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(tr.Flows) != 2 {
		t.Fatalf("expected 2 flows, got %d", len(tr.Flows))
	}
	if tr.Flows[1].EndMicros() != 50 {
		t.Errorf("end = %v, want 50", tr.Flows[1].EndMicros())
	}
}

func TestCalcDurationEmpty(t *testing.T) {
	if got := CalcDuration(nil, DefaultGracePeriod); got != DefaultGracePeriod {
		t.Errorf("duration = %v, want %v", got, DefaultGracePeriod)
	}
	tr, err := Parse(strings.NewReader("\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := tr.Duration(DefaultGracePeriod); got != DefaultGracePeriod {
		t.Errorf("duration = %v, want %v", got, DefaultGracePeriod)
	}
}

func TestCalcDurationUsesMaxNotSum(t *testing.T) {
	flows := []FlowRecord{
		{OffsetMicros: 0, Type: 2, ExtentMicros: 2_000_000},
		{OffsetMicros: 1_000_000, Type: 2, ExtentMicros: 500_000},
		{OffsetMicros: 3_000_000, Type: 0, ExtentMicros: 9_000_000},
	}
	// the instantaneous flow ends at its offset and its extent is ignored
	if got := CalcDuration(flows, DefaultGracePeriod); got != 13*time.Second {
		t.Errorf("duration = %v, want 13s", got)
	}
}

func TestCalcDurationMonotonic(t *testing.T) {
	flows := []FlowRecord{
		{OffsetMicros: 100, Type: 2, ExtentMicros: 1000},
		{OffsetMicros: 50, Type: 4, ExtentMicros: 200},
	}
	base := CalcDuration(flows, DefaultGracePeriod)
	if base < DefaultGracePeriod {
		t.Fatalf("duration %v below grace period", base)
	}

	flows[0].ExtentMicros += 10
	if got := CalcDuration(flows, DefaultGracePeriod); got <= base {
		t.Errorf("duration did not increase: %v <= %v", got, base)
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.txt")
	if err := os.WriteFile(path, []byte("h1 h2\nh1 0 2 x 1000\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	tr, err := ParseFile(path)
	if err != nil {
		t.Fatalf("parse file: %v", err)
	}
	if tr.Path != path {
		t.Errorf("path = %q, want %q", tr.Path, path)
	}

	if _, err := ParseFile(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestNewParticipants(t *testing.T) {
	tr := &Trace{RequestResponseHosts: []string{"h2", "h2"}}

	p, err := NewParticipants([]string{"h1", "h2", "h3"}, tr)
	if err != nil {
		t.Fatalf("participants: %v", err)
	}
	if len(p.RequestResponse) != 1 || !p.IsRequestResponse("h2") || p.IsRequestResponse("h1") {
		t.Errorf("unexpected request/response set %v", p.RequestResponse)
	}

	tr.RequestResponseHosts = []string{"h9"}
	_, err = NewParticipants([]string{"h1"}, tr)
	var mte *MalformedTraceError
	if !errors.As(err, &mte) {
		t.Errorf("expected MalformedTraceError, got %v", err)
	}
}
