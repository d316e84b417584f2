package trace

import (
	"fmt"
	"slices"
)

// Participants splits the hosts of a run by workload. Every host runs the
// throughput workload; RequestResponse is the subset that also runs the
// latency-sensitive one.
type Participants struct {
	Hosts           []string
	RequestResponse []string
}

// NewParticipants checks that every request/response host is one of hosts.
func NewParticipants(hosts []string, t *Trace) (Participants, error) {
	p := Participants{Hosts: slices.Clone(hosts)}
	if t == nil {
		return p, nil
	}
	for _, h := range t.RequestResponseHosts {
		if !slices.Contains(hosts, h) {
			return Participants{}, &MalformedTraceError{
				Line:   1,
				Reason: fmt.Sprintf("request/response host %q is not in the host list", h),
			}
		}
		if !slices.Contains(p.RequestResponse, h) {
			p.RequestResponse = append(p.RequestResponse, h)
		}
	}
	return p, nil
}

func (p Participants) IsRequestResponse(host string) bool {
	return slices.Contains(p.RequestResponse, host)
}
