package topology

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Node is one entry of the node-link topology file written by the network builder.
type Node struct {
	ID     string `json:"id"`
	IsHost bool   `json:"isHost"`
}

type Topology struct {
	Nodes []Node `json:"nodes"`
}

// Hosts returns the host node ids in sorted order.
func (t *Topology) Hosts() []string {
	hosts := make([]string, 0, len(t.Nodes))
	for _, n := range t.Nodes {
		if n.IsHost {
			hosts = append(hosts, n.ID)
		}
	}
	sort.Strings(hosts)
	return hosts
}

func Load(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topology file: %w", err)
	}
	var topo Topology
	if err := json.Unmarshal(data, &topo); err != nil {
		return nil, fmt.Errorf("parse topology file %s: %w", path, err)
	}
	return &topo, nil
}

func LoadHosts(path string) ([]string, error) {
	topo, err := Load(path)
	if err != nil {
		return nil, err
	}
	hosts := topo.Hosts()
	if len(hosts) == 0 {
		return nil, fmt.Errorf("topology %s has no hosts", path)
	}
	return hosts, nil
}
