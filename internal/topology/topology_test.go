package topology

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTopo(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "topology.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadHosts(t *testing.T) {
	path := writeTopo(t, `{
		"directed": false,
		"nodes": [
			{"id": "s1", "isP4Switch": true},
			{"id": "h2", "isHost": true},
			{"id": "h1", "isHost": true}
		],
		"links": []
	}`)

	hosts, err := LoadHosts(path)
	if err != nil {
		t.Fatalf("load hosts: %v", err)
	}
	if strings.Join(hosts, ",") != "h1,h2" {
		t.Errorf("hosts = %v, want [h1 h2]", hosts)
	}
}

func TestLoadHostsErrors(t *testing.T) {
	if _, err := LoadHosts(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := LoadHosts(writeTopo(t, "{not json")); err == nil {
		t.Error("expected error for invalid json")
	}
	if _, err := LoadHosts(writeTopo(t, `{"nodes": [{"id": "s1"}]}`)); err == nil {
		t.Error("expected error for topology without hosts")
	}
}
