package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ProtocolTCP = "tcp"
	ProtocolUDP = "udp"

	RunnerMininet = "mininet"
	RunnerSSH     = "ssh"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Experiment ExperimentConfig `yaml:"experiment"`
	Runner     RunnerConfig     `yaml:"runner"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	Charset  string `yaml:"charset"`
}

// Enabled reports whether runs should be persisted.
func (d DatabaseConfig) Enabled() bool {
	return d.Host != ""
}

// ExperimentConfig is everything the trace parser, scheduler and aggregator
// need to know about one experiment. It is passed by value at construction.
type ExperimentConfig struct {
	TraceFile string   `yaml:"trace_file"`
	Hosts     []string `yaml:"hosts"`
	LogDir    string   `yaml:"log_dir"`
	TopoFile  string   `yaml:"topo_file"`
	Protocol  string   `yaml:"protocol"`
	Port      int      `yaml:"port"`

	StartupMargin time.Duration `yaml:"startup_margin"`
	Warmup        time.Duration `yaml:"warmup"`
	GracePeriod   time.Duration `yaml:"grace_period"`
	// ClientTimeout bounds how long teardown waits on each client after the deadline.
	ClientTimeout time.Duration `yaml:"client_timeout"`
	Settle        time.Duration `yaml:"settle"`

	ScoreFile     string `yaml:"score_file"`
	BuildDir      string `yaml:"build_dir"`
	OutputDir     string `yaml:"output_dir"`
	CleanupScript string `yaml:"cleanup_script"`
}

type RunnerConfig struct {
	// Kind is mininet or ssh. SSHFrontend is an optional jump host.
	Kind        string         `yaml:"kind"`
	MininetUtil string         `yaml:"mininet_util"`
	SSHFrontend string         `yaml:"ssh_frontend"`
	Commands    CommandsConfig `yaml:"commands"`
}

type CommandsConfig struct {
	MemcachedServer CommandConfig `yaml:"memcached_server"`
	MemcachedClient CommandConfig `yaml:"memcached_client"`
	IperfServer     CommandConfig `yaml:"iperf_server"`
	IperfClient     CommandConfig `yaml:"iperf_client"`
}

// CommandConfig overrides one start/stop template pair. Empty fields keep the built-in template.
type CommandConfig struct {
	Start string `yaml:"start"`
	Stop  string `yaml:"stop"`
}

func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	config.applyDefaults()

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.Charset == "" {
		c.Database.Charset = "utf8mb4"
	}

	e := &c.Experiment
	if e.LogDir == "" {
		e.LogDir = "logs"
	}
	if e.TopoFile == "" {
		e.TopoFile = "topology.json"
	}
	if e.Protocol == "" {
		e.Protocol = ProtocolTCP
	}
	if e.StartupMargin == 0 {
		e.StartupMargin = 10 * time.Second
	}
	if e.Warmup == 0 {
		e.Warmup = 5 * time.Second
	}
	if e.GracePeriod == 0 {
		e.GracePeriod = 10 * time.Second
	}
	if e.ClientTimeout == 0 {
		e.ClientTimeout = 60 * time.Second
	}
	if e.Settle == 0 {
		e.Settle = 3 * time.Second
	}
	if e.OutputDir == "" {
		e.OutputDir = "outputs"
	}

	if c.Runner.Kind == "" {
		c.Runner.Kind = RunnerMininet
	}
	if c.Runner.MininetUtil == "" {
		c.Runner.MininetUtil = "~/mininet/util/m"
	}
}

// Validate checks the values a run cannot start without.
func (e ExperimentConfig) Validate() error {
	if e.Protocol != ProtocolTCP && e.Protocol != ProtocolUDP {
		return fmt.Errorf("protocol must be %s or %s, got %q", ProtocolTCP, ProtocolUDP, e.Protocol)
	}
	if e.Port < 0 || e.Port > 65535 {
		return fmt.Errorf("port not in range [0, 65535]: %d", e.Port)
	}
	if e.LogDir == "" {
		return fmt.Errorf("log dir must be set")
	}
	return nil
}

func (r RunnerConfig) Validate() error {
	switch r.Kind {
	case RunnerMininet, RunnerSSH:
		return nil
	default:
		return fmt.Errorf("unknown runner kind %q", r.Kind)
	}
}
