package runner

import (
	"fmt"
	"regexp"
	"strconv"

	"traffic-exp/internal/config"
)

// Placeholders understood by every command template.
const (
	ParamStartTime   = "start_time"
	ParamHostName    = "host_name"
	ParamTrafficFile = "traffic_file"
	ParamLogDir      = "log_dir"
	ParamProtocol    = "protocol"
	ParamPort        = "port"
	ParamTopoFile    = "topo_file"
)

var placeholderRe = regexp.MustCompile(`\{([a-z_]+)\}`)

type Params map[string]string

// With returns a copy of p with key set to value.
func (p Params) With(key, value string) Params {
	out := make(Params, len(p)+1)
	for k, v := range p {
		out[k] = v
	}
	out[key] = value
	return out
}

func (p Params) WithInt(key string, value int64) Params {
	return p.With(key, strconv.FormatInt(value, 10))
}

// Template is a shell command with {name} placeholders.
type Template string

// Render substitutes every placeholder. A placeholder without a value is an error.
func (t Template) Render(p Params) (string, error) {
	var missing []string
	out := placeholderRe.ReplaceAllStringFunc(string(t), func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := p[name]
		if !ok {
			missing = append(missing, name)
			return m
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("template %q: no value for %v", string(t), missing)
	}
	return out, nil
}

type Command struct {
	Start Template
	Stop  Template
}

// Commands holds the start/stop templates of both workloads.
type Commands struct {
	MemcachedServer Command
	MemcachedClient Command
	IperfServer     Command
	IperfClient     Command
}

// All lists the command pairs in launch order.
func (c Commands) All() []Command {
	return []Command{c.MemcachedServer, c.MemcachedClient, c.IperfServer, c.IperfClient}
}

func DefaultCommands() Commands {
	return Commands{
		MemcachedServer: Command{
			Start: "memcached -u p4 -m 100 >/dev/null 2>&1",
			Stop:  "sudo killall memcached 2>/dev/null",
		},
		MemcachedClient: Command{
			Start: "stdbuf -o0 -e0 python apps/memcached_client.py {start_time} {host_name} {traffic_file} > {log_dir}/{host_name}_mc.log 2> {log_dir}/{host_name}_mc_error.log",
			Stop:  `sudo killall "python apps/memcached_client.py" 2>/dev/null`,
		},
		IperfServer: Command{
			Start: "stdbuf -o0 -e0 ./apps/traffic_generator/traffic_receiver --topofile {topo_file} --host {host_name} --protocol {protocol} --start_time {start_time} --logdir {log_dir} --verbose > {log_dir}/{host_name}_iperf_server_error.log 2>&1",
			Stop:  `sudo killall "traffic_receiver" 2>/dev/null`,
		},
		IperfClient: Command{
			Start: "stdbuf -o0 -e0 ./apps/traffic_generator/traffic_sender --topofile {topo_file} --host {host_name} --protocol {protocol} --tracefile {traffic_file} --start_time {start_time} --logdir {log_dir} --verbose --port {port} > {log_dir}/{host_name}_iperf_error.log 2>&1",
			Stop:  `sudo killall "traffic_sender" 2>/dev/null`,
		},
	}
}

// CommandsFromConfig overlays configured templates on the defaults.
func CommandsFromConfig(cfg config.CommandsConfig) Commands {
	c := DefaultCommands()
	overlay(&c.MemcachedServer, cfg.MemcachedServer)
	overlay(&c.MemcachedClient, cfg.MemcachedClient)
	overlay(&c.IperfServer, cfg.IperfServer)
	overlay(&c.IperfClient, cfg.IperfClient)
	return c
}

func overlay(c *Command, cfg config.CommandConfig) {
	if cfg.Start != "" {
		c.Start = Template(cfg.Start)
	}
	if cfg.Stop != "" {
		c.Stop = Template(cfg.Stop)
	}
}
