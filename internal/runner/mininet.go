package runner

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
)

// Mininet runs commands inside a host namespace through the mininet `m` utility.
type Mininet struct {
	Util   string
	Stdout io.Writer
	Stderr io.Writer
}

func NewMininet(util string) *Mininet {
	return &Mininet{
		Util:   util,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

func (m *Mininet) Launch(ctx context.Context, host string, tmpl Template, params Params) (Handle, error) {
	command, err := tmpl.Render(params.With(ParamHostName, host))
	if err != nil {
		return nil, err
	}

	// the shell expands ~ in Util and handles the redirections in command
	cmd := exec.Command("sh", "-c", fmt.Sprintf("%s %s %s", m.Util, host, command))
	cmd.Stdout = m.Stdout
	cmd.Stderr = m.Stderr

	h, err := startProcess(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to launch on %s: %w", host, err)
	}
	log.Printf("launched on %s: %s\n", host, command)
	return h, nil
}
