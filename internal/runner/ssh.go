package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
)

// SSH pipes the rendered command into `bash -s` on the host, optionally
// hopping through a frontend machine first.
type SSH struct {
	Frontend string
	Stdout   io.Writer
	Stderr   io.Writer
}

func NewSSH(frontend string) *SSH {
	return &SSH{
		Frontend: frontend,
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
	}
}

func (s *SSH) args(host string) []string {
	args := []string{}
	if s.Frontend != "" {
		args = append(args, s.Frontend, "ssh")
	}
	return append(args, "-o", "StrictHostKeyChecking=no", host, "bash", "-s")
}

func (s *SSH) Launch(ctx context.Context, host string, tmpl Template, params Params) (Handle, error) {
	command, err := tmpl.Render(params.With(ParamHostName, host))
	if err != nil {
		return nil, err
	}

	cmd := exec.Command("ssh", s.args(host)...)
	cmd.Stdin = bytes.NewBufferString(command + "\n")
	cmd.Stdout = s.Stdout
	cmd.Stderr = s.Stderr

	h, err := startProcess(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to launch on %s: %w", host, err)
	}
	log.Printf("launched on %s via ssh: %s\n", host, command)
	return h, nil
}
