package service

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Weights scale the throughput (A) and latency (B) terms of the final score.
type Weights struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

func DefaultWeights() Weights {
	return Weights{A: 1, B: 1}
}

// ReadWeights reads a score config file: A on the first line, B on the second.
// An empty path yields the defaults.
func ReadWeights(path string) (Weights, error) {
	if path == "" {
		return DefaultWeights(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return Weights{}, fmt.Errorf("open score config: %w", err)
	}
	defer f.Close()

	var values []float64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		v, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return Weights{}, fmt.Errorf("score config %s: invalid weight %q: %w", path, line, err)
		}
		values = append(values, v)
	}
	if err := scanner.Err(); err != nil {
		return Weights{}, fmt.Errorf("read score config: %w", err)
	}
	if len(values) != 2 {
		return Weights{}, fmt.Errorf("score config %s: expected 2 weights, got %d", path, len(values))
	}
	return Weights{A: values[0], B: values[1]}, nil
}
