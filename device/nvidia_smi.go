package device

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ErrNoAccelerator is returned when nvidia-smi runs but lists no GPU.
var ErrNoAccelerator = errors.New("device: no accelerator reported")

// NvidiaSMIProbe detects a CUDA device by querying nvidia-smi.
type NvidiaSMIProbe struct {
	// Path is the nvidia-smi executable. Empty means "nvidia-smi" from PATH.
	Path string

	// Timeout bounds the query (default: 5s).
	Timeout time.Duration
}

// Probe runs nvidia-smi and parses the first GPU line.
func (p NvidiaSMIProbe) Probe(ctx context.Context) (Info, error) {
	path := p.Path
	if path == "" {
		path = "nvidia-smi"
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path,
		"--query-gpu=name,memory.total,memory.used",
		"--format=csv,noheader,nounits")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Info{}, fmt.Errorf("nvidia-smi failed: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}
	return parseNvidiaSMIOutput(stdout.String())
}

// parseNvidiaSMIOutput parses "name, total MiB, used MiB" CSV output.
func parseNvidiaSMIOutput(output string) (Info, error) {
	output = strings.TrimSpace(output)
	if output == "" {
		return Info{}, ErrNoAccelerator
	}

	reader := csv.NewReader(strings.NewReader(output))
	reader.TrimLeadingSpace = true
	record, err := reader.Read()
	if err != nil {
		return Info{}, fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(record) < 3 {
		return Info{}, fmt.Errorf("unexpected field count: got %d, expected 3", len(record))
	}

	memTotalMiB, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
	if err != nil {
		return Info{}, fmt.Errorf("failed to parse memory total: %w", err)
	}
	memUsedMiB, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
	if err != nil {
		return Info{}, fmt.Errorf("failed to parse memory used: %w", err)
	}

	const mibToBytes = 1024 * 1024
	total := int64(memTotalMiB * mibToBytes)
	used := int64(memUsedMiB * mibToBytes)

	return Info{
		Name:        strings.TrimSpace(record[0]),
		MemoryTotal: total,
		MemoryFree:  total - used,
	}, nil
}
