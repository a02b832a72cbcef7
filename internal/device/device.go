// Package device discovers local GPUs and resolves which devices a run uses.
package device

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"backtranslate/internal/logging"

	"go.uber.org/zap"
)

// CPU is the placement used when no GPU is requested.
const CPU = -1

// ErrTooManyGPUs is returned when a run asks for more devices than exist.
var ErrTooManyGPUs = errors.New("the number of GPU used is more than you have")

// GPU is one device reported by nvidia-smi.
type GPU struct {
	Index    int
	Name     string
	MemoryMB int
}

// queryFunc runs the device query and returns its raw CSV output.
type queryFunc func(ctx context.Context) ([]byte, error)

var query queryFunc = nvidiaSMI

func nvidiaSMI(ctx context.Context) ([]byte, error) {
	path, err := exec.LookPath("nvidia-smi")
	if err != nil {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, path,
		"--query-gpu=index,name,memory.total",
		"--format=csv,noheader,nounits")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("nvidia-smi failed: %w", err)
	}
	return out, nil
}

// Discover lists the visible GPUs. A machine without nvidia-smi has none.
func Discover(ctx context.Context) ([]GPU, error) {
	out, err := query(ctx)
	if err != nil {
		return nil, err
	}
	gpus, err := parse(out)
	if err != nil {
		return nil, err
	}
	logging.Get(logging.CategoryDevice).Debug("Discovered GPUs", zap.Int("count", len(gpus)))
	return gpus, nil
}

func parse(out []byte) ([]GPU, error) {
	var gpus []GPU
	sc := bufio.NewScanner(strings.NewReader(string(out)))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		idx, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil {
			return nil, fmt.Errorf("unexpected nvidia-smi line %q", line)
		}
		gpu := GPU{Index: idx}
		if len(fields) > 1 {
			gpu.Name = strings.TrimSpace(fields[1])
		}
		if len(fields) > 2 {
			gpu.MemoryMB, _ = strconv.Atoi(strings.TrimSpace(fields[2]))
		}
		gpus = append(gpus, gpu)
	}
	return gpus, sc.Err()
}

// Available returns how many devices a run may use. Configured endpoints win
// over discovery since the GPUs then live behind those endpoints.
func Available(ctx context.Context, override, endpoints int) (int, error) {
	if override > 0 {
		return override, nil
	}
	if endpoints > 0 {
		return endpoints, nil
	}
	gpus, err := Discover(ctx)
	if err != nil {
		return 0, err
	}
	return len(gpus), nil
}

// Resolve turns the requested GPU list into the devices the run uses.
// noCUDA or an empty list selects the CPU.
func Resolve(gpus []int, noCUDA bool, available int) ([]int, error) {
	if noCUDA || len(gpus) == 0 {
		return []int{CPU}, nil
	}

	seen := make(map[int]bool, len(gpus))
	for _, g := range gpus {
		if g < 0 {
			return nil, fmt.Errorf("invalid GPU index %d", g)
		}
		if seen[g] {
			return nil, fmt.Errorf("GPU %d listed twice", g)
		}
		seen[g] = true
	}
	if len(gpus) > available {
		return nil, fmt.Errorf("%w: asked for %d, found %d", ErrTooManyGPUs, len(gpus), available)
	}

	out := make([]int, len(gpus))
	copy(out, gpus)
	return out, nil
}

// IsCPU reports whether the resolved placement is the CPU.
func IsCPU(devices []int) bool {
	return len(devices) == 1 && devices[0] == CPU
}
