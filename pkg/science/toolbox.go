package science

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/actris-cloudnet/cloudnet-processing/pkg/log"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/metrics"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/types"
)

// Toolbox subcommands
const (
	cmdProcess = "process"
	cmdPlot    = "plot"
	cmdQC      = "qc"
)

// Exit codes of the toolbox contract. Any other non-zero code is fatal.
const (
	ExitOK             = 0
	ExitRawDataMissing = 3
	ExitMiscError      = 4
)

// DefaultTimeout bounds a single toolbox invocation
const DefaultTimeout = 30 * time.Minute

const stderrTailLimit = 2048

// Toolbox runs scientific transforms by shelling out to the toolbox
// binary. Each invocation writes a JSON request to stdin and reads a
// JSON response from stdout; stderr carries diagnostics.
type Toolbox struct {
	binary  string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewToolbox creates a toolbox runner for the given binary
func NewToolbox(binary string, timeout time.Duration) *Toolbox {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Toolbox{
		binary:  binary,
		timeout: timeout,
		logger:  log.WithComponent("science"),
	}
}

// Process implements Engine
func (t *Toolbox) Process(ctx context.Context, req *ProcessRequest) (*ProcessResult, error) {
	timer := metrics.NewTimer()
	var result ProcessResult
	if err := t.Invoke(ctx, cmdProcess, req, &result); err != nil {
		return nil, err
	}
	timer.ObserveDurationVec(metrics.TransformDuration, req.Product)
	if result.UUID == "" {
		return nil, fmt.Errorf("toolbox %s returned no uuid for %s", cmdProcess, req.Product)
	}
	return &result, nil
}

// Plot implements Plotter
func (t *Toolbox) Plot(ctx context.Context, req *PlotRequest) ([]Image, error) {
	var response struct {
		Images []Image `json:"images"`
	}
	if err := t.Invoke(ctx, cmdPlot, req, &response); err != nil {
		return nil, err
	}
	return response.Images, nil
}

// Run implements QC
func (t *Toolbox) Run(ctx context.Context, req *QCRequest) (*types.QualityReport, error) {
	var report types.QualityReport
	if err := t.Invoke(ctx, cmdQC, req, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Invoke executes one toolbox subcommand. Exit code 3 maps to a
// raw-data-missing skip and 4 to a misc skip, with the last stderr
// line as the reason; any other failure is fatal.
func (t *Toolbox) Invoke(ctx context.Context, subcommand string, payload, out any) error {
	input, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", subcommand, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, t.binary, subcommand)
	cmd.Stdin = bytes.NewReader(input)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	t.logger.Debug().
		Str("binary", t.binary).
		Str("subcommand", subcommand).
		Msg("Invoking toolbox")

	err = cmd.Run()
	if err != nil {
		if ctxErr := runCtx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return fmt.Errorf("toolbox %s timed out after %s", subcommand, t.timeout)
			}
			return fmt.Errorf("toolbox %s interrupted: %w", subcommand, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code := exitErr.ExitCode()
			reason := lastLine(&stderr)
			if reason == "" {
				reason = fmt.Sprintf("toolbox %s exited with code %d", subcommand, code)
			}
			switch code {
			case ExitRawDataMissing:
				return types.RawDataMissing("%s", reason)
			case ExitMiscError:
				return types.MiscError("%s", reason)
			}
			return fmt.Errorf("toolbox %s exited with code %d: %s", subcommand, code, stderrTail(&stderr))
		}
		return fmt.Errorf("running toolbox %s: %w", subcommand, err)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(stdout.Bytes(), out); err != nil {
		return fmt.Errorf("decoding toolbox %s response: %w", subcommand, err)
	}
	return nil
}

// lastLine returns the final non-empty stderr line, where the toolbox
// leaves its one-line reason.
func lastLine(buf *bytes.Buffer) string {
	lines := strings.Split(buf.String(), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if s := strings.TrimSpace(lines[i]); s != "" {
			return s
		}
	}
	return ""
}

// stderrTail returns the trailing stderr content for fatal errors
func stderrTail(buf *bytes.Buffer) string {
	s := strings.TrimSpace(buf.String())
	if s == "" {
		return "no detail on stderr"
	}
	if len(s) > stderrTailLimit {
		s = s[len(s)-stderrTailLimit:]
	}
	return s
}
