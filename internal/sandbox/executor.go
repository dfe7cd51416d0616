// Package sandbox runs candidate entry points. Every call gets a fresh Python
// interpreter, so no interpreter state survives between fixtures, tiers or
// candidates, and a runaway call is killed with its whole process group.
package sandbox

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	_ "embed"

	"github.com/go-viper/mapstructure/v2"
	"github.com/google/uuid"

	"github.com/spboyer/rmbsgrade/internal/models"
	"github.com/spboyer/rmbsgrade/internal/portfolio"
	"github.com/spboyer/rmbsgrade/internal/rating"
)

//go:embed data/driver.py
var driverPy string

const (
	defaultStderrLimit = 64 << 10
	defaultStdoutLimit = 16 << 20
	defaultWaitDelay   = 500 * time.Millisecond
)

// ErrPythonNotFound is returned by New when no usable interpreter exists.
var ErrPythonNotFound = errors.New("python interpreter not found")

// Executor spawns one interpreter per invocation. It is safe for concurrent use.
type Executor struct {
	pythonBin   string
	driverPath  string
	driverDir   string
	stderrLimit int
	waitDelay   time.Duration
}

// Option configures an Executor.
type Option func(*Executor)

// WithPythonBin selects the interpreter instead of probing python3/python.
func WithPythonBin(bin string) Option {
	return func(e *Executor) { e.pythonBin = bin }
}

// WithStderrLimit caps how much candidate stderr is retained for diagnostics.
func WithStderrLimit(n int) Option {
	return func(e *Executor) { e.stderrLimit = n }
}

// WithWaitDelay sets how long to wait for pipes to drain after the process
// group is killed.
func WithWaitDelay(d time.Duration) Option {
	return func(e *Executor) { e.waitDelay = d }
}

// New locates the interpreter and writes the driver script to a temporary
// directory. Call Close to remove it.
func New(opts ...Option) (*Executor, error) {
	e := &Executor{
		stderrLimit: defaultStderrLimit,
		waitDelay:   defaultWaitDelay,
	}
	for _, opt := range opts {
		opt(e)
	}

	bin, err := resolvePythonBin(e.pythonBin)
	if err != nil {
		return nil, err
	}
	e.pythonBin = bin

	dir, err := os.MkdirTemp("", "rmbsgrade-driver-*")
	if err != nil {
		return nil, fmt.Errorf("creating driver directory: %w", err)
	}
	e.driverDir = dir
	e.driverPath = filepath.Join(dir, "driver.py")
	if err := os.WriteFile(e.driverPath, []byte(driverPy), 0o600); err != nil {
		os.RemoveAll(dir) //nolint:errcheck
		return nil, fmt.Errorf("writing driver script: %w", err)
	}

	slog.Debug("sandbox ready", "python", e.pythonBin, "driver", e.driverPath)
	return e, nil
}

// PythonBin returns the interpreter in use.
func (e *Executor) PythonBin() string { return e.pythonBin }

// Close removes the driver script.
func (e *Executor) Close() error {
	if e.driverDir == "" {
		return nil
	}
	return os.RemoveAll(e.driverDir)
}

func resolvePythonBin(configured string) (string, error) {
	if configured != "" {
		path, err := exec.LookPath(configured)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrPythonNotFound, configured, err)
		}
		return path, nil
	}
	// Prefer python3, but verify it actually works: on Windows the
	// Microsoft Store registers a python3.exe stub that just prints
	// "Python was not found".
	for _, name := range []string{"python3", "python"} {
		path, err := exec.LookPath(name)
		if err != nil {
			continue
		}
		if exec.Command(path, "--version").Run() == nil {
			return path, nil
		}
	}
	return "", ErrPythonNotFound
}

type request struct {
	Mode      string               `json:"mode"`
	Marker    string               `json:"marker"`
	Root      string               `json:"root"`
	File      string               `json:"file"`
	Module    string               `json:"module"`
	Function  string               `json:"function"`
	Class     string               `json:"class,omitempty"`
	Shape     models.Shape         `json:"shape"`
	Portfolio *portfolio.Portfolio `json:"portfolio,omitempty"`
}

// driverResult is the JSON object the driver writes after the marker.
type driverResult struct {
	Status    string `mapstructure:"status"`
	Result    any    `mapstructure:"result"`
	ElapsedNs int64  `mapstructure:"elapsed_ns"`
	ErrorType string `mapstructure:"error_type"`
	Message   string `mapstructure:"message"`
	Traceback string `mapstructure:"traceback"`
}

func (r *driverResult) describe() string {
	if r.Message == "" {
		return r.ErrorType
	}
	return r.ErrorType + ": " + r.Message
}

// errTimedOut and errCancelled distinguish why a run was cut short.
var (
	errTimedOut  = errors.New("timed out")
	errCancelled = errors.New("cancelled")
)

// Execute runs the bound entry point on p. It never returns an error: every
// candidate fault is folded into the ExecutionResult.
func (e *Executor) Execute(ctx context.Context, b *models.CandidateBinding, p portfolio.Portfolio, timeout time.Duration) models.ExecutionResult {
	res, err := e.run(ctx, newRequest("call", b, &p), timeout)
	switch {
	case errors.Is(err, errTimedOut):
		return models.NewTimeout(timeout)
	case errors.Is(err, errCancelled):
		return models.NewFailure(models.ErrorKindInvocationFailure, "evaluation cancelled")
	case err != nil:
		return models.NewFailure(models.ErrorKindInvocationFailure, err.Error())
	}

	switch res.Status {
	case "ok":
	case "import_error":
		return models.NewFailure(models.ErrorKindImportFailure, res.describe())
	default:
		return models.NewFailure(models.ErrorKindInvocationFailure, res.describe())
	}

	r, err := rating.Normalize(res.Result)
	if err != nil {
		return models.NewFailure(models.ErrorKindMalformedOutput, fmt.Sprintf("%v: %s", err, preview(res.Result)))
	}
	return models.NewSuccess(r, time.Duration(res.ElapsedNs))
}

// Probe imports the bound module and resolves the callable without calling it.
func (e *Executor) Probe(ctx context.Context, b *models.CandidateBinding, timeout time.Duration) error {
	res, err := e.run(ctx, newRequest("probe", b, nil), timeout)
	if err != nil {
		return fmt.Errorf("probing %s: %w", b.Qualified(), err)
	}
	if res.Status != "ok" {
		return fmt.Errorf("importing %s: %s", b.Qualified(), res.describe())
	}
	return nil
}

func newRequest(mode string, b *models.CandidateBinding, p *portfolio.Portfolio) request {
	return request{
		Mode:      mode,
		Marker:    "@@rmbsgrade:" + uuid.NewString() + "@@",
		Root:      b.Root,
		File:      b.File,
		Module:    b.Module,
		Function:  b.Function,
		Class:     b.Class,
		Shape:     b.Shape,
		Portfolio: p,
	}
}

func (e *Executor) run(ctx context.Context, req request, timeout time.Duration) (*driverResult, error) {
	input, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.pythonBin, e.driverPath)
	cmd.Dir = req.Root
	cmd.Env = append(cmd.Environ(),
		"PYTHONDONTWRITEBYTECODE=1",
		"PYTHONHASHSEED=0",
		"PYTHONIOENCODING=utf-8",
		"PYTHONNOUSERSITE=1",
	)
	cmd.Stdin = bytes.NewReader(input)
	stdout := &cappedBuffer{limit: defaultStdoutLimit}
	stderr := &cappedBuffer{limit: e.stderrLimit}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = e.waitDelay
	configureProcessGroup(cmd)

	runErr := cmd.Run()
	killProcessGroup(cmd)

	// A result written before the deadline stands even when something the
	// candidate started kept the process group alive past it.
	res, parseErr := parseDriverOutput(stdout.Bytes(), req.Marker)
	if parseErr == nil {
		return res, nil
	}
	if runCtx.Err() != nil {
		if ctx.Err() != nil {
			return nil, errCancelled
		}
		return nil, errTimedOut
	}

	msg := parseErr.Error()
	if runErr != nil {
		msg = fmt.Sprintf("interpreter exited: %v", runErr)
	}
	if tail := strings.TrimSpace(stderr.String()); tail != "" {
		msg += "; stderr: " + lastLines(tail, 5)
	}
	return nil, errors.New(msg)
}

func parseDriverOutput(out []byte, marker string) (*driverResult, error) {
	var line string
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64<<10), defaultStdoutLimit)
	for sc.Scan() {
		if rest, ok := strings.CutPrefix(sc.Text(), marker); ok {
			line = rest
		}
	}
	if line == "" {
		return nil, errors.New("driver produced no result")
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return nil, fmt.Errorf("decoding driver result: %w", err)
	}
	var res driverResult
	if err := mapstructure.Decode(raw, &res); err != nil {
		return nil, fmt.Errorf("decoding driver result: %w", err)
	}
	if res.Status == "" {
		return nil, errors.New("driver result has no status")
	}
	return &res, nil
}

func preview(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	s := string(data)
	if len(s) > 120 {
		s = s[:120] + "..."
	}
	return s
}

func lastLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}

// cappedBuffer keeps the first limit bytes written and silently drops the
// rest, so a chatty child never blocks on a full pipe.
type cappedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	if room := c.limit - c.buf.Len(); room > 0 {
		if len(p) > room {
			c.buf.Write(p[:room])
		} else {
			c.buf.Write(p)
		}
	}
	return len(p), nil
}

func (c *cappedBuffer) Bytes() []byte  { return c.buf.Bytes() }
func (c *cappedBuffer) String() string { return c.buf.String() }
