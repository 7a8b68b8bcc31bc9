package judge

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"coderace/internal/services/race"

	"go.uber.org/zap"
)

//go:embed runner.py
var runnerScript string

const maxStderr = 2048

// waitDelay bounds how long Run waits on stdout once the interpreter has
// exited or been killed; a lingering child would otherwise hold the pipe.
const waitDelay = 500 * time.Millisecond

var ErrEmptyOutput = errors.New("judge produced no output")

type runRequest struct {
	Code         string   `json:"code"`
	PublicTests  []string `json:"public_tests"`
	PrivateTests []string `json:"private_tests"`
}

// PythonJudge runs a submission in a fresh python interpreter per call.
// The interpreter gets its own process group and an environment holding
// only PATH. It bounds wall time; it is not a sandbox.
type PythonJudge struct {
	python  string
	timeout time.Duration
}

var _ race.Judge = (*PythonJudge)(nil)

func NewPythonJudge(python string, timeout time.Duration) *PythonJudge {
	if python == "" {
		python = "python3"
	}
	return &PythonJudge{python: python, timeout: timeout}
}

func (j *PythonJudge) RunTests(ctx context.Context, code string, publicTests, privateTests []string) (race.Verdict, error) {
	payload, err := json.Marshal(runRequest{Code: code, PublicTests: publicTests, PrivateTests: privateTests})
	if err != nil {
		return race.Verdict{}, fmt.Errorf("encode request: %w", err)
	}

	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, j.python, "-I", "-c", runnerScript)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = []string{"PATH=" + os.Getenv("PATH")}
	cmd.WaitDelay = waitDelay
	isolate(cmd)

	start := time.Now()
	err = cmd.Run()
	reap(cmd)
	zap.L().Debug("judge.exec", zap.Duration("took", time.Since(start)), zap.Error(err))

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return race.Verdict{
			Success: false,
			Results: []string{fmt.Sprintf("❌ Time limit exceeded (%s).", j.timeout)},
		}, nil
	}
	if errors.Is(err, exec.ErrWaitDelay) {
		// the interpreter exited cleanly; a child it left behind kept stdout open
		err = nil
	}
	if err != nil {
		return race.Verdict{}, fmt.Errorf("run %s: %w: %s", j.python, err, truncate(stderr.String(), maxStderr))
	}
	return ParseOutput(stdout.Bytes())
}

// ParseOutput decodes the runner's single JSON line.
func ParseOutput(out []byte) (race.Verdict, error) {
	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return race.Verdict{}, ErrEmptyOutput
	}
	var v race.Verdict
	if err := json.Unmarshal(out, &v); err != nil {
		return race.Verdict{}, fmt.Errorf("decode verdict: %w", err)
	}
	if v.Results == nil {
		v.Results = []string{}
	}
	return v, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
