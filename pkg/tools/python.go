package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

const pythonRunTimeout = 10 * time.Second

var tripleBacktickRe = regexp.MustCompile("(?s)```[^\n]*\n(.+?)```")

// PythonTool executes Python code against a SandboxFusion endpoint. When no
// endpoints are configured the code runs locally through the python3 binary.
type PythonTool struct {
	endpoints []string
	client    *http.Client
	// runLocal is swappable in tests to avoid depending on a local
	// python3 installation.
	runLocal func(ctx context.Context, code string) string
}

func NewPythonTool(endpoints []string) *PythonTool {
	t := &PythonTool{
		endpoints: endpoints,
		client:    http.DefaultClient,
	}
	t.runLocal = t.runPythonLocally
	return t
}

// WithHTTPClient overrides the HTTP client, for tests.
func (t *PythonTool) WithHTTPClient(client *http.Client) *PythonTool {
	t.client = client
	return t
}

func (t *PythonTool) Name() string { return PythonToolName }

func (t *PythonTool) Description() string {
	return "Execute Python code in a sandboxed environment. Use this to run Python code and get the execution results.\n**Make sure to use print() for any output you want to see in the results.**"
}

func (t *PythonTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"code": map[string]any{
				"type":        "string",
				"description": "The Python code to execute. Remember to use print() statements for any output you want to see.",
			},
		},
		"required": []any{"code"},
	}
}

func (t *PythonTool) Call(ctx context.Context, args map[string]any) (string, error) {
	code, _ := args["code"].(string)
	if code == "" {
		code, _ = args["raw"].(string)
	}
	if m := tripleBacktickRe.FindStringSubmatch(code); m != nil {
		code = m[1]
	}
	if strings.TrimSpace(code) == "" {
		return "[Python Interpreter Error]: Empty code.", nil
	}

	if len(t.endpoints) == 0 {
		slog.Debug("no sandbox fusion endpoints available, falling back to local execution")
		return t.runLocal(ctx, code), nil
	}

	var lastError string
	for attempt := 0; attempt < 2; attempt++ {
		endpoint := t.endpoints[rand.Intn(len(t.endpoints))]
		result, err := t.runRemote(ctx, endpoint, code)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			lastError = fmt.Sprintf("[Python Interpreter Error] TimeoutError: Execution timed out on endpoint %s.", endpoint)
		} else {
			lastError = fmt.Sprintf("[Python Interpreter Error]: %v on endpoint %s", err, endpoint)
		}
		slog.Error("sandbox execution attempt failed", "attempt", attempt+1, "endpoint", endpoint, "error", err)
	}
	if lastError == "" {
		lastError = "[Python Interpreter Error]: All attempts failed."
	}
	return lastError, nil
}

type sandboxRunResult struct {
	Stdout        string  `json:"stdout"`
	Stderr        string  `json:"stderr"`
	ExecutionTime float64 `json:"execution_time"`
}

// runRemote posts the code to a SandboxFusion /run_code endpoint and formats
// stdout/stderr sections the way the agents expect observations.
func (t *PythonTool) runRemote(ctx context.Context, endpoint, code string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"code":        code,
		"language":    "python",
		"run_timeout": pythonRunTimeout.Seconds(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode run request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, pythonRunTimeout+5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, strings.TrimSuffix(endpoint, "/")+"/run_code", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		if reqCtx.Err() == context.DeadlineExceeded {
			return "", context.DeadlineExceeded
		}
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var decoded struct {
		RunResult sandboxRunResult `json:"run_result"`
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("failed to decode sandbox response: %w", err)
	}

	var parts []string
	if decoded.RunResult.Stdout != "" {
		parts = append(parts, "stdout:\n"+decoded.RunResult.Stdout)
	}
	if decoded.RunResult.Stderr != "" {
		parts = append(parts, "stderr:\n"+decoded.RunResult.Stderr)
	}
	if decoded.RunResult.ExecutionTime >= pythonRunTimeout.Seconds()-1 {
		parts = append(parts, "[PythonInterpreter Error] TimeoutError: Execution timed out.")
	}
	result := strings.Join(parts, "\n")
	if strings.TrimSpace(result) == "" {
		return "Finished execution.", nil
	}
	return result, nil
}

// runPythonLocally executes the code with the local python3 interpreter.
func (t *PythonTool) runPythonLocally(ctx context.Context, code string) string {
	runCtx, cancel := context.WithTimeout(ctx, pythonRunTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "python3", "-c", code)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return "[Python Interpreter Error] TimeoutError: Execution timed out."
	}
	if err != nil && stderr.Len() == 0 {
		return fmt.Sprintf("stderr:\nError: %v", err)
	}
	if stderr.Len() > 0 {
		return "stderr:\n" + strings.TrimSpace(stderr.String())
	}
	if out := strings.TrimSpace(stdout.String()); out != "" {
		return "stdout:\n" + out
	}
	return "Finished execution."
}
