package ml

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"predictive-maintenance/internal/features"

	"github.com/rs/zerolog/log"
)

// PythonClassifier serves joblib and ONNX artifacts through one resident
// Python worker. The worker loads the artifact once and then answers one JSON
// line per request on stdin/stdout.
type PythonClassifier struct {
	sem      chan struct{} // one request in flight
	format   string
	model    string
	python   string
	script   string
	ownsFile bool
	timeout  time.Duration
	declared []string

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	stderr *lockedBuffer

	stateMu sync.Mutex
	broken  error
}

// PythonOptions configures NewPythonClassifier.
type PythonOptions struct {
	Format     string        // FormatJoblib or FormatONNX
	ModelPath  string        // artifact on disk
	PythonPath string        // interpreter; discovered when empty
	ScriptPath string        // inference script; embedded script when empty
	Timeout    time.Duration // per request and for the startup handshake
}

type workerRequest struct {
	Features []float64 `json:"features"`
	Columns  []string  `json:"columns"`
}

type workerResponse struct {
	Ready         bool      `json:"ready,omitempty"`
	Features      []string  `json:"features,omitempty"`
	Probabilities []float64 `json:"probabilities,omitempty"`
	Prediction    int       `json:"prediction"`
	Error         string    `json:"error,omitempty"`
}

// NewPythonClassifier starts the worker and waits for it to report that the
// artifact is loaded. Any failure here means the artifact cannot be served.
func NewPythonClassifier(ctx context.Context, opts PythonOptions) (*PythonClassifier, error) {
	if opts.Format != FormatJoblib && opts.Format != FormatONNX {
		return nil, fmt.Errorf("%w: %q is not served by the python worker", ErrUnsupportedFormat, opts.Format)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if _, err := os.Stat(opts.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactUnavailable, err)
	}

	pythonPath := opts.PythonPath
	if pythonPath == "" {
		var err error
		pythonPath, err = findPython(opts.Format)
		if err != nil {
			return nil, err
		}
	}

	p := &PythonClassifier{
		format:  opts.Format,
		model:   opts.ModelPath,
		python:  pythonPath,
		script:  opts.ScriptPath,
		timeout: opts.Timeout,
		stderr:  &lockedBuffer{},
		sem:     make(chan struct{}, 1),
	}
	if p.script == "" {
		path, err := writeInferenceScript()
		if err != nil {
			return nil, fmt.Errorf("write inference script: %w", err)
		}
		p.script = path
		p.ownsFile = true
	}

	if err := p.start(ctx); err != nil {
		p.Close()
		return nil, err
	}

	log.Info().
		Str("format", p.format).
		Str("model_path", p.model).
		Str("python_path", p.python).
		Strs("declared_features", p.declared).
		Msg("Python inference worker ready")
	return p, nil
}

func (p *PythonClassifier) start(ctx context.Context) error {
	cmd := exec.Command(p.python, p.script, p.model, p.format)
	cmd.Stderr = p.stderr
	cmd.WaitDelay = time.Second

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: start python worker: %v", ErrClassifierUnavailable, err)
	}

	p.cmd = cmd
	p.stdin = stdin
	p.stdout = bufio.NewReader(stdout)

	hctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.readResponse(hctx)
	if err != nil {
		return fmt.Errorf("%w: worker handshake: %v, stderr: %s", ErrArtifactUnavailable, err, p.stderr.String())
	}
	if resp.Error != "" {
		return fmt.Errorf("%w: %s", ErrArtifactUnavailable, resp.Error)
	}
	if !resp.Ready {
		return fmt.Errorf("%w: worker did not report ready", ErrArtifactUnavailable)
	}
	p.declared = resp.Features
	return nil
}

// DeclaredFeatures returns the input columns the artifact was fitted on, when
// the artifact records them.
func (p *PythonClassifier) DeclaredFeatures() []string {
	return p.declared
}

func (p *PythonClassifier) PredictLabel(ctx context.Context, v features.Vector) (int, error) {
	pred, err := p.Score(ctx, v)
	return pred.Label, err
}

func (p *PythonClassifier) PredictProbability(ctx context.Context, v features.Vector) (float64, error) {
	pred, err := p.Score(ctx, v)
	return pred.Probability, err
}

// Healthy returns the error that took the worker down, or nil while it can
// still serve requests.
func (p *PythonClassifier) Healthy() error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.broken
}

// Score sends one request to the worker. Requests are serialized and a caller
// waiting for its turn gives up when ctx ends. Once sent, a request is always
// read back (bounded by the inference timeout) so stdin and stdout stay
// paired; a caller that went away gets ctx's error but the worker survives.
// A timed out or crashed worker is killed and every later call fails.
func (p *PythonClassifier) Score(ctx context.Context, v features.Vector) (Prediction, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return Prediction{}, fmt.Errorf("waiting for python worker: %w", ctx.Err())
	}
	defer func() { <-p.sem }()

	if err := p.Healthy(); err != nil {
		return Prediction{}, err
	}

	req, err := json.Marshal(workerRequest{Features: v.Slice(), Columns: features.Names[:]})
	if err != nil {
		return Prediction{}, fmt.Errorf("failed to marshal request: %w", err)
	}
	if _, err := p.stdin.Write(append(req, '\n')); err != nil {
		return Prediction{}, p.fail(fmt.Errorf("%w: write to python worker: %v", ErrClassifierUnavailable, err))
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	resp, err := p.readResponse(rctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = p.fail(fmt.Errorf("%w: prediction timeout after %v", ErrClassifierUnavailable, p.timeout))
		} else {
			err = p.fail(fmt.Errorf("%w: %v, stderr: %s", ErrClassifierUnavailable, err, p.stderr.String()))
		}
		log.Error().
			Err(err).
			Str("python_path", p.python).
			Str("script_path", p.script).
			Str("model_path", p.model).
			Interface("features", v).
			Msg("Python inference failed")
		return Prediction{}, err
	}
	if ctx.Err() != nil {
		return Prediction{}, fmt.Errorf("prediction abandoned: %w", ctx.Err())
	}
	if resp.Error != "" {
		log.Error().
			Str("python_error", resp.Error).
			Interface("features", v).
			Msg("Python inference returned error")
		return Prediction{}, fmt.Errorf("python inference error: %s", resp.Error)
	}
	if len(resp.Probabilities) != 2 {
		return Prediction{}, fmt.Errorf("expected 2 class probabilities, got %d", len(resp.Probabilities))
	}

	return Prediction{Label: resp.Prediction, Probability: resp.Probabilities[1]}, nil
}

func (p *PythonClassifier) readResponse(ctx context.Context) (workerResponse, error) {
	type result struct {
		line []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := p.stdout.ReadBytes('\n')
		ch <- result{line, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return workerResponse{}, fmt.Errorf("read python worker: %w", res.err)
		}
		var resp workerResponse
		if err := json.Unmarshal(bytes.TrimSpace(res.line), &resp); err != nil {
			return workerResponse{}, fmt.Errorf("failed to parse response: %w, stdout: %s", err, res.line)
		}
		return resp, nil
	case <-ctx.Done():
		p.kill()
		return workerResponse{}, ctx.Err()
	}
}

// fail marks the worker down for good and kills it.
func (p *PythonClassifier) fail(err error) error {
	p.stateMu.Lock()
	p.broken = err
	p.stateMu.Unlock()
	p.kill()
	return err
}

func (p *PythonClassifier) kill() {
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}

// Close stops the worker and removes the embedded script.
func (p *PythonClassifier) Close() error {
	p.sem <- struct{}{}
	defer func() { <-p.sem }()

	if p.stdin != nil {
		p.stdin.Close()
	}
	if p.cmd != nil && p.cmd.Process != nil {
		done := make(chan struct{})
		go func() {
			_ = p.cmd.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			p.kill()
			<-done
		}
	}
	if p.ownsFile {
		os.Remove(p.script)
	}
	p.stateMu.Lock()
	if p.broken == nil {
		p.broken = fmt.Errorf("%w: closed", ErrClassifierUnavailable)
	}
	p.stateMu.Unlock()
	return nil
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// findPython looks for a Python 3 interpreter that can import the runtime the
// format needs, preferring an active or project-local virtualenv.
func findPython(format string) (string, error) {
	probe := "import sys, joblib; print('Python', sys.version)"
	if format == FormatONNX {
		probe = "import sys, onnxruntime; print('Python', sys.version)"
	}
	usable := func(path string) bool {
		out, err := exec.Command(path, "-c", probe).Output()
		return err == nil && strings.Contains(string(out), "Python 3")
	}

	var candidates []string
	if venv := os.Getenv("VIRTUAL_ENV"); venv != "" {
		candidates = append(candidates,
			filepath.Join(venv, "bin", "python3"),
			filepath.Join(venv, "bin", "python"),
			filepath.Join(venv, "Scripts", "python.exe"),
		)
	}
	if execPath, err := os.Executable(); err == nil {
		dir := filepath.Dir(execPath)
		for _, root := range []string{dir, filepath.Dir(dir)} {
			candidates = append(candidates,
				filepath.Join(root, "venv", "bin", "python3"),
				filepath.Join(root, ".venv", "bin", "python3"),
			)
		}
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil && usable(c) {
			log.Info().Str("python_path", c).Msg("Using virtual environment Python")
			return c, nil
		}
	}

	for _, name := range []string{"python3", "python", "python3.12", "python3.11", "python3.10"} {
		if path, err := exec.LookPath(name); err == nil && usable(path) {
			log.Info().Str("python_path", path).Msg("Using system Python")
			return path, nil
		}
	}

	return "", fmt.Errorf("%w: no Python 3 interpreter with %s support found; set PYTHON_PATH", ErrClassifierUnavailable, format)
}

func writeInferenceScript() (string, error) {
	f, err := os.CreateTemp("", "maintenance-inference-*.py")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.WriteString(inferenceScript); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

const inferenceScript = `#!/usr/bin/env python3
"""Resident inference worker for the predictive maintenance service.

Usage: inference.py <model_path> <joblib|onnx>
Writes one ready line, then answers one JSON line per request line.
"""
import json
import sys


def emit(obj):
    sys.stdout.write(json.dumps(obj) + "\n")
    sys.stdout.flush()


def load(model_path, fmt):
    if fmt == "joblib":
        import joblib
        model = joblib.load(model_path)
        names = getattr(model, "feature_names_in_", None)
        names = [str(n) for n in names] if names is not None else None
        return model, names
    if fmt == "onnx":
        import onnxruntime as ort
        return ort.InferenceSession(model_path), None
    raise ValueError("unsupported format: %s" % fmt)


def predict_joblib(model, req):
    try:
        import pandas as pd
        X = pd.DataFrame([req["features"]], columns=req["columns"])
    except ImportError:
        import numpy as np
        X = np.array([req["features"]], dtype=float)
    prediction = int(model.predict(X)[0])
    probabilities = [float(p) for p in model.predict_proba(X)[0]]
    return prediction, probabilities


def predict_onnx(session, req):
    import numpy as np
    X = np.array([req["features"]], dtype=np.float32)
    outputs = session.run(None, {session.get_inputs()[0].name: X})
    prediction = int(np.asarray(outputs[0]).ravel()[0])
    probs = outputs[1][0] if len(outputs) > 1 else outputs[0][0]
    if isinstance(probs, dict):
        probabilities = [float(probs.get(0, 0.0)), float(probs.get(1, 0.0))]
    else:
        probabilities = [float(p) for p in np.asarray(probs).ravel()]
    return prediction, probabilities


def main():
    if len(sys.argv) != 3:
        emit({"error": "usage: inference.py <model_path> <format>"})
        sys.exit(1)
    model_path, fmt = sys.argv[1], sys.argv[2]
    try:
        model, names = load(model_path, fmt)
    except Exception as e:
        emit({"error": "load %s: %s" % (model_path, e)})
        sys.exit(1)
    emit({"ready": True, "features": names})

    predict = predict_joblib if fmt == "joblib" else predict_onnx
    for line in sys.stdin:
        line = line.strip()
        if not line:
            continue
        try:
            prediction, probabilities = predict(model, json.loads(line))
            emit({"prediction": prediction, "probabilities": probabilities})
        except Exception as e:
            emit({"error": str(e)})


if __name__ == "__main__":
    main()
`
