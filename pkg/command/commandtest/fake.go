// Package commandtest provides a scripted command.Runner for tests.
package commandtest

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/windowsadmins/wslbootstrap/pkg/command"
)

// Call records one Run invocation.
type Call struct {
	Name string
	Args []string
}

// String renders the call as a command line.
func (c Call) String() string {
	return command.Line(c.Name, c.Args...)
}

// Response is what the fake returns for a matching command line.
type Response struct {
	Output   string
	ExitCode int
	Err      error
}

// Runner answers Run calls from a table keyed by command-line prefix.
// Unmatched calls succeed with empty output.
type Runner struct {
	mu        sync.Mutex
	responses []prefixed
	Paths     map[string]string
	Calls     []Call
}

type prefixed struct {
	prefix string
	resp   Response
}

// New returns an empty fake runner.
func New() *Runner {
	return &Runner{Paths: make(map[string]string)}
}

// On registers resp for every call whose command line starts with prefix.
// Later registrations take precedence.
func (r *Runner) On(prefix string, resp Response) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses = append([]prefixed{{prefix: prefix, resp: resp}}, r.responses...)
	return r
}

// Run records the call and returns the scripted response.
func (r *Runner) Run(_ context.Context, name string, args ...string) (command.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	call := Call{Name: name, Args: append([]string(nil), args...)}
	r.Calls = append(r.Calls, call)

	line := call.String()
	for _, p := range r.responses {
		if !strings.HasPrefix(line, p.prefix) {
			continue
		}
		res := command.Result{Output: []byte(p.resp.Output), ExitCode: p.resp.ExitCode}
		if p.resp.Err != nil {
			return res, p.resp.Err
		}
		if p.resp.ExitCode != 0 {
			return res, &command.ExitError{Name: name, Code: p.resp.ExitCode, Output: p.resp.Output}
		}
		return res, nil
	}
	return command.Result{}, nil
}

// LookPath resolves file from Paths.
func (r *Runner) LookPath(file string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.Paths[file]; ok {
		return p, nil
	}
	return "", fmt.Errorf("%s: %w", file, exec.ErrNotFound)
}

// CallsTo returns the recorded calls whose command line starts with prefix.
func (r *Runner) CallsTo(prefix string) []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Call
	for _, c := range r.Calls {
		if strings.HasPrefix(c.String(), prefix) {
			out = append(out, c)
		}
	}
	return out
}
