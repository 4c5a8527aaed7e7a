// Package runnertest provides a recording command runner for tests.
package runnertest

import (
	"context"
	"strings"
	"sync"

	"github.com/openfroyo/devprovision/pkg/runner"
)

// Call is one recorded invocation.
type Call struct {
	Argv []string
	Opts runner.Options
}

// String returns the argv joined by spaces, prefixed with "sudo " when elevated.
func (c Call) String() string {
	s := strings.Join(c.Argv, " ")
	if c.Opts.Elevated {
		return "sudo " + s
	}
	return s
}

// Response scripts the outcome of a matching invocation.
type Response struct {
	Stdout   string
	ExitCode int
}

// Recorder records every invocation and answers from scripted responses.
// Unscripted commands succeed with empty output.
type Recorder struct {
	mu        sync.Mutex
	calls     []Call
	responses map[string][]Response
}

// New creates an empty Recorder.
func New() *Recorder {
	return &Recorder{responses: make(map[string][]Response)}
}

// On queues responses for commands whose joined argv has the given prefix.
// Responses are consumed in order; the last one repeats.
func (r *Recorder) On(prefix string, responses ...Response) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[prefix] = append(r.responses[prefix], responses...)
	return r
}

// FailTimes makes the first n matching invocations exit with status 1.
func (r *Recorder) FailTimes(prefix string, n int) *Recorder {
	responses := make([]Response, 0, n+1)
	for i := 0; i < n; i++ {
		responses = append(responses, Response{ExitCode: 1})
	}
	responses = append(responses, Response{})
	return r.On(prefix, responses...)
}

// Run implements the command runner contract.
func (r *Recorder) Run(_ context.Context, argv []string, opts runner.Options) (*runner.Output, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, Call{Argv: append([]string(nil), argv...), Opts: opts})

	resp := r.next(strings.Join(argv, " "))
	out := &runner.Output{Argv: argv, Stdout: resp.Stdout, ExitCode: resp.ExitCode}
	if resp.ExitCode != 0 {
		return out, &runner.ExternalCommandError{Argv: argv, ExitCode: resp.ExitCode}
	}
	return out, nil
}

func (r *Recorder) next(joined string) Response {
	var (
		best    string
		matched bool
	)
	for prefix := range r.responses {
		if strings.HasPrefix(joined, prefix) && len(prefix) >= len(best) {
			best, matched = prefix, true
		}
	}
	if !matched {
		return Response{}
	}

	queue := r.responses[best]
	if len(queue) == 0 {
		return Response{}
	}
	resp := queue[0]
	if len(queue) > 1 {
		r.responses[best] = queue[1:]
	}
	return resp
}

// Calls returns a copy of the recorded invocations.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Commands returns the recorded invocations as strings.
func (r *Recorder) Commands() []string {
	calls := r.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.String()
	}
	return out
}

// Count returns how many recorded invocations start with prefix.
func (r *Recorder) Count(prefix string) int {
	n := 0
	for _, c := range r.Calls() {
		if strings.HasPrefix(strings.Join(c.Argv, " "), prefix) {
			n++
		}
	}
	return n
}
