// Package worker models the edge-compute host runtime: the execution
// environment handed to a handler, the request-scoped context with its
// run-after-response scheduling primitive, and an HTTP host that dispatches
// inbound requests to a single handler.
package worker

import (
	"context"
	"net/http"
	"net/url"
	"sync"
)

// Env is the execution environment supplied by the host. It carries the
// diagnostic console and any configured environment bindings.
type Env struct {
	console Console
	vars    map[string]string
}

// NewEnv creates an environment wired to the given console.
func NewEnv(console Console) *Env {
	return &Env{console: console}
}

// WithVar returns the environment with a named binding set.
func (e *Env) WithVar(name, value string) *Env {
	if e.vars == nil {
		e.vars = make(map[string]string)
	}
	e.vars[name] = value
	return e
}

// Console returns the host's diagnostic log channel.
func (e *Env) Console() Console {
	return e.console
}

// Var looks up an environment binding.
func (e *Env) Var(name string) (string, bool) {
	value, ok := e.vars[name]
	return value, ok
}

// Context is the request-scoped host context. Its only capability is
// scheduling work to run after the response has been produced.
type Context struct {
	mu    sync.Mutex
	tasks []func()
}

// WaitUntil schedules task to run after the handler's response is written.
// The host guarantees the task runs to completion even though the handler
// has already returned; the caller receives no acknowledgment and no error
// signal. Tasks run in scheduling order.
func (c *Context) WaitUntil(task func()) {
	if task == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks = append(c.tasks, task)
}

// drain removes and returns the scheduled tasks. Called by the host once
// the response is on the wire.
func (c *Context) drain() []func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	tasks := c.tasks
	c.tasks = nil
	return tasks
}

// Request is the inbound HTTP-style request handed to the handler.
type Request struct {
	Method string
	URL    *url.URL
	Header http.Header
	Body   []byte
	RayID  string // Host-assigned id for this request.
}

// Response is the handler's reply.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// OK builds a 200 response with a text body.
func OK(body string) *Response {
	return Text(http.StatusOK, body)
}

// Text builds a response with the given status and text body.
func Text(status int, body string) *Response {
	header := make(http.Header)
	header.Set("Content-Type", "text/plain; charset=utf-8")
	return &Response{
		Status: status,
		Header: header,
		Body:   []byte(body),
	}
}

// HandlerFunc is the asynchronous dispatch entry point invoked once per
// inbound request. ctx is the request's context; wctx outlives it for
// anything scheduled through WaitUntil.
type HandlerFunc func(ctx context.Context, req *Request, env *Env, wctx *Context) (*Response, error)
