// Package command dispatches client commands to the registry and engines.
//
// A command is a method name plus a positional JSON argument list. The
// calling user comes from the transport session, never from the arguments.
// Object-level methods act on the caller's current file.
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/cadstore/internal/codec"
	"github.com/roach88/cadstore/internal/engine"
	"github.com/roach88/cadstore/internal/entity"
	"github.com/roach88/cadstore/internal/model"
	"github.com/roach88/cadstore/internal/registry"
)

// Request is one client command.
type Request struct {
	ID     string            `json:"id,omitempty"`
	User   model.UserID      `json:"-"`
	Method string            `json:"method"`
	Args   []json.RawMessage `json:"args"`
}

// ErrorBody is the wire form of a failed command.
type ErrorBody struct {
	Code    model.ErrorCode `json:"code"`
	Message string          `json:"message"`
}

// Response answers one Request.
type Response struct {
	ID     string     `json:"id,omitempty"`
	Result any        `json:"result,omitempty"`
	Error  *ErrorBody `json:"error,omitempty"`
}

// Observer receives per-method timings.
type Observer interface {
	Command(method string, d time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) Command(string, time.Duration, error) {}

type handler func(ctx context.Context, c *call) (any, error)

// Dispatcher routes requests by method name.
type Dispatcher struct {
	registry *registry.Registry
	codec    *codec.Registry
	log      *slog.Logger
	observer Observer
	handlers map[string]handler
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithCodec decodes add_object entities with r.
func WithCodec(r *codec.Registry) Option {
	return func(d *Dispatcher) { d.codec = r }
}

// WithLogger logs failed commands to l.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// WithObserver reports command timings to o.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// New returns a dispatcher over reg.
func New(reg *registry.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: reg,
		codec:    entity.Registry(),
		log:      slog.Default(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(d)
	}
	d.handlers = d.routes()
	return d
}

// Methods lists the supported method names in order.
func (d *Dispatcher) Methods() []string {
	out := make([]string, 0, len(d.handlers))
	for m := range d.handlers {
		out = append(out, m)
	}
	slices.Sort(out)
	return out
}

// Dispatch runs req and returns its result.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (result any, err error) {
	start := time.Now()
	defer func() {
		d.observer.Command(req.Method, time.Since(start), err)
		if err != nil {
			d.log.Debug("command failed", "method", req.Method, "user", req.User, "code", model.CodeOf(err), "error", err)
		}
	}()
	h, ok := d.handlers[req.Method]
	if !ok {
		return nil, model.Otherf("unknown method %q", req.Method)
	}
	return h(ctx, &call{d: d, user: req.User, method: req.Method, args: req.Args})
}

// Handle runs req and wraps the outcome for the wire.
func (d *Dispatcher) Handle(ctx context.Context, req Request) Response {
	result, err := d.Dispatch(ctx, req)
	if err != nil {
		return Response{ID: req.ID, Error: &ErrorBody{Code: model.CodeOf(err), Message: err.Error()}}
	}
	return Response{ID: req.ID, Result: result}
}

// call carries one request through its handler.
type call struct {
	d      *Dispatcher
	user   model.UserID
	method string
	args   []json.RawMessage
}

// want fails unless exactly n arguments were passed.
func (c *call) want(n int) error {
	if len(c.args) != n {
		return model.Otherf("%s: expected %d arguments, got %d", c.method, n, len(c.args))
	}
	return nil
}

// arg decodes argument i into dst.
func (c *call) arg(i int, dst any) error {
	if i >= len(c.args) {
		return model.Otherf("%s: missing argument %d", c.method, i)
	}
	if err := json.Unmarshal(c.args[i], dst); err != nil {
		return model.Other(fmt.Errorf("%s: argument %d: %w", c.method, i, err))
	}
	return nil
}

// decode decodes every argument into dsts, which must match in count.
func (c *call) decode(dsts ...any) error {
	if err := c.want(len(dsts)); err != nil {
		return err
	}
	for i, dst := range dsts {
		if err := c.arg(i, dst); err != nil {
			return err
		}
	}
	return nil
}

// engine returns the caller's current engine.
func (c *call) engine() (*engine.Engine, error) {
	_, e, err := c.d.registry.Current(c.user)
	return e, err
}

// file returns the caller's current path.
func (c *call) file() (string, error) {
	path, _, err := c.d.registry.Current(c.user)
	return path, err
}
