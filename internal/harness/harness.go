package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/roach88/cadstore/internal/command"
	"github.com/roach88/cadstore/internal/engine"
	"github.com/roach88/cadstore/internal/model"
	"github.com/roach88/cadstore/internal/outbox"
	"github.com/roach88/cadstore/internal/persist"
	"github.com/roach88/cadstore/internal/registry"
)

// DefaultMailboxCapacity bounds each user's mailbox during a run.
const DefaultMailboxCapacity = 4096

// Option configures a run.
type Option func(*options)

type options struct {
	storage  engine.Storage
	logger   *slog.Logger
	capacity int
}

// WithStorage runs against st instead of a fresh in-memory backend.
func WithStorage(st engine.Storage) Option {
	return func(o *options) { o.storage = st }
}

// WithLogger logs engine and registry activity to l. Runs are silent by
// default.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMailboxCapacity bounds each user's mailbox.
func WithMailboxCapacity(n int) Option {
	return func(o *options) { o.capacity = n }
}

// Harness executes one scenario.
type Harness struct {
	scenario   *Scenario
	aliases    *aliases
	outbox     *outbox.Outbox
	registry   *registry.Registry
	dispatcher *command.Dispatcher
}

// Run executes a scenario against a fresh registry and returns the result.
//
// Execution flow:
//  1. Register every user's mailbox
//  2. Execute steps, checking expect clauses and draining mailboxes
//  3. Capture the document of every open file
//  4. Evaluate assertions
//
// The returned error reports a broken run (bad arguments, encoding
// failures). Failed expectations are reported in Result.Errors.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		capacity: DefaultMailboxCapacity,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.storage == nil {
		o.storage = persist.NewMemory()
	}

	a := newAliases()
	out := outbox.New(o.capacity)
	for _, u := range scenario.Users {
		out.Register(a.user(u))
	}
	reg := registry.New(out, o.storage,
		registry.WithLogger(o.logger),
		registry.WithEngineOptions(
			engine.WithWorkers(1),
			engine.WithIDs(a),
			engine.WithLogger(o.logger),
		),
	)
	defer reg.Close()

	h := &Harness{
		scenario:   scenario,
		aliases:    a,
		outbox:     out,
		registry:   reg,
		dispatcher: command.New(reg, command.WithLogger(o.logger)),
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Method, err)
		}
	}

	for _, path := range reg.Files() {
		e, err := reg.Engine(path)
		if err != nil {
			return nil, err
		}
		doc, err := e.Document()
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", path, err)
		}
		var g any
		if err := json.Unmarshal(doc, &g); err != nil {
			return nil, fmt.Errorf("document %s: %w", path, err)
		}
		result.Documents[path] = a.unresolve(g)
	}

	for _, msg := range h.evaluate(result) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) error {
	user := h.aliases.user(step.User)
	args := step.Args
	// Read queries without an id get a derived one so traces repeat.
	if step.Method == "get_object_data" && len(args) == 2 {
		args = append(append([]any{}, args...), fmt.Sprintf("$query%d", i))
	}

	raw := make([]json.RawMessage, len(args))
	for j, arg := range args {
		data, err := json.Marshal(h.aliases.resolve(arg))
		if err != nil {
			return fmt.Errorf("argument %d: %w", j, err)
		}
		raw[j] = data
	}

	res, err := h.dispatcher.Dispatch(ctx, command.Request{
		ID:     strconv.Itoa(i),
		User:   user,
		Method: step.Method,
		Args:   raw,
	})

	shownArgs, genErr := generic(args)
	if genErr != nil {
		return fmt.Errorf("arguments: %w", genErr)
	}
	ev := TraceEvent{Step: i, User: step.User, Method: step.Method, Args: shownArgs}
	if err != nil {
		ev.Error = string(model.CodeOf(err))
	} else if res != nil {
		g, genErr := generic(res)
		if genErr != nil {
			return fmt.Errorf("result: %w", genErr)
		}
		ev.Result = h.aliases.unresolve(g)
	}

	deliveries, dErr := h.drain()
	if dErr != nil {
		return dErr
	}
	ev.Deliveries = deliveries
	result.Trace = append(result.Trace, ev)

	if msg := h.checkExpect(i, step, ev, err); msg != "" {
		result.AddError(msg)
	}
	return nil
}

func (h *Harness) checkExpect(i int, step Step, ev TraceEvent, err error) string {
	want := step.Expect
	if want == nil || want.Error == "" {
		if err != nil {
			return fmt.Sprintf("step %d (%s by %s): unexpected error: %v", i, step.Method, step.User, err)
		}
	} else if ev.Error != want.Error {
		return fmt.Sprintf("step %d (%s by %s): expected error %s, got %q", i, step.Method, step.User, want.Error, ev.Error)
	}
	if want != nil && want.Result != nil {
		expected, genErr := generic(want.Result)
		if genErr != nil {
			return fmt.Sprintf("step %d: expected result: %v", i, genErr)
		}
		if !matchSubset(ev.Result, expected) {
			return fmt.Sprintf("step %d (%s by %s): expected result %v, got %v", i, step.Method, step.User, expected, ev.Result)
		}
	}
	return ""
}

// drain empties every user's mailbox in declaration order.
func (h *Harness) drain() ([]Delivery, error) {
	var out []Delivery
	for _, name := range h.scenario.Users {
		box, err := h.outbox.Mailbox(h.aliases.user(name))
		if err != nil {
			return nil, err
		}
		for _, env := range box.Drain() {
			d, err := h.delivery(name, env)
			if err != nil {
				return nil, err
			}
			out = append(out, d)
		}
	}
	return out, nil
}

func (h *Harness) delivery(user string, env outbox.Envelope) (Delivery, error) {
	raw, err := model.MarshalMessage(env.Message)
	if err != nil {
		return Delivery{}, fmt.Errorf("encode message: %w", err)
	}
	var msg any
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Delivery{}, err
	}
	d := Delivery{
		User:    user,
		File:    env.File,
		Type:    string(env.Message.Type()),
		Message: h.aliases.unresolve(msg),
	}
	if id, ok := messageObject(env.Message); ok {
		d.Object = h.aliases.name(id.String())
	}
	return d, nil
}

// messageObject returns the object a message renders or removes.
func messageObject(msg model.UpdateMessage) (model.ObjectID, bool) {
	switch m := msg.(type) {
	case model.MeshMsg:
		return m.ID, true
	case model.DeleteMsg:
		return m.ID, true
	case model.OtherMsg:
		if data, ok := m.Data.(map[string]any); ok {
			id, ok := data["id"].(model.ObjectID)
			return id, ok
		}
	}
	return model.ObjectID{}, false
}

// RunFile loads and runs the scenario at path.
func RunFile(ctx context.Context, path string, opts ...Option) (*Scenario, *Result, error) {
	scenario, err := LoadScenario(path)
	if err != nil {
		return nil, nil, err
	}
	result, err := Run(ctx, scenario, opts...)
	if err != nil {
		return scenario, nil, err
	}
	return scenario, result, nil
}
