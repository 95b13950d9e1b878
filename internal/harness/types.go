package harness

// Delivery is one update message a user received during a step.
type Delivery struct {
	User    string `json:"user"`
	File    string `json:"file"`
	Type    string `json:"type"`
	Object  string `json:"object,omitempty"`
	Message any    `json:"message"`
}

// TraceEvent records one executed step.
type TraceEvent struct {
	Step       int        `json:"step"`
	User       string     `json:"user"`
	Method     string     `json:"method"`
	Args       any        `json:"args"`
	Result     any        `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
	Deliveries []Delivery `json:"deliveries,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates that every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains every step in order with its deliveries.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Documents holds the document of every file still open at the end of
	// the run, keyed by path, with ids shown as aliases.
	Documents map[string]any `json:"documents,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:      true,
		Trace:     []TraceEvent{},
		Errors:    []string{},
		Documents: make(map[string]any),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Deliveries returns every delivery in trace order.
func (r *Result) Deliveries() []Delivery {
	var out []Delivery
	for _, ev := range r.Trace {
		out = append(out, ev.Deliveries...)
	}
	return out
}
