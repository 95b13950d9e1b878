package harness

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/cadstore/internal/model"
)

// aliasSpace seeds the name-based UUIDs behind $aliases.
var aliasSpace = uuid.MustParse("5b0c2f0e-8d4a-4f6e-9a57-3c1d2e4f6a80")

// AliasID returns the id a $name alias resolves to.
func AliasID(name string) uuid.UUID {
	return uuid.NewSHA1(aliasSpace, []byte(name))
}

// aliases resolves $names to ids and ids back to $names.
type aliases struct {
	mu     sync.Mutex
	byID   map[string]string
	copies int
}

func newAliases() *aliases {
	return &aliases{byID: make(map[string]string)}
}

func (a *aliases) id(name string) uuid.UUID {
	u := AliasID(name)
	a.mu.Lock()
	a.byID[u.String()] = "$" + name
	a.mu.Unlock()
	return u
}

func (a *aliases) user(name string) model.UserID { return model.UserID(a.id(name)) }

func (a *aliases) object(ref string) model.ObjectID {
	return model.ObjectID(a.id(strings.TrimPrefix(ref, "$")))
}

// name returns the alias of a canonical id string, or s itself.
func (a *aliases) name(s string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n, ok := a.byID[s]; ok {
		return n
	}
	return s
}

// NewObjectID issues $copy1, $copy2, ... for objects the engine copies.
func (a *aliases) NewObjectID() model.ObjectID {
	a.mu.Lock()
	a.copies++
	n := a.copies
	a.mu.Unlock()
	return model.ObjectID(a.id(fmt.Sprintf("copy%d", n)))
}

// resolve replaces $name strings with their ids throughout v.
func (a *aliases) resolve(v any) any {
	switch x := v.(type) {
	case string:
		if len(x) > 1 && x[0] == '$' {
			return a.id(x[1:]).String()
		}
		return x
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = a.resolve(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = a.resolve(e)
		}
		return out
	default:
		return v
	}
}

// unresolve replaces known id strings with their $names throughout v.
func (a *aliases) unresolve(v any) any {
	switch x := v.(type) {
	case string:
		return a.name(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = a.unresolve(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = a.unresolve(e)
		}
		return out
	default:
		return v
	}
}

// generic converts v to its JSON data model (maps, slices, float64).
func generic(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
