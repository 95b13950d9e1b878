package codec

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/cadstore/internal/model"
)

// envelope is the self-describing form of one entity.
type envelope struct {
	Kind   string          `json:"kind"`
	Entity json.RawMessage `json:"entity"`
}

// MarshalEntity encodes e with its kind discriminator.
func MarshalEntity(e model.Entity) ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, model.Other(fmt.Errorf("marshal %s %s: %w", e.Kind(), e.ID(), err))
	}
	return json.Marshal(envelope{Kind: e.Kind(), Entity: body})
}

// UnmarshalEntity decodes an envelope produced by MarshalEntity.
func (r *Registry) UnmarshalEntity(data []byte) (model.Entity, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, model.Other(fmt.Errorf("entity envelope: %w", err))
	}
	if env.Kind == "" {
		return nil, model.Otherf("entity envelope: missing kind")
	}
	e, err := r.New(env.Kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(env.Entity, e); err != nil {
		return nil, model.Other(fmt.Errorf("decode %s: %w", env.Kind, err))
	}
	if e.ID().IsNil() {
		return nil, model.Otherf("decode %s: nil id", env.Kind)
	}
	return e, nil
}
