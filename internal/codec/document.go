package codec

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/roach88/cadstore/internal/model"
)

// EncodeDocument writes entities as a canonical JSON array sorted by id.
func EncodeDocument(entities []model.Entity) ([]byte, error) {
	sorted := slices.Clone(entities)
	slices.SortFunc(sorted, func(a, b model.Entity) int {
		return a.ID().Compare(b.ID())
	})
	envs := make([]json.RawMessage, 0, len(sorted))
	for _, e := range sorted {
		raw, err := MarshalEntity(e)
		if err != nil {
			return nil, err
		}
		envs = append(envs, raw)
	}
	raw, err := json.Marshal(envs)
	if err != nil {
		return nil, model.Other(err)
	}
	out, err := CanonicalBytes(raw)
	if err != nil {
		return nil, model.Other(err)
	}
	return out, nil
}

// DecodeDocument reads a document. It is all-or-nothing: any bad entry
// or duplicate id fails the whole load with an OTHER error.
func (r *Registry) DecodeDocument(data []byte) ([]model.Entity, error) {
	var envs []json.RawMessage
	if err := json.Unmarshal(data, &envs); err != nil {
		return nil, model.Other(fmt.Errorf("document: %w", err))
	}
	out := make([]model.Entity, 0, len(envs))
	seen := make(map[model.ObjectID]struct{}, len(envs))
	for i, raw := range envs {
		e, err := r.UnmarshalEntity(raw)
		if err != nil {
			return nil, fmt.Errorf("document[%d]: %w", i, err)
		}
		if _, dup := seen[e.ID()]; dup {
			return nil, model.Otherf("document[%d]: duplicate id %s", i, e.ID())
		}
		seen[e.ID()] = struct{}{}
		out = append(out, e)
	}
	return out, nil
}
