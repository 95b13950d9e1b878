package entity

import (
	"github.com/roach88/cadstore/internal/codec"
	"github.com/roach88/cadstore/internal/model"
)

// Register adds every entity kind in this package to r.
func Register(r *codec.Registry) error {
	factories := []struct {
		kind string
		f    codec.Factory
	}{
		{KindAnchor, func() model.Entity { return &Anchor{} }},
		{KindWall, func() model.Entity { return &Wall{} }},
		{KindDoor, func() model.Entity { return &Door{} }},
		{KindDimension, func() model.Entity { return &Dimension{} }},
	}
	for _, k := range factories {
		if err := r.Register(k.kind, k.f); err != nil {
			return err
		}
	}
	return nil
}

// Registry returns a registry holding every entity kind.
func Registry() *codec.Registry {
	r := codec.NewRegistry()
	if err := Register(r); err != nil {
		panic(err)
	}
	return r
}
