package entity

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/cadstore/internal/model"
)

// toFloat accepts the numeric forms produced by encoding/json and YAML.
func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}

// toPoint accepts a model.Point, an {x,y,z} object or an [x,y,z] array.
func toPoint(v any) (model.Point, error) {
	switch p := v.(type) {
	case model.Point:
		return p, nil
	case map[string]any:
		var out model.Point
		for key, dst := range map[string]*float64{"x": &out.X, "y": &out.Y, "z": &out.Z} {
			raw, ok := p[key]
			if !ok {
				continue
			}
			f, err := toFloat(raw)
			if err != nil {
				return model.Point{}, fmt.Errorf("point %s: %w", key, err)
			}
			*dst = f
		}
		return out, nil
	case []any:
		if len(p) != 3 {
			return model.Point{}, fmt.Errorf("point needs 3 coordinates, got %d", len(p))
		}
		var c [3]float64
		for i, raw := range p {
			f, err := toFloat(raw)
			if err != nil {
				return model.Point{}, fmt.Errorf("point[%d]: %w", i, err)
			}
			c[i] = f
		}
		return model.Pt(c[0], c[1], c[2]), nil
	default:
		return model.Point{}, fmt.Errorf("expected point, got %T", v)
	}
}

// setter applies one property value.
type setter func(v any) error

// applyProps runs the setters for every recognised key. It returns
// PropertyNotFound when no key is recognised.
func applyProps(kind string, props map[string]any, setters map[string]setter) error {
	matched := 0
	for name, v := range props {
		set, ok := setters[name]
		if !ok {
			continue
		}
		if err := set(v); err != nil {
			return fmt.Errorf("%s.%s: %w", kind, name, err)
		}
		matched++
	}
	if matched == 0 {
		keys := make([]string, 0, len(props))
		for k := range props {
			keys = append(keys, k)
		}
		return model.PropertyNotFound(kind, keys...)
	}
	return nil
}

func floatSetter(dst *float64, positive bool) setter {
	return func(v any) error {
		f, err := toFloat(v)
		if err != nil {
			return err
		}
		if positive && f <= 0 {
			return fmt.Errorf("must be positive, got %g", f)
		}
		*dst = f
		return nil
	}
}

func pointSetter(dst *model.Point) setter {
	return func(v any) error {
		p, err := toPoint(v)
		if err != nil {
			return err
		}
		*dst = p
		return nil
	}
}

func stringSetter(dst *string) setter {
	return func(v any) error {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", v)
		}
		*dst = s
		return nil
	}
}
