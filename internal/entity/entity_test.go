package entity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cadstore/internal/codec"
	"github.com/roach88/cadstore/internal/model"
)

func TestCapabilities(t *testing.T) {
	for _, e := range []model.Entity{
		NewAnchor(model.Point{}),
		NewWall(model.Point{}, model.Pt(1, 0, 0), 0.2, 2.5),
		NewDoor(model.Point{}, model.Pt(1, 0, 0), 0.9, 2.1),
		NewDimension(model.Point{}, model.Pt(1, 0, 0), 0.5),
	} {
		t.Run(e.Kind(), func(t *testing.T) {
			_, ok := model.AsReferenceable(e)
			assert.True(t, ok)
			_, ok = model.AsRefers(e)
			assert.True(t, ok)
			assert.False(t, e.ID().IsNil())
		})
	}
	_, ok := model.AsMovable(NewDimension(model.Point{}, model.Point{}, 0))
	assert.False(t, ok, "dimensions follow their references and are not movable")
}

func TestAnchorReferenceLifecycle(t *testing.T) {
	pub := NewAnchor(model.Pt(0, 1, 2))
	sub := NewAnchor(model.Point{})

	geom, ok := pub.Feature(0)
	require.True(t, ok)
	i, err := sub.AddReference(geom, model.FeatureID{Object: pub.ID()}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, i)

	refs := model.LiveReferences(sub)
	require.Len(t, refs, 1)
	assert.Equal(t, model.FeatureID{Object: sub.ID(), Index: 0}, refs[0].Owner)
	assert.Equal(t, model.PointKind, refs[0].Kind)

	_, err = sub.AddReference(geom, model.FeatureID{Object: pub.ID()}, nil)
	assert.ErrorIs(t, err, model.ErrOther, "single slot already taken")

	p := model.Pt(0, 1, 2)
	require.NoError(t, sub.SetAssociatedPoint(0, &p))
	assert.Equal(t, p, sub.Position)

	require.NoError(t, sub.SetAssociatedPoint(0, nil))
	assert.Equal(t, p, sub.Position, "unbinding keeps the last value")
	assert.Empty(t, model.LiveReferences(sub))
}

func TestSelfReferenceRejected(t *testing.T) {
	w := NewWall(model.Point{}, model.Pt(4, 0, 0), 0.2, 2.5)
	geom, _ := w.Feature(WallEnd)
	err := w.SetReference(WallStart, geom, model.FeatureID{Object: w.ID(), Index: WallEnd}, nil)
	assert.Error(t, err)
}

func TestSetReferenceOutOfRange(t *testing.T) {
	w := NewWall(model.Point{}, model.Pt(4, 0, 0), 0.2, 2.5)
	a := NewAnchor(model.Point{})
	geom, _ := a.Feature(0)
	assert.Error(t, w.SetReference(WallFace, geom, model.FeatureID{Object: a.ID()}, nil))
	assert.Error(t, w.SetReference(-1, geom, model.FeatureID{Object: a.ID()}, nil))
}

func TestWallFeatures(t *testing.T) {
	w := NewWall(model.Pt(0, 0, 0), model.Pt(4, 0, 0), 0.2, 2.5)
	features := w.Features()
	require.Len(t, features, 4)
	assert.Equal(t, model.PointGeom{P: model.Pt(0, 0, 0)}, features[WallStart])
	assert.Equal(t, model.PointGeom{P: model.Pt(4, 0, 0)}, features[WallEnd])
	assert.Equal(t, model.LineGeom{P1: model.Pt(0, 0, 0), P2: model.Pt(4, 0, 0)}, features[WallCenterLine])
	assert.Equal(t, model.RectGeom{P1: model.Pt(0, 0, 0), P2: model.Pt(4, 0, 0), P3: model.Pt(0, 0, 2.5)}, features[WallFace])

	_, ok := w.Feature(4)
	assert.False(t, ok)
}

func TestWallMesh(t *testing.T) {
	w := NewWall(model.Pt(0, 0, 0), model.Pt(4, 0, 0), 0.2, 3)
	msg, err := w.Update()
	require.NoError(t, err)
	mesh, ok := msg.(model.MeshMsg)
	require.True(t, ok)
	assert.Equal(t, w.ID(), mesh.ID)
	assert.Len(t, mesh.Positions, 8*3)
	assert.Len(t, mesh.Indices, 36)

	// first vertex is start - normal: world (0,-0.1,0) -> graphics (0,0,0.1)
	assert.InDeltaSlice(t, []float64{0, 0, 0.1}, mesh.Positions[:3], 1e-9)
	// top vertices sit at graphics y = height
	assert.InDelta(t, 3.0, mesh.Positions[4*3+1], 1e-9)
	assert.InDelta(t, 4.0, mesh.Metadata["length"], 1e-9)

	temp, err := w.TempRepr()
	require.NoError(t, err)
	assert.Equal(t, true, temp.(model.MeshMsg).Metadata["temp"])
	again, _ := w.Update()
	_, hasTemp := again.(model.MeshMsg).Metadata["temp"]
	assert.False(t, hasTemp)
}

func TestWallAssociatedPoints(t *testing.T) {
	w := NewWall(model.Pt(0, 0, 0), model.Pt(4, 0, 0), 0.2, 3)
	end := model.Pt(5, 5, 0)
	require.NoError(t, w.SetAssociatedPoint(WallEnd, &end))
	assert.Equal(t, end, w.End)
	assert.Error(t, w.SetAssociatedPoint(WallFace, &end))

	w.Translate(model.Pt(1, 1, 0))
	assert.Equal(t, model.Pt(1, 1, 0), w.Start)
	assert.Equal(t, model.Pt(6, 6, 0), w.End)
}

func TestDoorTakesDirectionFromHostLine(t *testing.T) {
	w := NewWall(model.Pt(0, 0, 0), model.Pt(0, 4, 0), 0.2, 3)
	d := NewDoor(model.Pt(0, 2, 0), model.Pt(1, 0, 0), 0.9, 2.1)

	line, _ := w.Feature(WallCenterLine)
	snap := model.Pt(0.3, 1, 0)
	_, err := d.AddReference(line, model.FeatureID{Object: w.ID(), Index: WallCenterLine}, &snap)
	require.NoError(t, err)

	assert.Equal(t, model.Pt(0, 1, 0), d.Dir)
	ref := d.References()[0]
	require.NotNil(t, ref)
	assert.Equal(t, model.TagLine, ref.Kind.Tag)
	assert.InDelta(t, 0.25, ref.Kind.Interp, 1e-9)

	p := ref.Kind.Resolve(line, ref.Snap)
	require.NotNil(t, p)
	require.NoError(t, d.SetAssociatedPoint(DoorPosition, p))
	assert.Equal(t, model.Pt(0, 1, 0), d.Position)

	opening, _ := d.Feature(DoorOpening)
	line2 := opening.(model.LineGeom)
	assert.InDelta(t, 0.55, line2.P1.Y, 1e-9)
	assert.InDelta(t, 1.45, line2.P2.Y, 1e-9)
}

func TestDimensionUpdate(t *testing.T) {
	d := NewDimension(model.Pt(0, 0, 0), model.Pt(3, 4, 0), 0.5)
	msg, err := d.Update()
	require.NoError(t, err)
	other, ok := msg.(model.OtherMsg)
	require.True(t, ok)
	data := other.Data.(map[string]any)
	assert.InDelta(t, 5.0, data["length"], 1e-9)

	length, err := d.Prop("length")
	require.NoError(t, err)
	assert.InDelta(t, 5.0, length, 1e-9)
}

func TestSetProps(t *testing.T) {
	w := NewWall(model.Pt(0, 0, 0), model.Pt(4, 0, 0), 0.2, 3)

	require.NoError(t, w.SetProps(map[string]any{"width": 0.3, "name": "north", "bogus": 1}))
	assert.Equal(t, 0.3, w.Width)
	assert.Equal(t, "north", w.Name)

	require.NoError(t, w.SetProps(map[string]any{"end": []any{1.0, 2.0, 3.0}}))
	assert.Equal(t, model.Pt(1, 2, 3), w.End)

	require.NoError(t, w.SetProps(map[string]any{"start": map[string]any{"x": 1.0, "y": json.Number("2")}}))
	assert.Equal(t, model.Pt(1, 2, 0), w.Start)

	err := w.SetProps(map[string]any{"colour": "red"})
	assert.ErrorIs(t, err, model.ErrPropertyNotFound)

	err = w.SetProps(map[string]any{"width": -1.0})
	assert.Error(t, err)
	assert.Equal(t, 0.3, w.Width)

	_, err = w.Prop("colour")
	assert.ErrorIs(t, err, model.ErrPropertyNotFound)
}

func TestCloneIsDeep(t *testing.T) {
	a := NewAnchor(model.Point{})
	w := NewWall(model.Pt(0, 0, 0), model.Pt(4, 0, 0), 0.2, 3)
	geom, _ := a.Feature(0)
	snap := model.Pt(0, 0, 0)
	require.NoError(t, w.SetReference(WallStart, geom, model.FeatureID{Object: a.ID()}, &snap))

	c := w.Clone().(*Wall)
	c.Refs[0].Snap.X = 99
	c.Start = model.Pt(9, 9, 9)
	assert.Equal(t, 0.0, w.Refs[0].Snap.X)
	assert.Equal(t, model.Pt(0, 0, 0), w.Start)
}

func TestSetIDRebindsOwners(t *testing.T) {
	a := NewAnchor(model.Point{})
	w := NewWall(model.Pt(0, 0, 0), model.Pt(4, 0, 0), 0.2, 3)
	geom, _ := a.Feature(0)
	require.NoError(t, w.SetReference(WallEnd, geom, model.FeatureID{Object: a.ID()}, nil))

	id := model.NewObjectID()
	w.SetID(id)
	assert.Equal(t, model.FeatureID{Object: id, Index: WallEnd}, w.Refs[WallEnd].Owner)
}

func TestDocumentRoundTrip(t *testing.T) {
	reg := Registry()
	a := NewAnchor(model.Pt(0, 1, 2))
	a.Name = "origin"
	w := NewWall(model.Pt(0, 0, 0), model.Pt(4, 0, 0), 0.2, 3)
	geom, _ := a.Feature(0)
	require.NoError(t, w.SetReference(WallStart, geom, model.FeatureID{Object: a.ID()}, nil))
	d := NewDoor(model.Pt(2, 0, 0), model.Pt(1, 0, 0), 0.9, 2.1)
	dim := NewDimension(model.Pt(0, 0, 0), model.Pt(4, 0, 0), 0.5)

	data, err := codec.EncodeDocument([]model.Entity{w, d, dim, a})
	require.NoError(t, err)

	loaded, err := reg.DecodeDocument(data)
	require.NoError(t, err)
	require.Len(t, loaded, 4)

	again, err := codec.EncodeDocument(loaded)
	require.NoError(t, err)
	assert.Equal(t, string(data), string(again))

	byID := map[model.ObjectID]model.Entity{}
	for _, e := range loaded {
		byID[e.ID()] = e
	}
	lw := byID[w.ID()].(*Wall)
	assert.Equal(t, w.Start, lw.Start)
	require.Len(t, lw.Refs, 2)
	assert.Equal(t, a.ID(), lw.Refs[WallStart].Other.Object)
	assert.Nil(t, lw.Refs[WallEnd])
	assert.Equal(t, "origin", byID[a.ID()].(*Anchor).Name)
}

func TestDecodedEntityWithoutSlots(t *testing.T) {
	reg := Registry()
	e, err := reg.UnmarshalEntity([]byte(`{"kind":"anchor","entity":{"id":"0190a0b0-0000-7000-8000-000000000001","position":{"x":1,"y":2,"z":3}}}`))
	require.NoError(t, err)
	a := e.(*Anchor)
	assert.Nil(t, a.References())

	pub := NewAnchor(model.Point{})
	geom, _ := pub.Feature(0)
	_, err = a.AddReference(geom, model.FeatureID{Object: pub.ID()}, nil)
	require.NoError(t, err)
	assert.Len(t, a.References(), 1)
}
