package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/cadstore/internal/codec"
	"github.com/roach88/cadstore/internal/entity"
	"github.com/roach88/cadstore/internal/model"
	"github.com/roach88/cadstore/internal/testutil"
)

// houseEntities returns a wall with a door hosted on its centre line.
func houseEntities(t *testing.T) []model.Entity {
	t.Helper()
	wall := entity.NewWall(model.Pt(0, 0, 0), model.Pt(4, 0, 0), 0.2, 2.5)
	wall.SetID(testutil.ObjectID(1))
	door := entity.NewDoor(model.Pt(2, 0, 0), model.Pt(1, 0, 0), 0.9, 2.1)
	door.SetID(testutil.ObjectID(2))

	line, ok := wall.Feature(entity.WallCenterLine)
	require.True(t, ok)
	snap := model.Pt(2, 0, 0)
	require.NoError(t, door.SetReference(entity.DoorPosition, line,
		model.FeatureID{Object: wall.ID(), Index: entity.WallCenterLine}, &snap))
	return []model.Entity{door, wall}
}

// cyclicEntities returns two anchors pinned to each other.
func cyclicEntities(t *testing.T) []model.Entity {
	t.Helper()
	a := entity.NewAnchor(model.Pt(1, 1, 0))
	a.SetID(testutil.ObjectID(10))
	b := entity.NewAnchor(model.Pt(1, 1, 0))
	b.SetID(testutil.ObjectID(11))

	pa, _ := a.Feature(0)
	pb, _ := b.Feature(0)
	_, err := a.AddReference(pb, model.FeatureID{Object: b.ID()}, nil)
	require.NoError(t, err)
	_, err = b.AddReference(pa, model.FeatureID{Object: a.ID()}, nil)
	require.NoError(t, err)
	return []model.Entity{a, b}
}

func writeProject(t *testing.T, name string, ents []model.Entity) string {
	t.Helper()
	data, err := codec.EncodeDocument(ents)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}
