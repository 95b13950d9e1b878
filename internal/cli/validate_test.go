package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cadstore/internal/codec"
	"github.com/roach88/cadstore/internal/persist"
)

func executeValidate(t *testing.T, format, path string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{path})
	err := cmd.Execute()
	return buf.String(), err
}

func TestValidate_ValidProject(t *testing.T) {
	path := writeProject(t, "house.json", houseEntities(t))

	out, err := executeValidate(t, "text", path)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ "+path+" is valid")
	assert.Contains(t, out, "objects: 2 door=1 wall=1")
	assert.Contains(t, out, "edges:   1")
}

func TestValidate_ValidProjectJSON(t *testing.T) {
	ents := houseEntities(t)
	path := writeProject(t, "house.json", ents)
	doc, err := codec.EncodeDocument(ents)
	require.NoError(t, err)

	out, err := executeValidate(t, "json", path)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 2, resp.Data.Objects)
	assert.Equal(t, map[string]int{"door": 1, "wall": 1}, resp.Data.Kinds)
	assert.Equal(t, codec.Hash(doc), resp.Data.Hash)
}

func TestValidate_DanglingReference(t *testing.T) {
	// Drop the wall; the door still points at it.
	ents := houseEntities(t)
	path := writeProject(t, "orphan.json", ents[:1])

	out, err := executeValidate(t, "text", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ "+path+" has broken references")
	assert.Contains(t, out, "dangling:")
}

func TestValidate_Cycle(t *testing.T) {
	path := writeProject(t, "cycle.json", cyclicEntities(t))

	out, err := executeValidate(t, "json", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Data ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.False(t, resp.Data.Valid)
	assert.Len(t, resp.Data.Cycles, 2)
	assert.Empty(t, resp.Data.Dangling)
}

func TestValidate_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.json")

	out, err := executeValidate(t, "json", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "FILE_NOT_FOUND", resp.Error.Code)
}

func TestValidate_SQLiteProject(t *testing.T) {
	ents := houseEntities(t)
	doc, err := codec.EncodeDocument(ents)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "projects.db") + "#house"
	router := persist.NewRouter()
	require.NoError(t, router.Save(t.Context(), path, doc))
	require.NoError(t, router.Close())

	out, err := executeValidate(t, "text", path)
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")
}

func TestValidate_BadConfig(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "text", Config: filepath.Join(t.TempDir(), "missing.yaml")})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"house.json"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
