package model

import (
	"encoding/json"
	"fmt"
)

// MessageType discriminates UpdateMessage variants on the wire.
type MessageType string

const (
	MsgDelete MessageType = "Delete"
	MsgMesh   MessageType = "Mesh"
	MsgRead   MessageType = "Read"
	MsgOther  MessageType = "Other"
	MsgError  MessageType = "Error"
	MsgEmpty  MessageType = "Empty"
)

// UpdateMessage is a sealed interface over messages sent from the core to
// clients. Only the *Msg types in this package implement it.
type UpdateMessage interface {
	updateMessage()
	Type() MessageType
}

// DeleteMsg tells clients to drop an object.
type DeleteMsg struct {
	ID ObjectID `json:"id"`
}

// MeshMsg carries renderable triangles. Positions are xyz triples already in
// graphics space (see NewMesh).
type MeshMsg struct {
	ID        ObjectID       `json:"id"`
	Positions []float64      `json:"positions"`
	Indices   []uint64       `json:"indices"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ReadMsg answers a read query.
type ReadMsg struct {
	Query QueryID `json:"query_id"`
	User  UserID  `json:"user"`
	Data  any     `json:"data"`
}

// OtherMsg carries free-form JSON for non-mesh entities.
type OtherMsg struct {
	Data any `json:"data"`
}

// ErrorMsg reports a failure to a client.
type ErrorMsg struct {
	Message string `json:"message"`
}

// EmptyMsg is a no-op message.
type EmptyMsg struct{}

func (DeleteMsg) updateMessage() {}
func (MeshMsg) updateMessage()   {}
func (ReadMsg) updateMessage()   {}
func (OtherMsg) updateMessage()  {}
func (ErrorMsg) updateMessage()  {}
func (EmptyMsg) updateMessage()  {}

func (DeleteMsg) Type() MessageType { return MsgDelete }
func (MeshMsg) Type() MessageType   { return MsgMesh }
func (ReadMsg) Type() MessageType   { return MsgRead }
func (OtherMsg) Type() MessageType  { return MsgOther }
func (ErrorMsg) Type() MessageType  { return MsgError }
func (EmptyMsg) Type() MessageType  { return MsgEmpty }

// ToGraphics bakes the world → graphics transform (x, y, z) → (x, z, -y).
func ToGraphics(p Point) [3]float64 {
	return [3]float64{p.X, p.Z, -p.Y}
}

// NewMesh builds a MeshMsg from world-space vertices.
func NewMesh(id ObjectID, verts []Point, indices []uint64, meta map[string]any) MeshMsg {
	pos := make([]float64, 0, len(verts)*3)
	for _, v := range verts {
		g := ToGraphics(v)
		pos = append(pos, g[0], g[1], g[2])
	}
	return MeshMsg{ID: id, Positions: pos, Indices: indices, Metadata: meta}
}

// MarshalMessage encodes m as a JSON object with a "type" discriminator and
// the variant's fields under "data" (absent for Empty).
func MarshalMessage(m UpdateMessage) ([]byte, error) {
	if m == nil {
		m = EmptyMsg{}
	}
	env := struct {
		Type MessageType   `json:"type"`
		Data UpdateMessage `json:"data,omitempty"`
	}{Type: m.Type()}
	if m.Type() != MsgEmpty {
		env.Data = m
	}
	return json.Marshal(env)
}

// UnmarshalMessage decodes the form produced by MarshalMessage.
func UnmarshalMessage(data []byte) (UpdateMessage, error) {
	var env struct {
		Type MessageType     `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	var (
		m   UpdateMessage
		err error
	)
	switch env.Type {
	case MsgDelete:
		var v DeleteMsg
		err = json.Unmarshal(env.Data, &v)
		m = v
	case MsgMesh:
		var v MeshMsg
		err = json.Unmarshal(env.Data, &v)
		m = v
	case MsgRead:
		var v ReadMsg
		err = json.Unmarshal(env.Data, &v)
		m = v
	case MsgOther:
		var v OtherMsg
		err = json.Unmarshal(env.Data, &v)
		m = v
	case MsgError:
		var v ErrorMsg
		err = json.Unmarshal(env.Data, &v)
		m = v
	case MsgEmpty:
		m = EmptyMsg{}
	default:
		return nil, fmt.Errorf("unknown message type %q", env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s message: %w", env.Type, err)
	}
	return m, nil
}
