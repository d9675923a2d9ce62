package hydration

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec moves a Snapshot across a process boundary.
type Codec interface {
	Marshal(snap Snapshot) ([]byte, error)
	Unmarshal(data []byte) (Snapshot, error)
	ContentType() string
}

// JSONCodec encodes snapshots as JSON. Numbers in InitialData decode as
// float64, as with any untyped JSON value.
type JSONCodec struct{}

func (JSONCodec) Marshal(snap Snapshot) ([]byte, error) {
	b, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("hydration: encode json: %w", err)
	}
	return b, nil
}

func (JSONCodec) Unmarshal(data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("hydration: decode json: %w", err)
	}
	return snap, nil
}

func (JSONCodec) ContentType() string { return "application/json" }

// MsgpackCodec encodes snapshots as MessagePack. It is more compact than
// JSON and keeps integer data as integers.
type MsgpackCodec struct{}

func (MsgpackCodec) Marshal(snap Snapshot) ([]byte, error) {
	b, err := msgpack.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("hydration: encode msgpack: %w", err)
	}
	return b, nil
}

func (MsgpackCodec) Unmarshal(data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("hydration: decode msgpack: %w", err)
	}
	return snap, nil
}

func (MsgpackCodec) ContentType() string { return "application/msgpack" }
