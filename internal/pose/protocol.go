package pose

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// maxFrameSize caps a single response from the landmark process.
const maxFrameSize = 16 << 20

// Request is one image sent to the landmark process.
type Request struct {
	Image  []byte `msgpack:"image"` // PNG
	Width  int    `msgpack:"width"`
	Height int    `msgpack:"height"`
}

// Landmark is a normalized body landmark; Y grows downwards.
type Landmark struct {
	X          float64 `msgpack:"x"`
	Y          float64 `msgpack:"y"`
	Visibility float64 `msgpack:"visibility"`
}

// Landmarks is the landmark process's reply. Found is false when no body was
// detected.
type Landmarks struct {
	Found    bool     `msgpack:"found"`
	Nose     Landmark `msgpack:"nose"`
	LeftHip  Landmark `msgpack:"left_hip"`
	RightHip Landmark `msgpack:"right_hip"`
	Error    string   `msgpack:"error,omitempty"`
}

// writeFrame writes v as msgpack behind a 4-byte big-endian length prefix.
func writeFrame(w io.Writer, v interface{}) error {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal msgpack request: %w", err)
	}

	prefix := make([]byte, 4)
	binary.BigEndian.PutUint32(prefix, uint32(len(payload)))
	if _, err := w.Write(prefix); err != nil {
		return fmt.Errorf("failed to write length prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("failed to write msgpack data: %w", err)
	}
	return nil
}

// readFrame reads one length-prefixed msgpack message into v.
func readFrame(r io.Reader, v interface{}) error {
	prefix := make([]byte, 4)
	if _, err := io.ReadFull(r, prefix); err != nil {
		return fmt.Errorf("failed to read length prefix: %w", err)
	}

	n := binary.BigEndian.Uint32(prefix)
	if n > maxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds limit", n)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return fmt.Errorf("failed to read msgpack data: %w", err)
	}
	if err := msgpack.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("failed to unmarshal msgpack response: %w", err)
	}
	return nil
}
