package analyzer

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/visiona/moodcam/internal/types"
)

// maxMessageSize caps a single wire message; a raw 1080p RGB frame is
// ~6MB, so this leaves generous headroom while catching corrupt length
// prefixes.
const maxMessageSize = 64 << 20

// writeFrame writes one length-prefixed message: 4 bytes big-endian
// payload length followed by the payload. The prefix lets the worker
// find message boundaries in the stream.
func writeFrame(w io.Writer, payload []byte) error {
	prefix := make([]byte, 4)
	binary.BigEndian.PutUint32(prefix, uint32(len(payload)))
	if _, err := w.Write(prefix); err != nil {
		return fmt.Errorf("failed to write length prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("failed to write payload: %w", err)
	}
	return nil
}

// readFrame reads one length-prefixed message.
func readFrame(r io.Reader) ([]byte, error) {
	prefix := make([]byte, 4)
	if _, err := io.ReadFull(r, prefix); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(prefix)
	if length > maxMessageSize {
		return nil, fmt.Errorf("message length %d exceeds limit", length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("failed to read %d-byte payload: %w", length, err)
	}
	return payload, nil
}

// wireRequest is the request record sent to the analyzer worker.
type wireRequest struct {
	Seq         uint64       `msgpack:"seq"`
	Op          string       `msgpack:"op"` // "load" or "detect"
	Model       string       `msgpack:"model,omitempty"`
	Base        string       `msgpack:"base,omitempty"`
	FrameData   []byte       `msgpack:"frame_data,omitempty"`
	Width       int          `msgpack:"width,omitempty"`
	Height      int          `msgpack:"height,omitempty"`
	PixelFormat string       `msgpack:"pixel_format,omitempty"`
	FrameSeq    uint64       `msgpack:"frame_seq,omitempty"`
	Options     *wireOptions `msgpack:"options,omitempty"`
}

type wireOptions struct {
	InputSize      int     `msgpack:"input_size"`
	ScoreThreshold float64 `msgpack:"score_threshold"`
}

// wireFace is one detected face as the worker reports it.
type wireFace struct {
	Box         [4]float64         `msgpack:"box"` // x, y, width, height
	Landmarks   [][2]float64       `msgpack:"landmarks"`
	Expressions map[string]float64 `msgpack:"expressions"`
	Descriptor  []float32          `msgpack:"descriptor"`
}

// wireResponse is the worker's reply; Seq echoes the request.
type wireResponse struct {
	Seq         uint64             `msgpack:"seq"`
	Op          string             `msgpack:"op"`
	Error       string             `msgpack:"error"`
	Faces       []wireFace         `msgpack:"faces"`
	InputWidth  int                `msgpack:"input_width"`
	InputHeight int                `msgpack:"input_height"`
	Timing      map[string]float64 `msgpack:"timing"`
}

func encodeRequest(req *wireRequest) ([]byte, error) {
	payload, err := msgpack.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return payload, nil
}

func decodeResponse(payload []byte) (*wireResponse, error) {
	var resp wireResponse
	if err := msgpack.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &resp, nil
}

// toResult converts a wire response into the typed detection result.
// Only canonical expression labels are carried over; the label set is
// closed by contract.
func (r *wireResponse) toResult(frameSeq uint64) *types.DetectionResult {
	faces := make([]types.Face, 0, len(r.Faces))
	for _, wf := range r.Faces {
		face := types.Face{
			Box: types.Rect{
				X:      wf.Box[0],
				Y:      wf.Box[1],
				Width:  wf.Box[2],
				Height: wf.Box[3],
			},
			Landmarks:   make([]types.Point, 0, len(wf.Landmarks)),
			Expressions: make(types.Expressions, len(types.CanonicalExpressions)),
			Descriptor:  wf.Descriptor,
		}
		for _, p := range wf.Landmarks {
			face.Landmarks = append(face.Landmarks, types.Point{X: p[0], Y: p[1]})
		}
		for _, label := range types.CanonicalExpressions {
			if conf, ok := wf.Expressions[string(label)]; ok {
				face.Expressions[label] = conf
			}
		}
		faces = append(faces, face)
	}
	return &types.DetectionResult{
		Faces:       faces,
		InputWidth:  r.InputWidth,
		InputHeight: r.InputHeight,
		FrameSeq:    frameSeq,
	}
}
