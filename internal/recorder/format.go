package recorder

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dj-oyu/structure-camera/pkg/types"
)

const formatVersion = 1

// Record kinds
const (
	KindHeader        = "header"
	KindDepth         = "depth"
	KindVisible       = "visible"
	KindInfrared      = "infrared"
	KindAccelerometer = "accelerometer"
	KindGyroscope     = "gyroscope"
)

// Record message fields
const (
	fieldMeta    protowire.Number = 1
	fieldPayload protowire.Number = 2
)

// maxRecordSize bounds a single record; an SXGA depth frame is about 5MB
const maxRecordSize = 64 << 20

func encodeRecord(kind string, meta map[string]any, payload []byte) ([]byte, error) {
	fields := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		fields[k] = v
	}
	fields["kind"] = kind

	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	metaBytes, err := proto.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	var msg []byte
	msg = protowire.AppendTag(msg, fieldMeta, protowire.BytesType)
	msg = protowire.AppendBytes(msg, metaBytes)
	if len(payload) > 0 {
		msg = protowire.AppendTag(msg, fieldPayload, protowire.BytesType)
		msg = protowire.AppendBytes(msg, payload)
	}

	out := protowire.AppendVarint(nil, uint64(len(msg)))
	return append(out, msg...), nil
}

func encodeDepth(depth []float32) []byte {
	out := make([]byte, len(depth)*4)
	for i, v := range depth {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func encodeInfrared(data []uint16) []byte {
	out := make([]byte, len(data)*2)
	for i, v := range data {
		binary.LittleEndian.PutUint16(out[i*2:], v)
	}
	return out
}

// Record is one decoded entry of a recording
type Record struct {
	Kind    string
	Meta    *structpb.Struct
	Payload []byte
}

func (r *Record) number(key string) float64 {
	if v, ok := r.Meta.GetFields()[key]; ok {
		return v.GetNumberValue()
	}
	return 0
}

// Timestamp returns the sample time
func (r *Record) Timestamp() time.Time {
	sec := r.number("timestamp")
	return time.Unix(0, int64(sec*float64(time.Second)))
}

// FrameNum returns the frame sequence number of a frame record
func (r *Record) FrameNum() uint64 {
	return uint64(r.number("frame_num"))
}

// Vec3 returns the x, y, z values of an IMU record
func (r *Record) Vec3() types.Vec3 {
	return types.Vec3{X: r.number("x"), Y: r.number("y"), Z: r.number("z")}
}

// DepthFrame rebuilds a depth frame from a record written with frames enabled
func (r *Record) DepthFrame() (types.DepthFrame, error) {
	if r.Kind != KindDepth {
		return types.DepthFrame{}, fmt.Errorf("record kind %q is not depth", r.Kind)
	}
	w, h := int(r.number("width")), int(r.number("height"))
	if len(r.Payload) != w*h*4 {
		return types.DepthFrame{}, fmt.Errorf("depth payload has %d bytes, want %d", len(r.Payload), w*h*4)
	}
	depth := make([]float32, w*h)
	for i := range depth {
		depth[i] = math.Float32frombits(binary.LittleEndian.Uint32(r.Payload[i*4:]))
	}
	return types.DepthFrame{
		Width:     w,
		Height:    h,
		Depth:     depth,
		Timestamp: r.Timestamp(),
		FrameNum:  r.FrameNum(),
	}, nil
}

// InfraredFrame rebuilds an infrared frame from a record written with frames enabled
func (r *Record) InfraredFrame() (types.InfraredFrame, error) {
	if r.Kind != KindInfrared {
		return types.InfraredFrame{}, fmt.Errorf("record kind %q is not infrared", r.Kind)
	}
	w, h := int(r.number("width")), int(r.number("height"))
	if len(r.Payload) != w*h*2 {
		return types.InfraredFrame{}, fmt.Errorf("infrared payload has %d bytes, want %d", len(r.Payload), w*h*2)
	}
	data := make([]uint16, w*h)
	for i := range data {
		data[i] = binary.LittleEndian.Uint16(r.Payload[i*2:])
	}
	return types.InfraredFrame{
		Width:     w,
		Height:    h,
		Data:      data,
		Timestamp: r.Timestamp(),
		FrameNum:  r.FrameNum(),
	}, nil
}

// Reader reads records sequentially
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps a recording stream
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Next returns the next record or io.EOF at the end of the stream
func (rd *Reader) Next() (*Record, error) {
	size, err := binary.ReadUvarint(rd.r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read record length: %w", err)
	}
	if size > maxRecordSize {
		return nil, fmt.Errorf("record length %d exceeds limit", size)
	}

	msg := make([]byte, size)
	if _, err := io.ReadFull(rd.r, msg); err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}
	return decodeRecord(msg)
}

func decodeRecord(msg []byte) (*Record, error) {
	rec := &Record{}
	for len(msg) > 0 {
		num, typ, n := protowire.ConsumeTag(msg)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		msg = msg[n:]

		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, msg)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			msg = msg[n:]
			continue
		}

		v, n := protowire.ConsumeBytes(msg)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		msg = msg[n:]

		switch num {
		case fieldMeta:
			st := &structpb.Struct{}
			if err := proto.Unmarshal(v, st); err != nil {
				return nil, fmt.Errorf("decode metadata: %w", err)
			}
			rec.Meta = st
		case fieldPayload:
			rec.Payload = v
		}
	}

	if rec.Meta == nil {
		return nil, errors.New("record without metadata")
	}
	rec.Kind = rec.Meta.GetFields()["kind"].GetStringValue()
	return rec, nil
}
