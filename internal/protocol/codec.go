package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	// MaxFrameSize bounds the length field of a frame.
	MaxFrameSize = 64 * 1024

	lengthSize = 4
	tokenSize  = 16
	headerSize = 1 + 1 + tokenSize // version, discriminant, token

	maxStringSize = math.MaxUint16
)

// Encode serializes msg into a self-delimiting frame tagged with token.
func Encode(msg Message, token Token) ([]byte, error) {
	if msg == nil {
		return nil, errors.New("encode: nil message")
	}

	payload, err := encodePayload(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Discriminant(), err)
	}

	size := headerSize + len(payload)
	if size > MaxFrameSize {
		return nil, fmt.Errorf("encode %s: frame of %d bytes exceeds %d", msg.Discriminant(), size, MaxFrameSize)
	}

	out := make([]byte, 0, lengthSize+size)
	out = binary.BigEndian.AppendUint32(out, uint32(size))
	out = append(out, Version, byte(msg.Discriminant()))
	out = append(out, token[:]...)
	out = append(out, payload...)
	return out, nil
}

func encodePayload(msg Message) ([]byte, error) {
	switch m := msg.(type) {
	case StartRequest, StartResponse:
		return nil, nil
	case SourcePIDRequest:
		return appendWindowInfo(nil, m.Window)
	case SourcePIDResponse:
		return appendOwner(nil, m.Owner)
	default:
		return nil, fmt.Errorf("unsupported message %T", msg)
	}
}

func appendWindowInfo(b []byte, w WindowInfo) ([]byte, error) {
	b = binary.BigEndian.AppendUint32(b, w.WindowID)
	b = binary.BigEndian.AppendUint32(b, uint32(w.OwnerPID))
	b = binary.BigEndian.AppendUint32(b, uint32(w.Layer))
	for _, f := range [...]float64{w.Frame.X, w.Frame.Y, w.Frame.Width, w.Frame.Height} {
		b = binary.BigEndian.AppendUint64(b, math.Float64bits(f))
	}
	if w.OnScreen {
		b = append(b, 1)
	} else {
		b = append(b, 0)
	}

	var err error
	if b, err = appendString(b, w.Title); err != nil {
		return nil, fmt.Errorf("title: %w", err)
	}
	if b, err = appendString(b, w.OwnerName); err != nil {
		return nil, fmt.Errorf("owner name: %w", err)
	}
	return b, nil
}

func appendOwner(b []byte, o Owner) ([]byte, error) {
	switch o.Status {
	case OwnerNotFound, OwnerUnavailable:
		if o.PID != 0 {
			return nil, fmt.Errorf("%s owner with pid %d", o.Status, o.PID)
		}
		return append(b, byte(o.Status)), nil
	case OwnerFound:
		if o.PID <= 0 {
			return nil, fmt.Errorf("found owner with pid %d", o.PID)
		}
		b = append(b, byte(o.Status))
		return binary.BigEndian.AppendUint32(b, uint32(o.PID)), nil
	default:
		return nil, fmt.Errorf("unknown owner status %d", o.Status)
	}
}

func appendString(b []byte, s string) ([]byte, error) {
	if len(s) > maxStringSize {
		return nil, fmt.Errorf("string of %d bytes exceeds %d", len(s), maxStringSize)
	}
	b = binary.BigEndian.AppendUint16(b, uint16(len(s)))
	return append(b, s...), nil
}

// Decode parses one complete frame, including its length prefix. Every error
// wraps ErrMalformedFrame.
func Decode(frame []byte) (Token, Message, error) {
	var token Token
	if len(frame) < lengthSize+headerSize {
		return token, nil, malformed("frame of %d bytes is shorter than the header", len(frame))
	}

	size := binary.BigEndian.Uint32(frame)
	if uint64(size) != uint64(len(frame)-lengthSize) {
		return token, nil, malformed("length field %d does not match %d body bytes", size, len(frame)-lengthSize)
	}

	body := frame[lengthSize:]
	if body[0] != Version {
		return token, nil, malformed("unsupported version %d", body[0])
	}
	disc := Discriminant(body[1])
	copy(token[:], body[2:headerSize])

	r := &reader{buf: body[headerSize:]}
	var msg Message
	switch disc {
	case DiscStartRequest:
		msg = StartRequest{}
	case DiscStartResponse:
		msg = StartResponse{}
	case DiscSourcePIDRequest:
		w, err := r.windowInfo()
		if err != nil {
			return token, nil, err
		}
		msg = SourcePIDRequest{Window: w}
	case DiscSourcePIDResponse:
		o, err := r.owner()
		if err != nil {
			return token, nil, err
		}
		msg = SourcePIDResponse{Owner: o}
	default:
		return token, nil, malformed("unknown discriminant 0x%02x", byte(disc))
	}

	if len(r.buf) != 0 {
		return token, nil, malformed("%d trailing bytes after %s payload", len(r.buf), disc)
	}
	return token, msg, nil
}

// ReadFrame reads exactly one frame from r. It returns io.EOF when r ends
// before a frame starts and io.ErrUnexpectedEOF when it ends inside one.
func ReadFrame(r io.Reader) ([]byte, error) {
	var prefix [lengthSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(prefix[:])
	if size < headerSize || size > MaxFrameSize {
		return nil, malformed("frame length %d outside [%d, %d]", size, headerSize, MaxFrameSize)
	}

	frame := make([]byte, lengthSize+int(size))
	copy(frame, prefix[:])
	if _, err := io.ReadFull(r, frame[lengthSize:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return frame, nil
}

// WriteFrame encodes msg and writes it to w in a single call.
func WriteFrame(w io.Writer, msg Message, token Token) error {
	frame, err := Encode(msg, token)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedFrame, fmt.Sprintf(format, args...))
}

type reader struct {
	buf []byte
}

func (r *reader) take(n int, what string) ([]byte, error) {
	if len(r.buf) < n {
		return nil, malformed("truncated %s: need %d bytes, have %d", what, n, len(r.buf))
	}
	out := r.buf[:n]
	r.buf = r.buf[n:]
	return out, nil
}

func (r *reader) readByte(what string) (byte, error) {
	b, err := r.take(1, what)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) readUint16(what string) (uint16, error) {
	b, err := r.take(2, what)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *reader) readUint32(what string) (uint32, error) {
	b, err := r.take(4, what)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *reader) readFloat(what string) (float64, error) {
	b, err := r.take(8, what)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

func (r *reader) readString(what string) (string, error) {
	n, err := r.readUint16(what + " length")
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n), what)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *reader) windowInfo() (WindowInfo, error) {
	var w WindowInfo
	var err error

	if w.WindowID, err = r.readUint32("window id"); err != nil {
		return w, err
	}
	pid, err := r.readUint32("owner pid")
	if err != nil {
		return w, err
	}
	w.OwnerPID = int32(pid)
	layer, err := r.readUint32("layer")
	if err != nil {
		return w, err
	}
	w.Layer = int32(layer)

	for _, dst := range []*float64{&w.Frame.X, &w.Frame.Y, &w.Frame.Width, &w.Frame.Height} {
		if *dst, err = r.readFloat("frame"); err != nil {
			return w, err
		}
	}

	onScreen, err := r.readByte("on-screen flag")
	if err != nil {
		return w, err
	}
	switch onScreen {
	case 0:
	case 1:
		w.OnScreen = true
	default:
		return w, malformed("on-screen flag %d is not a boolean", onScreen)
	}

	if w.Title, err = r.readString("title"); err != nil {
		return w, err
	}
	if w.OwnerName, err = r.readString("owner name"); err != nil {
		return w, err
	}
	return w, nil
}

func (r *reader) owner() (Owner, error) {
	status, err := r.readByte("owner status")
	if err != nil {
		return Owner{}, err
	}

	switch OwnerStatus(status) {
	case OwnerNotFound, OwnerUnavailable:
		return Owner{Status: OwnerStatus(status)}, nil
	case OwnerFound:
		raw, err := r.readUint32("owner pid")
		if err != nil {
			return Owner{}, err
		}
		pid := int32(raw)
		if pid <= 0 {
			return Owner{}, malformed("found owner with pid %d", pid)
		}
		return FoundOwner(pid), nil
	default:
		return Owner{}, malformed("unknown owner status %d", status)
	}
}
