package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleWindow() WindowInfo {
	return WindowInfo{
		WindowID:  42,
		OwnerPID:  311,
		OwnerName: "Control Center",
		Title:     "Item-0",
		Layer:     MenuBarLayer,
		Frame:     Rect{X: 1204.5, Y: 0, Width: 38, Height: 24},
		OnScreen:  true,
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	messages := []Message{
		StartRequest{},
		SourcePIDRequest{Window: sampleWindow()},
		SourcePIDRequest{Window: WindowInfo{WindowID: 7}},
		StartResponse{},
		SourcePIDResponse{Owner: FoundOwner(1234)},
		SourcePIDResponse{Owner: Owner{Status: OwnerNotFound}},
		SourcePIDResponse{Owner: Owner{Status: OwnerUnavailable}},
	}

	for _, msg := range messages {
		token := NewToken()
		frame, err := Encode(msg, token)
		require.NoError(t, err)

		gotToken, got, err := Decode(frame)
		require.NoError(t, err)
		require.Equal(t, token, gotToken)
		require.Equal(t, msg, got)
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	token := NewToken()
	msg := SourcePIDRequest{Window: sampleWindow()}

	first, err := Encode(msg, token)
	require.NoError(t, err)
	second, err := Encode(msg, token)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestEncodeRejectsInvalidInput(t *testing.T) {
	_, err := Encode(nil, NewToken())
	require.Error(t, err)

	_, err = Encode(SourcePIDResponse{Owner: Owner{Status: OwnerFound}}, NewToken())
	require.Error(t, err)

	_, err = Encode(SourcePIDResponse{Owner: Owner{Status: 9}}, NewToken())
	require.Error(t, err)

	// The pid is not on the wire for these statuses and would not survive decoding.
	_, err = Encode(SourcePIDResponse{Owner: Owner{Status: OwnerNotFound, PID: 5}}, NewToken())
	require.Error(t, err)
	_, err = Encode(SourcePIDResponse{Owner: Owner{Status: OwnerUnavailable, PID: 5}}, NewToken())
	require.Error(t, err)

	huge := WindowInfo{Title: strings.Repeat("x", maxStringSize+1)}
	_, err = Encode(SourcePIDRequest{Window: huge}, NewToken())
	require.Error(t, err)
}

func TestDecodeUnknownDiscriminant(t *testing.T) {
	frame, err := Encode(StartRequest{}, NewToken())
	require.NoError(t, err)

	for _, disc := range []byte{0x00, 0x03, 0x7f, 0x80, 0x83, 0xff} {
		mutated := append([]byte(nil), frame...)
		mutated[lengthSize+1] = disc

		_, msg, err := Decode(mutated)
		require.ErrorIs(t, err, ErrMalformedFrame, "discriminant 0x%02x", disc)
		require.Nil(t, msg)
	}
}

func TestDecodeRejectsUnsupportedVersion(t *testing.T) {
	frame, err := Encode(StartResponse{}, NewToken())
	require.NoError(t, err)
	frame[lengthSize] = Version + 1

	_, _, err = Decode(frame)
	require.ErrorIs(t, err, ErrMalformedFrame)
}

func TestDecodeTruncatedFrames(t *testing.T) {
	frame, err := Encode(SourcePIDRequest{Window: sampleWindow()}, NewToken())
	require.NoError(t, err)

	// Every prefix is either too short or disagrees with its length field.
	for n := 0; n < len(frame); n++ {
		_, _, err := Decode(frame[:n])
		require.ErrorIs(t, err, ErrMalformedFrame, "prefix of %d bytes", n)
	}
}

func TestDecodeTruncatedPayloadWithConsistentLength(t *testing.T) {
	frame, err := Encode(SourcePIDRequest{Window: sampleWindow()}, NewToken())
	require.NoError(t, err)

	// Cut the payload but rewrite the length field so only the payload
	// parser can notice.
	for cut := 1; cut < len(frame)-lengthSize-headerSize; cut++ {
		short := append([]byte(nil), frame[:len(frame)-cut]...)
		binary.BigEndian.PutUint32(short, uint32(len(short)-lengthSize))

		_, _, err := Decode(short)
		require.ErrorIs(t, err, ErrMalformedFrame, "cut %d", cut)
	}
}

func TestDecodeFoundOwnerWithoutPID(t *testing.T) {
	token := NewToken()
	frame := binary.BigEndian.AppendUint32(nil, uint32(headerSize+1))
	frame = append(frame, Version, byte(DiscSourcePIDResponse))
	frame = append(frame, token[:]...)
	frame = append(frame, byte(OwnerFound))

	_, _, err := Decode(frame)
	require.ErrorIs(t, err, ErrMalformedFrame)
	require.Contains(t, err.Error(), "owner pid")
}

func TestDecodeRejectsShapeMismatch(t *testing.T) {
	token := NewToken()
	build := func(disc Discriminant, payload ...byte) []byte {
		frame := binary.BigEndian.AppendUint32(nil, uint32(headerSize+len(payload)))
		frame = append(frame, Version, byte(disc))
		frame = append(frame, token[:]...)
		return append(frame, payload...)
	}

	cases := map[string][]byte{
		"start with payload":       build(DiscStartRequest, 0x01),
		"not-found with pid":       build(DiscSourcePIDResponse, byte(OwnerNotFound), 0, 0, 0, 1),
		"found with zero pid":      build(DiscSourcePIDResponse, byte(OwnerFound), 0, 0, 0, 0),
		"found with negative pid":  build(DiscSourcePIDResponse, byte(OwnerFound), 0xff, 0xff, 0xff, 0xff),
		"unknown owner status":     build(DiscSourcePIDResponse, 7),
		"empty sourcePID request":  build(DiscSourcePIDRequest),
		"empty sourcePID response": build(DiscSourcePIDResponse),
	}

	for name, frame := range cases {
		_, _, err := Decode(frame)
		require.ErrorIs(t, err, ErrMalformedFrame, name)
	}
}

func TestDecodeRejectsNonBooleanOnScreen(t *testing.T) {
	frame, err := Encode(SourcePIDRequest{Window: WindowInfo{WindowID: 1}}, NewToken())
	require.NoError(t, err)

	// window id, owner pid, layer, four frame floats.
	offset := lengthSize + headerSize + 4 + 4 + 4 + 4*8
	frame[offset] = 2

	_, _, err = Decode(frame)
	require.ErrorIs(t, err, ErrMalformedFrame)
}

func TestReadFrameSplitsStream(t *testing.T) {
	first := NewToken()
	second := NewToken()

	var stream bytes.Buffer
	require.NoError(t, WriteFrame(&stream, StartRequest{}, first))
	require.NoError(t, WriteFrame(&stream, SourcePIDRequest{Window: sampleWindow()}, second))

	frame, err := ReadFrame(&stream)
	require.NoError(t, err)
	token, msg, err := Decode(frame)
	require.NoError(t, err)
	require.Equal(t, first, token)
	require.Equal(t, StartRequest{}, msg)

	frame, err = ReadFrame(&stream)
	require.NoError(t, err)
	token, msg, err = Decode(frame)
	require.NoError(t, err)
	require.Equal(t, second, token)
	require.Equal(t, SourcePIDRequest{Window: sampleWindow()}, msg)

	_, err = ReadFrame(&stream)
	require.ErrorIs(t, err, io.EOF)
}

func TestReadFrameErrors(t *testing.T) {
	frame, err := Encode(StartRequest{}, NewToken())
	require.NoError(t, err)

	_, err = ReadFrame(bytes.NewReader(frame[:len(frame)-3]))
	require.True(t, errors.Is(err, io.ErrUnexpectedEOF), "got %v", err)

	oversized := binary.BigEndian.AppendUint32(nil, MaxFrameSize+1)
	_, err = ReadFrame(bytes.NewReader(oversized))
	require.ErrorIs(t, err, ErrMalformedFrame)

	undersized := binary.BigEndian.AppendUint32(nil, 3)
	_, err = ReadFrame(bytes.NewReader(undersized))
	require.ErrorIs(t, err, ErrMalformedFrame)
}

func TestMatches(t *testing.T) {
	require.True(t, Matches(StartRequest{}, StartResponse{}))
	require.True(t, Matches(SourcePIDRequest{}, SourcePIDResponse{}))
	require.False(t, Matches(StartRequest{}, SourcePIDResponse{}))
	require.False(t, Matches(SourcePIDRequest{}, StartResponse{}))
	require.False(t, Matches(nil, StartResponse{}))
}
