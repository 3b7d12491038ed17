package protocol

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	in := Frame{Type: MessageTypeAck, Payload: []byte("ok")}
	require.NoError(t, WriteFrame(&buf, in), "WriteFrame")

	out, err := ReadFrame(&buf)
	require.NoError(t, err, "ReadFrame")
	assert.Equal(t, in.Type, out.Type)
	assert.Equal(t, in.Payload, out.Payload)
}

func TestReadFrameLeavesFollowingBytes(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, Frame{Type: MessageTypeHandshake, Payload: []byte("hs")}))
	require.NoError(t, WriteFrame(&buf, Frame{Type: MessageTypeClose}))
	buf.WriteString("raw body")

	f1, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, MessageTypeHandshake, f1.Type)

	f2, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, MessageTypeClose, f2.Type)
	assert.Empty(t, f2.Payload)

	rest, _ := io.ReadAll(&buf)
	assert.Equal(t, "raw body", string(rest))
}

func TestFrameErrors(t *testing.T) {
	require.ErrorIs(t, WriteFrame(io.Discard, Frame{}), ErrInvalidType)
	require.ErrorIs(t, WriteFrame(io.Discard, Frame{Type: MessageTypeAck, Payload: make([]byte, MaxFramePayload+1)}), ErrFrameTooLarge)

	_, err := ReadFrame(bytes.NewReader([]byte{0, 0, 0, 0, 0}))
	require.ErrorIs(t, err, ErrInvalidType)

	_, err = ReadFrame(bytes.NewReader([]byte{1, 0xff, 0xff, 0xff, 0xff}))
	require.ErrorIs(t, err, ErrFrameTooLarge)

	_, err = ReadFrame(bytes.NewReader([]byte{1, 0, 0, 0, 9, 'x'}))
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestMessageTypeString(t *testing.T) {
	assert.Equal(t, "CONTENT_INFO", MessageTypeContentInfo.String())
	assert.Equal(t, "HANDSHAKE", MessageTypeHandshake.String())
	assert.Equal(t, "UNKNOWN", MessageType(99).String())
}
