package ratchet

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestChainRoundTrip(t *testing.T) {
	sender, err := NewChain(testKey())
	require.NoError(t, err)
	receiver, err := NewReceiver(testKey(), 100)
	require.NoError(t, err)

	for i, m := range []string{"message 0", "message 1", "message 2"} {
		em, err := sender.Seal([]byte(m), []byte("ad"))
		require.NoError(t, err)
		assert.EqualValues(t, i, em.Generation)

		pt, err := receiver.Open(em, []byte("ad"))
		require.NoError(t, err)
		assert.Equal(t, m, string(pt))
	}
	assert.EqualValues(t, 3, sender.Generation())
}

func TestChainOutOfOrder(t *testing.T) {
	sender, _ := NewChain(testKey())
	receiver, _ := NewReceiver(testKey(), 100)

	var msgs []EncryptedMessage
	for i := 0; i < 5; i++ {
		em, err := sender.Seal([]byte{byte(i)}, nil)
		require.NoError(t, err)
		msgs = append(msgs, em)
	}

	for _, i := range []int{4, 1, 0, 3, 2} {
		pt, err := receiver.Open(msgs[i], nil)
		require.NoError(t, err, "message %d", i)
		assert.Equal(t, []byte{byte(i)}, pt)
	}
	assert.Zero(t, receiver.Skipped())

	_, err := receiver.Open(msgs[2], nil)
	require.ErrorIs(t, err, ErrInvalidGeneration, "replay")
}

func TestSkippedKeysAreBounded(t *testing.T) {
	sender, _ := NewChain(testKey())
	receiver, _ := NewReceiver(testKey(), 3)

	var msgs []EncryptedMessage
	for i := 0; i < 20; i++ {
		em, err := sender.Seal([]byte{byte(i)}, nil)
		require.NoError(t, err)
		msgs = append(msgs, em)
	}
	for i := 3; i < 20; i += 4 {
		_, err := receiver.Open(msgs[i], nil)
		require.NoError(t, err, "message %d", i)
		assert.LessOrEqual(t, receiver.Skipped(), 3)
	}
	assert.Equal(t, 3, receiver.Skipped())

	_, err := receiver.Open(msgs[0], nil)
	require.ErrorIs(t, err, ErrInvalidGeneration, "evicted")
	pt, err := receiver.Open(msgs[18], nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{18}, pt)
}

func TestChainTooFarAhead(t *testing.T) {
	receiver, _ := NewReceiver(testKey(), 2)
	_, err := receiver.Open(EncryptedMessage{Generation: 3, Ciphertext: make([]byte, 64)}, nil)
	require.ErrorIs(t, err, ErrInvalidGeneration)
}

func TestForgedMessageDoesNotAdvance(t *testing.T) {
	sender, _ := NewChain(testKey())
	receiver, _ := NewReceiver(testKey(), 100)

	em, err := sender.Seal([]byte("real"), nil)
	require.NoError(t, err)

	forged := EncryptedMessage{Generation: 50, Ciphertext: bytes.Repeat([]byte{1}, 40)}
	_, err = receiver.Open(forged, nil)
	require.Error(t, err)
	assert.Zero(t, receiver.Skipped())

	pt, err := receiver.Open(em, nil)
	require.NoError(t, err)
	assert.Equal(t, "real", string(pt))
}

func TestWrongKeyOrAD(t *testing.T) {
	sender, _ := NewChain(testKey())
	other := testKey()
	other[0] ^= 1
	receiver, _ := NewReceiver(other, 10)

	em, _ := sender.Seal([]byte("x"), []byte("ad"))
	_, err := receiver.Open(em, []byte("ad"))
	require.Error(t, err)

	good, _ := NewReceiver(testKey(), 10)
	_, err = good.Open(em, []byte("different"))
	require.Error(t, err)
}

func TestEncodeDecode(t *testing.T) {
	em := EncryptedMessage{Generation: 42, Ciphertext: []byte("ciphertext")}
	got, err := DecodeEncryptedMessage(em.Encode())
	require.NoError(t, err)
	assert.Equal(t, em, got)

	_, err = DecodeEncryptedMessage([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrMessageTooShort)

	_, err = NewChain([]byte("short"))
	require.ErrorIs(t, err, ErrInvalidKey)
}
