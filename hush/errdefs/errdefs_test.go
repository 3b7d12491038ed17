package errdefs

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMatchesKind(t *testing.T) {
	err := New(ErrAuthentication, "stream.Decrypt", errors.New("chunk 3"))

	require.ErrorIs(t, err, ErrAuthentication)
	assert.NotErrorIs(t, err, ErrStreamIO)
	assert.Equal(t, "stream.Decrypt: authentication failure: chunk 3", err.Error())
}

func TestErrorUnwrapsCause(t *testing.T) {
	err := New(ErrStreamIO, "stream.Encrypt", io.ErrClosedPipe)
	require.ErrorIs(t, err, io.ErrClosedPipe)
	require.ErrorIs(t, err, ErrStreamIO)
}

func TestNewDoesNotNestSameKind(t *testing.T) {
	inner := New(ErrKeyDecode, "keys.ParsePrivateKey", nil)
	outer := New(ErrKeyDecode, "sign.Sign", inner)
	assert.Same(t, inner, outer)
}

func TestWrapKeepsExistingKind(t *testing.T) {
	inner := New(ErrRecipientNotFound, "keyring.UnwrapWithKey", nil)
	wrapped := fmt.Errorf("decrypt: %w", inner)

	got := Wrap(ErrStreamIO, "stream.Decrypt", wrapped)
	require.ErrorIs(t, got, ErrRecipientNotFound)
	assert.NotErrorIs(t, got, ErrStreamIO)
	assert.Nil(t, Wrap(ErrStreamIO, "op", nil))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"classified", New(ErrKeyReuse, "pfs.Accept", nil), ErrKeyReuse},
		{"bare kind", fmt.Errorf("x: %w", ErrSigning), ErrSigning},
		{"unclassified", io.EOF, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}
