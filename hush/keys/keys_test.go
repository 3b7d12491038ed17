package keys

import (
	"crypto/sha512"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheusHen/hush/hush/crypto"
	"github.com/TheusHen/hush/hush/errdefs"
)

var allTypes = []Type{X25519, Ed25519, Secp256k1, MLKEM768, MLDSA65}

// cheap parameters keep password tests fast
var testArgon2 = crypto.Argon2Params{Time: 1, Memory: 1024, Threads: 1}

func TestGenerateAndEncode(t *testing.T) {
	for _, kt := range allTypes {
		t.Run(kt.String(), func(t *testing.T) {
			kp, err := GenerateKeyPair(kt, nil)
			require.NoError(t, err, "GenerateKeyPair")

			pub, err := ParsePublicKey(kp.PublicKey)
			require.NoError(t, err, "ParsePublicKey")
			assert.Equal(t, kt, pub.Type)

			priv, err := ParsePrivateKey(kp.PrivateKey, nil)
			require.NoError(t, err, "ParsePrivateKey")
			derived, err := priv.Public()
			require.NoError(t, err)
			assert.True(t, pub.Equal(derived))
			assert.Equal(t, pub.ID(), derived.ID())
		})
	}
}

func TestKeyIDIsTruncatedSHA512(t *testing.T) {
	priv, err := Generate(X25519)
	require.NoError(t, err)
	pub, err := priv.Public()
	require.NoError(t, err)

	sum := sha512.Sum512(append([]byte{byte(X25519)}, pub.Raw...))
	id := pub.ID()
	assert.Equal(t, sum[:KeyIDSize], id[:])

	parsed, err := ParseKeyIDHex(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
	assert.False(t, parsed.IsZero())

	_, err = ParseKeyIDHex("abcd")
	require.Error(t, err)
}

func TestPasswordProtectedPrivateKey(t *testing.T) {
	priv, err := Generate(Ed25519)
	require.NoError(t, err)

	blob, err := priv.MarshalWithParams([]byte("correct horse"), testArgon2)
	require.NoError(t, err)
	assert.True(t, IsEncrypted(blob))

	got, err := ParsePrivateKey(blob, []byte("correct horse"))
	require.NoError(t, err)
	assert.Equal(t, priv.Raw, got.Raw)

	_, err = ParsePrivateKey(blob, []byte("wrong"))
	require.ErrorIs(t, err, errdefs.ErrKeyDecode)
	require.ErrorIs(t, err, ErrWrongPassword)

	_, err = ParsePrivateKey(blob, nil)
	require.ErrorIs(t, err, errdefs.ErrKeyDecode)
	require.ErrorIs(t, err, ErrPasswordRequired)
}

func TestEncryptDecryptPrivateKeyBlob(t *testing.T) {
	kp, err := GenerateKeyPair(X25519, nil)
	require.NoError(t, err)
	assert.False(t, IsEncrypted(kp.PrivateKey))

	protected, err := EncryptPrivateKey(kp.PrivateKey, []byte("pw"))
	require.NoError(t, err)
	require.True(t, IsEncrypted(protected))

	plain, err := DecryptPrivateKey(protected, []byte("pw"))
	require.NoError(t, err)
	assert.Equal(t, kp.PrivateKey, plain)

	pub, err := ExtractPublicKey(protected, []byte("pw"))
	require.NoError(t, err)
	assert.Equal(t, kp.PublicKey, pub)

	_, err = EncryptPrivateKey(kp.PrivateKey, nil)
	require.ErrorIs(t, err, errdefs.ErrConfiguration)
}

func TestParseRejectsGarbage(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"not pem", []byte("hello")},
		{"foreign pem", []byte("-----BEGIN CERTIFICATE-----\nAAAA\n-----END CERTIFICATE-----\n")},
		{"short key", PublicKey{Type: X25519, Raw: []byte{1, 2, 3}}.Marshal()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePublicKey(tt.data)
			require.ErrorIs(t, err, errdefs.ErrKeyDecode)
			_, err = ParsePrivateKey(tt.data, nil)
			require.ErrorIs(t, err, errdefs.ErrKeyDecode)
		})
	}
}

func TestSignVerify(t *testing.T) {
	digest := sha512.Sum384([]byte("message"))
	other := sha512.Sum384([]byte("another message"))

	for _, kt := range []Type{Ed25519, Secp256k1, MLDSA65} {
		t.Run(kt.String(), func(t *testing.T) {
			priv, err := Generate(kt)
			require.NoError(t, err)
			pub, err := priv.Public()
			require.NoError(t, err)

			sig, err := priv.Sign(digest[:])
			require.NoError(t, err)

			ok, err := pub.Verify(digest[:], sig)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = pub.Verify(other[:], sig)
			require.NoError(t, err)
			assert.False(t, ok)

			ok, err = pub.Verify(digest[:], []byte("junk"))
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestNonSigningTypes(t *testing.T) {
	for _, kt := range []Type{X25519, MLKEM768} {
		priv, err := Generate(kt)
		require.NoError(t, err)
		_, err = priv.Sign([]byte("digest"))
		require.ErrorIs(t, err, ErrCannotSign)
		assert.True(t, kt.CanEncrypt())
	}
}

func TestParseType(t *testing.T) {
	got, err := ParseType("")
	require.NoError(t, err)
	assert.Equal(t, Ed25519, got)

	got, err = ParseType("ML-KEM-768")
	require.NoError(t, err)
	assert.Equal(t, MLKEM768, got)

	got, err = ParseType("mldsa65")
	require.NoError(t, err)
	assert.Equal(t, MLDSA65, got)

	_, err = ParseType("rsa-2048")
	require.ErrorIs(t, err, ErrUnknownType)
}
