package hush

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/TheusHen/hush/hush/errdefs"
	"github.com/TheusHen/hush/hush/keys"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := Config{}
	cfg.Stream.ChunkSize = 4096
	cfg.Stream.KDFIterations = 10000
	e, err := New(cfg, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return e
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
stream:
  cipher: aes-256-gcm
  chunk_size: 131072
  kdf_hash: sha-512
  kdf_iterations: 200000
  compression: true
signing:
  hash: sha-256
session:
  additional_data: chat/v1
log:
  level: debug
`))
	require.NoError(t, err)
	assert.Equal(t, "aes-256-gcm", cfg.Stream.Cipher)
	assert.Equal(t, 131072, cfg.Stream.ChunkSize)
	assert.True(t, cfg.Stream.Compression)
	assert.Equal(t, "sha-256", cfg.Signing.Hash)
	assert.Equal(t, "chat/v1", cfg.Session.AdditionalData)

	log, err := cfg.Log.NewLogger()
	require.NoError(t, err)
	_ = log.Sync()

	empty, err := ParseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, Config{}, *empty)
}

func TestParseConfigErrors(t *testing.T) {
	_, err := ParseConfig([]byte("stream:\n  chunk_sise: 10\n"))
	require.ErrorIs(t, err, errdefs.ErrConfiguration, "unknown key")

	_, err = ParseConfig([]byte("stream:\n  cipher: des\nsigning:\n  hash: crc32\nlog:\n  level: loud\n"))
	require.ErrorIs(t, err, errdefs.ErrConfiguration)
	for _, part := range []string{"des", "signing.hash", "log.level"} {
		assert.Contains(t, err.Error(), part)
	}

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, errdefs.ErrConfiguration)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hush.yaml")
	require.NoError(t, os.WriteFile(path, []byte("signing:\n  hash: sha-512\n"), 0o600))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "sha-512", cfg.Signing.Hash)
}

func TestEncryptDecryptStream(t *testing.T) {
	e := newEngine(t)
	alice, _ := keys.GenerateKeyPair(keys.X25519, nil)
	bob, _ := keys.GenerateKeyPair(keys.MLKEM768, []byte("bob-pw"))
	aliceID, bobID := []byte(uuid.NewString()), []byte(uuid.NewString())
	plain := bytes.Repeat([]byte("streaming "), 3000)

	var ct bytes.Buffer
	ci, err := e.EncryptStream(bytes.NewReader(plain), &ct, []Recipient{
		{ID: aliceID, PublicKey: alice.PublicKey},
		{ID: bobID, PublicKey: bob.PublicKey},
	}, false)
	require.NoError(t, err)
	header, err := ci.MarshalBinary()
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, e.DecryptStream(bytes.NewReader(ct.Bytes()), &out, bobID, bob.PrivateKey, []byte("bob-pw"), header))
	assert.Equal(t, plain, out.Bytes())

	out.Reset()
	require.NoError(t, e.DecryptStream(bytes.NewReader(ct.Bytes()), &out, aliceID, alice.PrivateKey, nil, header))
	assert.Equal(t, plain, out.Bytes())

	err = e.DecryptStream(bytes.NewReader(ct.Bytes()), &out, []byte("eve"), alice.PrivateKey, nil, header)
	require.ErrorIs(t, err, errdefs.ErrRecipientNotFound)
}

func TestPasswordStream(t *testing.T) {
	e := newEngine(t)
	var ct bytes.Buffer
	_, err := e.EncryptStreamWithPassword(strings.NewReader("secret notes"), &ct, []byte("pw"), true)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, e.DecryptStreamWithPassword(bytes.NewReader(ct.Bytes()), &out, []byte("pw"), nil))
	assert.Equal(t, "secret notes", out.String())

	err = e.DecryptStreamWithPassword(bytes.NewReader(ct.Bytes()), &out, []byte("nope"), nil)
	require.ErrorIs(t, err, errdefs.ErrAuthentication)
}

func TestSignVerifyStream(t *testing.T) {
	e := newEngine(t)
	kp, _ := keys.GenerateKeyPair(keys.Secp256k1, nil)
	sig, err := e.SignStream(strings.NewReader("document"), kp.PrivateKey, nil)
	require.NoError(t, err)

	ok, err := e.VerifyStream(sig, strings.NewReader("document"), kp.PublicKey)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = e.VerifyStream(sig, strings.NewReader("documenT"), kp.PublicKey)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = e.VerifyStream(sig[:len(sig)-1], strings.NewReader("document"), kp.PublicKey)
	require.ErrorIs(t, err, errdefs.ErrSigning)
}

func TestSignThenEncrypt(t *testing.T) {
	e := newEngine(t)
	signer, _ := keys.GenerateKeyPair(keys.Ed25519, nil)
	other, _ := keys.GenerateKeyPair(keys.Ed25519, nil)
	recipient, _ := keys.GenerateKeyPair(keys.X25519, nil)
	rcpt := []Recipient{{ID: []byte("bob"), PublicKey: recipient.PublicKey}}

	ct, err := e.SignThenEncrypt([]byte("signed and sealed"), signer.PrivateKey, nil, []byte("alice"), rcpt)
	require.NoError(t, err)

	got, err := e.DecryptThenVerify(ct, []byte("bob"), recipient.PrivateKey, nil, map[string][]byte{"alice": signer.PublicKey})
	require.NoError(t, err)
	assert.Equal(t, "signed and sealed", string(got))

	_, err = e.DecryptThenVerify(ct, []byte("bob"), recipient.PrivateKey, nil, map[string][]byte{"carol": signer.PublicKey})
	require.ErrorIs(t, err, errdefs.ErrRecipientNotFound)
	require.ErrorIs(t, err, ErrSignerNotFound)

	_, err = e.DecryptThenVerify(ct, []byte("bob"), recipient.PrivateKey, nil, map[string][]byte{"alice": other.PublicKey})
	require.ErrorIs(t, err, errdefs.ErrAuthentication)

	var unsigned bytes.Buffer
	_, err = e.EncryptStream(strings.NewReader("plain"), &unsigned, rcpt, true)
	require.NoError(t, err)
	_, err = e.DecryptThenVerify(unsigned.Bytes(), []byte("bob"), recipient.PrivateKey, nil, nil)
	require.ErrorIs(t, err, errdefs.ErrSigning)

	_, err = e.SignThenEncrypt([]byte("x"), signer.PrivateKey, nil, nil, rcpt)
	require.ErrorIs(t, err, errdefs.ErrConfiguration)
}
