package stream

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheusHen/hush/hush/errdefs"
	"github.com/TheusHen/hush/hush/keyring"
	"github.com/TheusHen/hush/hush/keys"
)

const testChunk = MinChunkSize

func randomData(t testing.TB, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

// assertPlaintext compares contents only: an empty bytes.Buffer returns nil.
func assertPlaintext(t testing.TB, want, got []byte) {
	t.Helper()
	assert.Equal(t, len(want), len(got))
	assert.True(t, bytes.Equal(want, got), "plaintext differs")
}

func newTestCipher(t testing.TB, cfg Config) *Cipher {
	t.Helper()
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = testChunk
	}
	if cfg.KDFIterations == 0 {
		cfg.KDFIterations = keyring.MinIterations
	}
	c, err := NewCipher(cfg)
	require.NoError(t, err)
	return c
}

func encryptFor(t testing.TB, cfg Config, kp keys.KeyPair, plain []byte, embed bool) ([]byte, []byte) {
	t.Helper()
	c := newTestCipher(t, cfg)
	require.NoError(t, c.AddKeyRecipient([]byte("bob"), kp.PublicKey))
	var out bytes.Buffer
	_, err := c.Encrypt(bytes.NewReader(plain), &out, embed)
	require.NoError(t, err)
	require.Equal(t, StateSucceeded, c.State())
	info, err := c.MarshalContentInfo()
	require.NoError(t, err)
	return out.Bytes(), info
}

func TestRoundTripKeyRecipient(t *testing.T) {
	kp, err := keys.GenerateKeyPair(keys.X25519, nil)
	require.NoError(t, err)

	sizes := map[string]int{
		"empty":          0,
		"one byte":       1,
		"exact chunk":    testChunk,
		"chunk plus one": testChunk + 1,
		"many chunks":    7*testChunk + 13,
		"exact multiple": 4 * testChunk,
	}
	for name, n := range sizes {
		for _, cipherName := range []string{"chacha20-poly1305", "aes-256-gcm"} {
			t.Run(name+"/"+cipherName, func(t *testing.T) {
				plain := randomData(t, n)
				ct, _ := encryptFor(t, Config{Cipher: cipherName}, kp, plain, true)

				d := newTestCipher(t, Config{})
				var out bytes.Buffer
				require.NoError(t, d.DecryptWithKey(bytes.NewReader(ct), &out, []byte("bob"), kp.PrivateKey, nil))
				assertPlaintext(t, plain, out.Bytes())
				assert.Equal(t, StateSucceeded, d.State())
			})
		}
	}
}

func TestRoundTripAllEncryptionKeyTypes(t *testing.T) {
	plain := randomData(t, 3*testChunk+5)
	for _, kt := range []keys.Type{keys.X25519, keys.Secp256k1, keys.MLKEM768} {
		t.Run(kt.String(), func(t *testing.T) {
			kp, err := keys.GenerateKeyPair(kt, []byte("key-pass"))
			require.NoError(t, err)
			ct, _ := encryptFor(t, Config{}, kp, plain, true)

			d := newTestCipher(t, Config{})
			var out bytes.Buffer
			require.NoError(t, d.DecryptWithKey(bytes.NewReader(ct), &out, []byte("bob"), kp.PrivateKey, []byte("key-pass")))
			assertPlaintext(t, plain, out.Bytes())
		})
	}
}

func TestRoundTripPassword(t *testing.T) {
	plain := randomData(t, 2*testChunk+100)

	c := newTestCipher(t, Config{})
	require.NoError(t, c.AddPasswordRecipient([]byte("correct horse")))
	var ct bytes.Buffer
	_, err := c.Encrypt(bytes.NewReader(plain), &ct, true)
	require.NoError(t, err)

	d := newTestCipher(t, Config{})
	var out bytes.Buffer
	require.NoError(t, d.DecryptWithPassword(bytes.NewReader(ct.Bytes()), &out, []byte("correct horse")))
	assertPlaintext(t, plain, out.Bytes())

	d = newTestCipher(t, Config{})
	out.Reset()
	err = d.DecryptWithPassword(bytes.NewReader(ct.Bytes()), &out, []byte("battery staple"))
	require.ErrorIs(t, err, errdefs.ErrAuthentication)
	assert.Zero(t, out.Len(), "no plaintext on wrong password")
	assert.Equal(t, StateFailed, d.State())
}

func TestMixedRecipients(t *testing.T) {
	alice, _ := keys.GenerateKeyPair(keys.X25519, nil)
	bob, _ := keys.GenerateKeyPair(keys.MLKEM768, nil)
	plain := randomData(t, 5000)

	c := newTestCipher(t, Config{})
	require.NoError(t, c.AddKeyRecipient([]byte("alice"), alice.PublicKey))
	require.NoError(t, c.AddKeyRecipient([]byte("bob"), bob.PublicKey))
	require.NoError(t, c.AddPasswordRecipient([]byte("shared")))
	var ct bytes.Buffer
	ci, err := c.Encrypt(bytes.NewReader(plain), &ct, true)
	require.NoError(t, err)
	assert.Len(t, ci.Recipients, 3)

	for _, tc := range []struct {
		name string
		opts DecryptOptions
	}{
		{"alice", DecryptOptions{RecipientID: []byte("alice"), PrivateKey: alice.PrivateKey}},
		{"bob", DecryptOptions{RecipientID: []byte("bob"), PrivateKey: bob.PrivateKey}},
		{"password", DecryptOptions{Password: []byte("shared")}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			d := newTestCipher(t, Config{})
			var out bytes.Buffer
			require.NoError(t, d.Decrypt(bytes.NewReader(ct.Bytes()), &out, tc.opts))
			assertPlaintext(t, plain, out.Bytes())
		})
	}

	d := newTestCipher(t, Config{})
	err = d.DecryptWithKey(bytes.NewReader(ct.Bytes()), io.Discard, []byte("carol"), alice.PrivateKey, nil)
	require.ErrorIs(t, err, errdefs.ErrRecipientNotFound)

	d = newTestCipher(t, Config{})
	err = d.DecryptWithKey(bytes.NewReader(ct.Bytes()), io.Discard, []byte("alice"), bob.PrivateKey, nil)
	require.ErrorIs(t, err, errdefs.ErrAuthentication)
}

func TestDetachedHeader(t *testing.T) {
	kp, _ := keys.GenerateKeyPair(keys.X25519, nil)
	plain := randomData(t, 3*testChunk)
	body, info := encryptFor(t, Config{}, kp, plain, false)

	t.Run("options", func(t *testing.T) {
		d := newTestCipher(t, Config{})
		var out bytes.Buffer
		require.NoError(t, d.Decrypt(bytes.NewReader(body), &out, DecryptOptions{
			RecipientID: []byte("bob"),
			PrivateKey:  kp.PrivateKey,
			ContentInfo: info,
		}))
		assertPlaintext(t, plain, out.Bytes())
	})

	t.Run("SetContentInfo", func(t *testing.T) {
		d := newTestCipher(t, Config{})
		require.NoError(t, d.SetContentInfo(info))
		assert.NotNil(t, d.ContentInfo())
		var out bytes.Buffer
		require.NoError(t, d.DecryptWithKey(bytes.NewReader(body), &out, []byte("bob"), kp.PrivateKey, nil))
		assertPlaintext(t, plain, out.Bytes())
	})

	t.Run("missing header", func(t *testing.T) {
		d := newTestCipher(t, Config{})
		err := d.DecryptWithKey(bytes.NewReader(body), io.Discard, []byte("bob"), kp.PrivateKey, nil)
		require.ErrorIs(t, err, errdefs.ErrHeaderParse)
	})

	t.Run("header from another stream", func(t *testing.T) {
		_, other := encryptFor(t, Config{}, kp, plain, false)
		d := newTestCipher(t, Config{})
		err := d.Decrypt(bytes.NewReader(body), io.Discard, DecryptOptions{
			RecipientID: []byte("bob"),
			PrivateKey:  kp.PrivateKey,
			ContentInfo: other,
		})
		require.ErrorIs(t, err, errdefs.ErrAuthentication)
	})
}

func TestBodyTamperingFailsAuthentication(t *testing.T) {
	kp, _ := keys.GenerateKeyPair(keys.X25519, nil)
	plain := randomData(t, 2*testChunk+17)
	body, info := encryptFor(t, Config{}, kp, plain, false)

	for i := range body {
		tampered := bytes.Clone(body)
		tampered[i] ^= 0x01

		d := newTestCipher(t, Config{})
		err := d.Decrypt(bytes.NewReader(tampered), io.Discard, DecryptOptions{
			RecipientID: []byte("bob"),
			PrivateKey:  kp.PrivateKey,
			ContentInfo: info,
		})
		require.ErrorIs(t, err, errdefs.ErrAuthentication, "flip at byte %d", i)
	}
}

func TestHeaderTamperingFails(t *testing.T) {
	kp, _ := keys.GenerateKeyPair(keys.X25519, nil)
	plain := randomData(t, 100)
	ct, info := encryptFor(t, Config{}, kp, plain, true)

	for i := range info {
		tampered := bytes.Clone(ct)
		tampered[i] ^= 0x80

		d := newTestCipher(t, Config{})
		var out bytes.Buffer
		err := d.DecryptWithKey(bytes.NewReader(tampered), &out, []byte("bob"), kp.PrivateKey, nil)
		require.Error(t, err, "flip at header byte %d", i)
		assert.Zero(t, out.Len())
	}
}

func TestTruncationAndTrailingData(t *testing.T) {
	kp, _ := keys.GenerateKeyPair(keys.X25519, nil)
	plain := randomData(t, 3*testChunk)
	body, info := encryptFor(t, Config{}, kp, plain, false)
	opts := DecryptOptions{RecipientID: []byte("bob"), PrivateKey: kp.PrivateKey, ContentInfo: info}

	recordLen := recordHeaderSize + testChunk + 16
	cases := map[string][]byte{
		"drop final chunk":   body[:2*recordLen],
		"cut inside record":  body[:len(body)-5],
		"cut inside header":  body[:recordLen+2],
		"empty body":         nil,
		"trailing byte":      append(bytes.Clone(body), 0),
		"duplicated records": append(bytes.Clone(body), body...),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			d := newTestCipher(t, Config{})
			err := d.Decrypt(bytes.NewReader(data), io.Discard, opts)
			require.ErrorIs(t, err, errdefs.ErrAuthentication)
		})
	}
}

func TestCompression(t *testing.T) {
	kp, _ := keys.GenerateKeyPair(keys.X25519, nil)
	compressible := bytes.Repeat([]byte("hush hush "), 2000)
	random := randomData(t, 5*testChunk)

	for name, plain := range map[string][]byte{"text": compressible, "random": random, "empty": nil} {
		t.Run(name, func(t *testing.T) {
			ct, _ := encryptFor(t, Config{Compression: true}, kp, plain, true)
			if name == "text" {
				assert.Less(t, len(ct), len(plain)/2)
			}
			d := newTestCipher(t, Config{})
			var out bytes.Buffer
			require.NoError(t, d.DecryptWithKey(bytes.NewReader(ct), &out, []byte("bob"), kp.PrivateKey, nil))
			assert.Equal(t, len(plain), out.Len())
			assert.True(t, bytes.Equal(plain, out.Bytes()))
		})
	}
}

func TestCustomParams(t *testing.T) {
	kp, _ := keys.GenerateKeyPair(keys.X25519, nil)
	c := newTestCipher(t, Config{})
	require.NoError(t, c.AddKeyRecipient([]byte("bob"), kp.PublicKey))
	require.NoError(t, c.SetCustomParam("content-type", []byte("text/plain")))
	require.Error(t, c.SetCustomParam("", []byte("x")))

	var ct bytes.Buffer
	_, err := c.Encrypt(bytes.NewReader([]byte("hello")), &ct, true)
	require.NoError(t, err)

	d := newTestCipher(t, Config{})
	require.NoError(t, d.DecryptWithKey(bytes.NewReader(ct.Bytes()), io.Discard, []byte("bob"), kp.PrivateKey, nil))
	v, ok := d.CustomParam("content-type")
	require.True(t, ok)
	assert.Equal(t, []byte("text/plain"), v)
	_, ok = d.CustomParam("missing")
	assert.False(t, ok)
}

func TestStateMachine(t *testing.T) {
	kp, _ := keys.GenerateKeyPair(keys.X25519, nil)
	c := newTestCipher(t, Config{})
	assert.Equal(t, StateIdle, c.State())

	_, err := c.Encrypt(bytes.NewReader(nil), io.Discard, true)
	require.ErrorIs(t, err, errdefs.ErrConfiguration, "no recipients")
	assert.Equal(t, StateFailed, c.State())

	_, err = c.Encrypt(bytes.NewReader(nil), io.Discard, true)
	require.ErrorIs(t, err, errdefs.ErrConfiguration, "terminal state")
	require.ErrorIs(t, c.AddKeyRecipient([]byte("bob"), kp.PublicKey), errdefs.ErrConfiguration)

	c.Reset()
	require.NoError(t, c.AddKeyRecipient([]byte("bob"), kp.PublicKey))
	_, err = c.Encrypt(bytes.NewReader([]byte("x")), io.Discard, true)
	require.NoError(t, err)
	assert.True(t, c.State().Terminal())

	c.Reset()
	_, err = c.Encrypt(bytes.NewReader([]byte("again")), io.Discard, true)
	require.NoError(t, err, "recipients survive Reset")
}

func TestDecryptModeSelection(t *testing.T) {
	c := newTestCipher(t, Config{})
	err := c.Decrypt(bytes.NewReader(nil), io.Discard, DecryptOptions{})
	require.ErrorIs(t, err, errdefs.ErrConfiguration)
	err = c.Decrypt(bytes.NewReader(nil), io.Discard, DecryptOptions{RecipientID: []byte("a"), Password: []byte("b")})
	require.ErrorIs(t, err, errdefs.ErrConfiguration)
	assert.Equal(t, StateIdle, c.State())
}

func TestConfigValidation(t *testing.T) {
	require.NoError(t, Config{}.Validate())
	err := Config{Cipher: "rot13", ChunkSize: 10, KDFHash: "md5", KDFIterations: 5}.Validate()
	require.ErrorIs(t, err, errdefs.ErrConfiguration)
	for _, part := range []string{"rot13", "chunk size", "md5", "iterations"} {
		assert.Contains(t, err.Error(), part)
	}
}

type failingWriter struct{ after int }

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.after <= 0 {
		return 0, io.ErrClosedPipe
	}
	w.after--
	return len(p), nil
}

func TestWriterFailureIsStreamIO(t *testing.T) {
	kp, _ := keys.GenerateKeyPair(keys.X25519, nil)
	c := newTestCipher(t, Config{})
	require.NoError(t, c.AddKeyRecipient([]byte("bob"), kp.PublicKey))
	_, err := c.Encrypt(bytes.NewReader(randomData(t, 4*testChunk)), &failingWriter{after: 3}, true)
	require.ErrorIs(t, err, errdefs.ErrStreamIO)
	assert.Equal(t, StateFailed, c.State())
}

func TestLargeStreamEmbeddedHeader(t *testing.T) {
	if testing.Short() {
		t.Skip("large stream")
	}
	kp, _ := keys.GenerateKeyPair(keys.X25519, nil)
	plain := randomData(t, 10<<20)

	c, err := NewCipher(Config{ChunkSize: 64 << 10})
	require.NoError(t, err)
	require.NoError(t, c.AddKeyRecipient([]byte("bob"), kp.PublicKey))

	var ct bytes.Buffer
	w := bufio.NewWriter(&ct)
	ci, err := c.Encrypt(bytes.NewReader(plain), w, true)
	require.NoError(t, err)
	assert.EqualValues(t, 64<<10, ci.ChunkSize)

	d, err := NewCipher(Config{})
	require.NoError(t, err)
	var out bytes.Buffer
	require.NoError(t, d.DecryptWithKey(&ct, &out, []byte("bob"), kp.PrivateKey, nil))
	assert.True(t, bytes.Equal(plain, out.Bytes()))
}

func BenchmarkEncrypt(b *testing.B) {
	kp, _ := keys.GenerateKeyPair(keys.X25519, nil)
	plain := randomData(b, 1<<20)
	b.SetBytes(int64(len(plain)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c, _ := NewCipher(Config{})
		_ = c.AddKeyRecipient([]byte("bob"), kp.PublicKey)
		if _, err := c.Encrypt(bytes.NewReader(plain), io.Discard, true); err != nil {
			b.Fatal(err)
		}
	}
}
