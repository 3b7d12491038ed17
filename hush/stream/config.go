package stream

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/TheusHen/hush/hush/crypto"
	"github.com/TheusHen/hush/hush/errdefs"
	"github.com/TheusHen/hush/hush/keyring"
	"github.com/TheusHen/hush/hush/logging"
)

const (
	// DefaultChunkSize is the plaintext size of every chunk but the last.
	DefaultChunkSize = 64 << 10
	MinChunkSize     = 1 << 10
	MaxChunkSize     = 16 << 20
)

// Config selects the algorithms and sizes of a Cipher. The zero value is
// valid and means: ChaCha20-Poly1305, 64 KiB chunks, PBKDF2-SHA-384 with
// keyring.DefaultIterations for password recipients, no compression.
type Config struct {
	Cipher        string `yaml:"cipher"`
	ChunkSize     int    `yaml:"chunk_size"`
	KDFHash       string `yaml:"kdf_hash"`
	KDFIterations int    `yaml:"kdf_iterations"`
	Compression   bool   `yaml:"compression"`
}

type settings struct {
	alg         crypto.Algorithm
	chunkSize   int
	kdfHash     crypto.Hash
	iterations  int
	compression bool
}

// Validate reports every problem in c at once.
func (c Config) Validate() error {
	_, err := c.resolve()
	return err
}

func (c Config) resolve() (settings, error) {
	var (
		s    settings
		errs *multierror.Error
		err  error
	)
	if s.alg, err = crypto.ParseAlgorithm(c.Cipher); err != nil {
		errs = multierror.Append(errs, err)
	}

	s.chunkSize = c.ChunkSize
	if s.chunkSize == 0 {
		s.chunkSize = DefaultChunkSize
	}
	if s.chunkSize < MinChunkSize || s.chunkSize > MaxChunkSize {
		errs = multierror.Append(errs, fmt.Errorf("stream: chunk size %d outside [%d, %d]", s.chunkSize, MinChunkSize, MaxChunkSize))
	}

	if c.KDFHash == "" {
		s.kdfHash = keyring.DefaultHash
	} else if s.kdfHash, err = crypto.ParseHash(c.KDFHash); err != nil {
		errs = multierror.Append(errs, err)
	} else if s.kdfHash == crypto.MD5 {
		errs = multierror.Append(errs, fmt.Errorf("stream: %s is not allowed as a password KDF hash", s.kdfHash))
	}

	s.iterations = c.KDFIterations
	if s.iterations == 0 {
		s.iterations = keyring.DefaultIterations
	}
	if s.iterations < keyring.MinIterations || s.iterations > keyring.MaxIterations {
		errs = multierror.Append(errs, fmt.Errorf("stream: kdf iterations %d outside [%d, %d]", s.iterations, keyring.MinIterations, keyring.MaxIterations))
	}

	s.compression = c.Compression

	if err := errs.ErrorOrNil(); err != nil {
		return settings{}, errdefs.New(errdefs.ErrConfiguration, "stream.Config", err)
	}
	return s, nil
}

type Option func(*Cipher)

func WithLogger(l *zap.Logger) Option {
	return func(c *Cipher) { c.log = logging.Named(l, "stream") }
}
