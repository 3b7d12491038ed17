// Package crypto provides the primitives hush builds on.
//
//   - Chunked AEAD (ChaCha20-Poly1305 or AES-256-GCM) with STREAM-style nonces
//   - Single-message sealing for wrapped content keys
//   - HKDF-SHA256 key derivation, PBKDF2 for password recipients, Argon2id for
//     password-protected private keys
//   - X25519, secp256k1 ECDH and ML-KEM-768 encapsulation
//
// Everything here works on raw byte slices; key types, encodings and errors
// visible to callers live in the packages above it.
package crypto
