// Package ratchet implements the symmetric key chains used by PFS sessions.
//
// Each direction of a session owns one chain. Every message advances the chain
// with HMAC-SHA256 and is sealed under a key that is discarded afterwards, so a
// compromise of the current chain key does not expose earlier messages.
package ratchet
