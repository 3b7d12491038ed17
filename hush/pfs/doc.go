// Package pfs implements forward-secure session agreement in the style of
// X3DH over X25519.
//
// A responder publishes identity and long-term keys plus a supply of one-time
// keys. An initiator combines them with its identity key and a fresh
// ephemeral key, derives a session and sends a Handshake. The responder
// repeats the agreement from the handshake and consumes the one-time key, so
// it can never be used for a second session.
//
//	bundle, _ := responder.PublicInfo()
//	sess, hs, _ := pfs.StartInitiatorSession(initiator, bundle, nil)
//	peer, _ := responder.Accept(hs, nil)
//
// Agreement never fails because of mismatched keys. The sessions simply hold
// different keys and the first message fails with an authentication error.
package pfs
