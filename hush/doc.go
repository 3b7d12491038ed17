// Package hush is a streaming encryption, signing and forward-secure session
// library.
//
// An Engine bundles the three parts behind one configuration: hybrid
// multi-recipient stream encryption (package stream), detached stream
// signatures (package sign) and X3DH-style session agreement (package pfs)
// carried over a frame transport (package transport).
//
//	eng, _ := hush.New(hush.Config{})
//	_, err := eng.EncryptStream(src, dst, []hush.Recipient{{ID: id, PublicKey: pub}}, true)
//
// Every error carries an errdefs kind; match it with errors.Is.
package hush
