// Package logging holds the small set of zap helpers shared by hush packages.
//
// Components accept a *zap.Logger through a WithLogger option and default to a
// no-op logger. Key material, passwords and plaintext are never logged; use
// Redacted to mark a field that was intentionally removed.
package logging

import (
	"encoding/hex"

	"go.uber.org/zap"
)

const redactedPlaceholder = "[redacted]"

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// Named returns a child of l (or of a no-op logger) with the component name.
func Named(l *zap.Logger, component string) *zap.Logger {
	return OrNop(l).Named(component)
}

// Redacted marks a field whose value was deliberately withheld.
func Redacted(key string) zap.Field {
	return zap.String(key, redactedPlaceholder)
}

// ID logs an identifier as a short hex prefix. Identifiers are public but can
// be long; eight bytes are enough to correlate log lines.
func ID(key string, id []byte) zap.Field {
	if len(id) > 8 {
		id = id[:8]
	}
	return zap.String(key, hex.EncodeToString(id))
}
