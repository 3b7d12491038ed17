package protocol

type MessageType uint8

const (
	MessageTypeContentInfo MessageType = 1
	MessageTypeHandshake   MessageType = 2
	MessageTypeSessionData MessageType = 3
	MessageTypeAck         MessageType = 4
	MessageTypeClose       MessageType = 5
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeContentInfo:
		return "CONTENT_INFO"
	case MessageTypeHandshake:
		return "HANDSHAKE"
	case MessageTypeSessionData:
		return "SESSION_DATA"
	case MessageTypeAck:
		return "ACK"
	case MessageTypeClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// RecipientKind tags the RecipientInfo variants on the wire.
type RecipientKind uint8

const (
	RecipientKindKey      RecipientKind = 1
	RecipientKindPassword RecipientKind = 2
)

func (k RecipientKind) String() string {
	switch k {
	case RecipientKindKey:
		return "key"
	case RecipientKindPassword:
		return "password"
	default:
		return "unknown"
	}
}

// Compression identifies the per-chunk compression applied before sealing.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
)
