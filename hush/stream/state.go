package stream

// State is the lifecycle position of a Cipher.
//
//	Idle -> HeaderWritten -> BodyStreaming -> Succeeded | Failed   (encrypt)
//	Idle -> HeaderParsed  -> BodyStreaming -> Succeeded | Failed   (decrypt)
//
// Any state may move to Failed. Succeeded and Failed are terminal until Reset.
type State int

const (
	StateIdle State = iota
	StateHeaderWritten
	StateHeaderParsed
	StateBodyStreaming
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHeaderWritten:
		return "header-written"
	case StateHeaderParsed:
		return "header-parsed"
	case StateBodyStreaming:
		return "body-streaming"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is Succeeded or Failed.
func (s State) Terminal() bool { return s == StateSucceeded || s == StateFailed }
