package wire

import "fmt"

// Response is the receiver's closed-set status code, sent back to the
// sender as 8 big-endian bytes after the connection has been fully
// handled.
type Response uint64

const (
	Success Response = iota
	Error
	BadData
	ExceededRateLimit
	TooLarge
	Timeout
)

func (r Response) String() string {
	switch r {
	case Success:
		return "Success"
	case Error:
		return "Error"
	case BadData:
		return "BadData"
	case ExceededRateLimit:
		return "ExceededRateLimit"
	case TooLarge:
		return "TooLarge"
	case Timeout:
		return "Timeout"
	default:
		return fmt.Sprintf("Response(%d)", uint64(r))
	}
}

// ResponseFromUint64 maps a wire code to a Response, rejecting codes
// outside the closed set.
func ResponseFromUint64(v uint64) (Response, bool) {
	if v > uint64(Timeout) {
		return 0, false
	}
	return Response(v), true
}

// ResponseSize is the fixed size in bytes of the response frame.
const ResponseSize = 8
