package transfer

import (
	"errors"
	"net"
)

var ErrMaxRetransmit = errors.New("max retransmit attempts reached")

// RemoteError is returned when the peer ends the session with an Error packet.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "peer error: " + e.Message
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
