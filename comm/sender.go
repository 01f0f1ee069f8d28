package comm

import (
	"bufio"
	"fmt"
	"net"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
)

// Variables

// ErrPeerUnreachable marks a connect or transfer failure towards a
// peer replica. Callers detect it via errors.Cause to hand the peer
// over to view removal and background recovery.
var ErrPeerUnreachable = errors.New("peer unreachable")

// Structs

// Sender knows how to deliver one sync message to one peer replica
// within a bounded connection timeout and to read back the peer's
// status line.
type Sender struct {
	logger  log.Logger
	timeout time.Duration
}

// Functions

// InitSender returns a sender whose outbound calls are bounded by
// the supplied connection timeout.
func InitSender(logger log.Logger, timeout time.Duration) *Sender {

	return &Sender{
		logger:  logger,
		timeout: timeout,
	}
}

// Send connects to the peer at addr, transfers msg as one line and
// waits for the answering status line. Failures to connect or to
// complete the exchange in time are wrapped in ErrPeerUnreachable,
// a malformed answer is reported as-is.
func (sender *Sender) Send(addr string, msg *Msg) (Status, error) {

	// Attempt to connect to the peer replica, bounded
	// by the configured connection timeout.
	conn, err := net.DialTimeout("tcp", addr, sender.timeout)
	if err != nil {
		return "", errors.Wrapf(ErrPeerUnreachable, "connecting to '%s' failed with: %v", addr, err)
	}
	defer conn.Close()

	// The whole exchange has to finish within the timeout.
	err = conn.SetDeadline(time.Now().Add(sender.timeout))
	if err != nil {
		return "", errors.Wrapf(ErrPeerUnreachable, "setting deadline towards '%s' failed with: %v", addr, err)
	}

	// Write message to connection.
	_, err = fmt.Fprintf(conn, "%s\r\n", msg.String())
	if err != nil {
		return "", errors.Wrapf(ErrPeerUnreachable, "sending sync message to '%s' failed with: %v", addr, err)
	}

	// Wait for the peer's status line.
	answer, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return "", errors.Wrapf(ErrPeerUnreachable, "awaiting status line from '%s' failed with: %v", addr, err)
	}

	status, err := ParseStatus(trimLine(answer))
	if err != nil {
		return "", errors.Wrapf(err, "peer '%s' answered out of protocol", addr)
	}

	level.Debug(sender.logger).Log(
		"msg", "sync message delivered",
		"peer", addr,
		"status", status,
	)

	return status, nil
}

// IsUnreachable reports whether err marks a peer connection
// failure as opposed to a protocol-level problem.
func IsUnreachable(err error) bool {
	return errors.Cause(err) == ErrPeerUnreachable
}

// trimLine removes trailing newline symbols from a received line.
func trimLine(line string) string {

	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}

	return line
}
