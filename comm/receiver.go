package comm

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/aneangel/CSE138-Assignment3/vclock"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// Structs

// Handler is implemented by the request coordinator of a replica
// and receives every inbound peer message in structured form. The
// returned status is answered back to the sending peer.
type Handler interface {

	// HandleWrite applies a write replicated by a peer. The
	// clock is the resulting vector clock of the accepted
	// write at its origin.
	HandleWrite(sender string, wr *WriteMsg, clock vclock.VClock) Status

	// HandleViewChange applies a membership event replicated
	// by a peer.
	HandleViewChange(sender string, vw *ViewMsg) Status

	// HandleSnapshot installs a full recovery snapshot pushed
	// by a peer. The clock is the pushing replica's aggregate
	// vector clock.
	HandleSnapshot(sender string, sn *SnapshotMsg, clock vclock.VClock) Status
}

// Receiver accepts inbound peer connections, parses each sync
// message and dispatches it into the coordinator via Handler.
type Receiver struct {
	lock     *sync.Mutex
	logger   log.Logger
	socket   net.Listener
	handler  Handler
	wg       *sync.WaitGroup
	shutdown chan struct{}
}

// Functions

// InitReceiver initializes above struct and starts accepting
// incoming peer messages in the background.
func InitReceiver(logger log.Logger, socket net.Listener, handler Handler) *Receiver {

	recv := &Receiver{
		lock:     new(sync.Mutex),
		logger:   logger,
		socket:   socket,
		handler:  handler,
		wg:       new(sync.WaitGroup),
		shutdown: make(chan struct{}),
	}

	recv.wg.Add(1)
	go recv.AcceptIncMsgs()

	return recv
}

// AcceptIncMsgs loops over incoming peer connections and dispatches
// each one to a goroutine taking care of the contained message.
func (recv *Receiver) AcceptIncMsgs() {

	defer recv.wg.Done()

	for {

		// Accept request or fail on error.
		conn, err := recv.socket.Accept()
		if err != nil {

			select {
			case <-recv.shutdown:
				return
			default:
				level.Error(recv.logger).Log(
					"msg", "accepting incoming sync connection failed",
					"err", err,
				)
				continue
			}
		}

		// Dispatch into own goroutine.
		recv.wg.Add(1)
		go recv.HandleConn(conn)
	}
}

// HandleConn reads one sync message from the accepted connection,
// dispatches it into the handler and answers the resulting status.
func (recv *Receiver) HandleConn(conn net.Conn) {

	defer recv.wg.Done()
	defer conn.Close()

	// A peer that connects but never completes its line must
	// not occupy this goroutine forever.
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		level.Error(recv.logger).Log(
			"msg", "reading sync message from peer failed",
			"remote", conn.RemoteAddr().String(),
			"err", err,
		)
		return
	}

	status := recv.dispatch(line)

	_, err = conn.Write([]byte(string(status) + "\r\n"))
	if err != nil {
		level.Error(recv.logger).Log(
			"msg", "answering status line to peer failed",
			"remote", conn.RemoteAddr().String(),
			"err", err,
		)
	}
}

// dispatch parses one received line and routes it to the matching
// handler method.
func (recv *Receiver) dispatch(line string) Status {

	msg, err := Parse(strings.TrimRight(line, "\r\n"))
	if err != nil {
		level.Error(recv.logger).Log(
			"msg", "discarding malformed sync message",
			"err", err,
		)
		return StatusInvalid
	}

	op, rest, err := ParseOp(msg.Payload)
	if err != nil {
		level.Error(recv.logger).Log(
			"msg", "discarding sync message without operation",
			"err", err,
		)
		return StatusInvalid
	}

	switch op {

	case OpWrite:

		wr, err := ParseWrite(rest)
		if err != nil {
			level.Error(recv.logger).Log(
				"msg", "discarding malformed write message",
				"sender", msg.Sender,
				"err", err,
			)
			return StatusInvalid
		}

		return recv.handler.HandleWrite(msg.Sender, wr, msg.VClock)

	case OpView:

		vw, err := ParseView(rest)
		if err != nil {
			level.Error(recv.logger).Log(
				"msg", "discarding malformed view message",
				"sender", msg.Sender,
				"err", err,
			)
			return StatusInvalid
		}

		return recv.handler.HandleViewChange(msg.Sender, vw)

	case OpSnapshot:

		sn, err := ParseSnapshot(rest)
		if err != nil {
			level.Error(recv.logger).Log(
				"msg", "discarding malformed snapshot message",
				"sender", msg.Sender,
				"err", err,
			)
			return StatusInvalid
		}

		return recv.handler.HandleSnapshot(msg.Sender, sn, msg.VClock)

	default:
		level.Error(recv.logger).Log(
			"msg", "discarding sync message with unknown operation",
			"sender", msg.Sender,
			"operation", op,
		)
		return StatusInvalid
	}
}

// Shutdown stops accepting new peer connections and waits for
// in-flight messages to finish.
func (recv *Receiver) Shutdown() {

	close(recv.shutdown)
	recv.socket.Close()
	recv.wg.Wait()
}
