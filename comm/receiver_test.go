package comm

import (
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/aneangel/CSE138-Assignment3/vclock"
	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/assert"
)

// Structs

// recordingHandler captures dispatched messages for inspection
// and answers with a preconfigured status.
type recordingHandler struct {
	lock    sync.Mutex
	answer  Status
	writes  []*WriteMsg
	views   []*ViewMsg
	clocks  []vclock.VClock
	senders []string
}

func (h *recordingHandler) HandleWrite(sender string, wr *WriteMsg, clock vclock.VClock) Status {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.senders = append(h.senders, sender)
	h.writes = append(h.writes, wr)
	h.clocks = append(h.clocks, clock)
	return h.answer
}

func (h *recordingHandler) HandleViewChange(sender string, vw *ViewMsg) Status {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.senders = append(h.senders, sender)
	h.views = append(h.views, vw)
	return h.answer
}

func (h *recordingHandler) HandleSnapshot(sender string, sn *SnapshotMsg, clock vclock.VClock) Status {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.senders = append(h.senders, sender)
	h.clocks = append(h.clocks, clock)
	return h.answer
}

// Functions

// testLogger returns a logfmt logger for use in tests.
func testLogger() log.Logger {
	return log.NewLogfmtLogger(log.NewSyncWriter(os.Stdout))
}

// TestSendReceive executes an integration test on one sender
// and one receiver exchanging a replicated write over TCP.
func TestSendReceive(t *testing.T) {

	socket, err := net.Listen("tcp", "127.0.0.1:0")
	assert.Nil(t, err)

	handler := &recordingHandler{answer: StatusReplaced}
	recv := InitReceiver(testLogger(), socket, handler)
	defer recv.Shutdown()

	sender := InitSender(testLogger(), 2*time.Second)

	msg := InitMsg()
	msg.Sender = "10.10.0.2:8090"
	msg.VClock = vclock.VClock{"10.10.0.2:8090": 1}
	msg.Payload = MarshalWrite(&WriteMsg{
		Key:   "x",
		Value: []byte("1"),
	})

	status, err := sender.Send(socket.Addr().String(), msg)
	assert.Nil(t, err)
	assert.Equal(t, StatusReplaced, status)

	handler.lock.Lock()
	defer handler.lock.Unlock()
	assert.Equal(t, 1, len(handler.writes))
	assert.Equal(t, "x", handler.writes[0].Key)
	assert.Equal(t, []byte("1"), handler.writes[0].Value)
	assert.Equal(t, vclock.VClock{"10.10.0.2:8090": 1}, handler.clocks[0])
	assert.Equal(t, "10.10.0.2:8090", handler.senders[0])
}

// TestSendUnreachable executes an integration test on the
// sender's classification of connection failures.
func TestSendUnreachable(t *testing.T) {

	// Grab a free port and close it again so that nothing
	// listens there.
	socket, err := net.Listen("tcp", "127.0.0.1:0")
	assert.Nil(t, err)
	addr := socket.Addr().String()
	socket.Close()

	sender := InitSender(testLogger(), 500*time.Millisecond)

	msg := InitMsg()
	msg.Sender = "10.10.0.2:8090"
	msg.Payload = MarshalView(&ViewMsg{Action: ViewRemove, Addr: "10.10.0.3:8090", NoRebroadcast: true})

	_, err = sender.Send(addr, msg)
	assert.True(t, IsUnreachable(err))
}

// TestReceiverRejectsGarbage executes an integration test on the
// receiver's handling of out-of-protocol input.
func TestReceiverRejectsGarbage(t *testing.T) {

	socket, err := net.Listen("tcp", "127.0.0.1:0")
	assert.Nil(t, err)

	handler := &recordingHandler{answer: StatusCreated}
	recv := InitReceiver(testLogger(), socket, handler)
	defer recv.Shutdown()

	conn, err := net.Dial("tcp", socket.Addr().String())
	assert.Nil(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("complete garbage\r\n"))
	assert.Nil(t, err)

	answer := make([]byte, 64)
	n, err := conn.Read(answer)
	assert.Nil(t, err)

	status, err := ParseStatus(trimLine(string(answer[:n])))
	assert.Nil(t, err)
	assert.Equal(t, StatusInvalid, status)

	// Nothing reached the handler.
	handler.lock.Lock()
	defer handler.lock.Unlock()
	assert.Equal(t, 0, len(handler.senders))
}
