package node

import (
	"net"
	"os"
	"testing"
	"time"

	"github.com/aneangel/CSE138-Assignment3/comm"
	"github.com/aneangel/CSE138-Assignment3/config"
	"github.com/aneangel/CSE138-Assignment3/vclock"
	"github.com/aneangel/CSE138-Assignment3/view"
	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

// Structs

// replica bundles one fully wired test replica.
type replica struct {
	addr    string
	service Service
	recv    *comm.Receiver
}

// Functions

// testLogger returns a logfmt logger for use in tests.
func testLogger() log.Logger {
	return log.NewLogfmtLogger(log.NewSyncWriter(os.Stdout))
}

// testConfig returns a config with timing knobs tightened for
// test runs.
func testConfig(addr string, peers []string) *config.Config {

	conf := &config.Config{
		Replica: config.Replica{
			Addr:  addr,
			Peers: peers,
		},
		Timeouts: config.Timeouts{
			ConnectMS:      500,
			RetryBackoffMS: 50,
			RetryAttempts:  2,
			PollIntervalMS: 100,
		},
		Limits: config.Limits{
			KeyBytes:   50,
			ValueBytes: 1000,
		},
	}

	return conf
}

// startReplica spins up one replica listening on a free local
// port and returns it together with its address.
func startReplica(t *testing.T, peers []string) *replica {

	t.Helper()

	socket, err := net.Listen("tcp", "127.0.0.1:0")
	assert.Nil(t, err)

	addr := socket.Addr().String()

	svc := NewService(testLogger(), NewMetrics(""), testConfig(addr, peers))
	recv := comm.InitReceiver(testLogger(), socket, svc)

	return &replica{
		addr:    addr,
		service: svc,
		recv:    recv,
	}
}

// eventually polls the supplied condition until it holds or the
// deadline passes.
func eventually(t *testing.T, cond func() bool, msg string) {

	t.Helper()

	deadline := time.Now().Add(5 * time.Second)

	for time.Now().Before(deadline) {

		if cond() {
			return
		}

		time.Sleep(25 * time.Millisecond)
	}

	t.Fatalf("condition never held: %s", msg)
}

// TestPutGetSingleReplica executes a unit test on the client
// operations of a replica without peers.
func TestPutGetSingleReplica(t *testing.T) {

	svc := NewService(testLogger(), NewMetrics(""), testConfig("r1", nil))
	defer svc.Shutdown()

	// First write creates the key.
	outcome, err := svc.Put("x", []byte("1"), nil)
	assert.Nil(t, err)
	assert.Equal(t, comm.StatusCreated, outcome.Status)
	assert.Equal(t, vclock.VClock{"r1": 1}, outcome.Clock)

	// Read back with the returned causal metadata.
	read, err := svc.Get("x", outcome.Clock)
	assert.Nil(t, err)
	assert.Equal(t, comm.StatusFound, read.Status)
	assert.Equal(t, []byte("1"), read.Value)
	assert.True(t, read.Clock.AtLeast(outcome.Clock))

	// Second write replaces.
	outcome, err = svc.Put("x", []byte("2"), read.Clock)
	assert.Nil(t, err)
	assert.Equal(t, comm.StatusReplaced, outcome.Status)

	// Delete tombstones, a following read reports not found.
	deleted, err := svc.Delete("x", outcome.Clock)
	assert.Nil(t, err)
	assert.Equal(t, comm.StatusDeleted, deleted.Status)

	read, err = svc.Get("x", deleted.Clock)
	assert.Nil(t, err)
	assert.Equal(t, comm.StatusNotFound, read.Status)

	// A later write strictly extends the clock history.
	outcome, err = svc.Put("x", []byte("3"), deleted.Clock)
	assert.Nil(t, err)
	assert.Equal(t, vclock.VClock{"r1": 4}, outcome.Clock)
}

// TestValidation executes a unit test on input validation of
// client operations.
func TestValidation(t *testing.T) {

	svc := NewService(testLogger(), NewMetrics(""), testConfig("r1", nil))
	defer svc.Shutdown()

	longKey := make([]byte, 51)
	for i := range longKey {
		longKey[i] = 'k'
	}

	_, err := svc.Put(string(longKey), []byte("1"), nil)
	assert.Equal(t, ErrInvalidInput, errors.Cause(err))

	_, err = svc.Put("", []byte("1"), nil)
	assert.Equal(t, ErrInvalidInput, errors.Cause(err))

	_, err = svc.Put("x", nil, nil)
	assert.Equal(t, ErrInvalidInput, errors.Cause(err))

	longValue := make([]byte, 1001)
	_, err = svc.Put("x", longValue, nil)
	assert.Equal(t, ErrInvalidInput, errors.Cause(err))

	// Deleting a key that never existed is reported.
	outcome, err := svc.Delete("x", nil)
	assert.Nil(t, err)
	assert.Equal(t, comm.StatusNotFound, outcome.Status)
}

// TestMembership executes a unit test on the membership
// operations of a replica without peers.
func TestMembership(t *testing.T) {

	svc := NewService(testLogger(), NewMetrics(""), testConfig("r1", nil))
	defer svc.Shutdown()

	result, err := svc.AddMember("r2")
	assert.Nil(t, err)
	assert.Equal(t, "added", result)

	// Adding twice is idempotent and does not re-broadcast.
	result, err = svc.AddMember("r2")
	assert.Nil(t, err)
	assert.Equal(t, "already present", result)
	assert.Equal(t, []string{"r1", "r2"}, svc.ListMembers())

	// Removing an unknown member fails, view unchanged.
	err = svc.RemoveMember("r9")
	assert.Equal(t, view.ErrNoSuchReplica, err)
	assert.Equal(t, []string{"r1", "r2"}, svc.ListMembers())

	err = svc.RemoveMember("r2")
	assert.Nil(t, err)
	assert.Equal(t, []string{"r1"}, svc.ListMembers())
}

// TestReplicationAcrossReplicas executes an integration test on
// three replicas replicating writes over TCP.
func TestReplicationAcrossReplicas(t *testing.T) {

	r1 := startReplica(t, nil)
	r2 := startReplica(t, nil)
	r3 := startReplica(t, nil)

	for _, r := range []*replica{r1, r2, r3} {
		defer r.service.Shutdown()
		defer r.recv.Shutdown()
	}

	// Peers are usually seeded via config, here the addresses
	// only exist after binding, so seed via the membership
	// operations which are idempotent under the cross-product.
	for _, r := range []*replica{r1, r2, r3} {
		for _, other := range []*replica{r1, r2, r3} {
			if other.addr != r.addr {
				r.service.AddMember(other.addr)
			}
		}
	}

	// A read expecting history nobody has observed yet is turned
	// away as a causality failure.
	_, err := r2.service.Get("x", vclock.VClock{r1.addr: 1})
	assert.NotNil(t, err)

	// Write at r1, fan-out completes before Put returns.
	outcome, err := r1.service.Put("x", []byte("1"), nil)
	assert.Nil(t, err)
	assert.Equal(t, comm.StatusCreated, outcome.Status)
	assert.Equal(t, vclock.VClock{r1.addr: 1}, outcome.Clock)

	// The same read now succeeds at both peers.
	for _, r := range []*replica{r2, r3} {
		read, err := r.service.Get("x", outcome.Clock)
		assert.Nil(t, err)
		assert.Equal(t, comm.StatusFound, read.Status)
		assert.Equal(t, []byte("1"), read.Value)
		assert.True(t, read.Clock.AtLeast(outcome.Clock))
	}

	// Deletes replicate the same way.
	deleted, err := r1.service.Delete("x", outcome.Clock)
	assert.Nil(t, err)

	read, err := r3.service.Get("x", deleted.Clock)
	assert.Nil(t, err)
	assert.Equal(t, comm.StatusNotFound, read.Status)
}

// TestFailureRecovery executes an integration test on peer
// failure detection, view convergence and background recovery.
func TestFailureRecovery(t *testing.T) {

	r1 := startReplica(t, nil)
	r2 := startReplica(t, nil)
	r3 := startReplica(t, nil)

	defer r1.service.Shutdown()
	defer r3.service.Shutdown()
	defer r1.recv.Shutdown()
	defer r3.recv.Shutdown()

	for _, r := range []*replica{r1, r2, r3} {
		for _, other := range []*replica{r1, r2, r3} {
			if other.addr != r.addr {
				r.service.AddMember(other.addr)
			}
		}
	}

	// Take r2 off the network.
	r2.recv.Shutdown()

	// The write still succeeds, r2 is detected as unreachable
	// and dropped from the views of r1 and r3.
	outcome, err := r1.service.Put("x", []byte("1"), nil)
	assert.Nil(t, err)
	assert.Equal(t, comm.StatusCreated, outcome.Status)

	assert.ElementsMatch(t, []string{r1.addr, r3.addr}, r1.service.ListMembers())
	eventually(t, func() bool {
		return len(r3.service.ListMembers()) == 2
	}, "r3 never removed the unreachable replica from its view")

	// More writes accepted while r2 is away.
	outcome, err = r1.service.Put("y", []byte("2"), nil)
	assert.Nil(t, err)

	// Bring r2 back under its old address.
	socket, err := net.Listen("tcp", r2.addr)
	assert.Nil(t, err)

	recv := comm.InitReceiver(testLogger(), socket, r2.service)
	defer recv.Shutdown()
	defer r2.service.Shutdown()

	// The recovery poller pushes a snapshot, r2 catches up and
	// all three views reconverge.
	eventually(t, func() bool {
		entries, _ := r2.service.Dump()
		_, hasX := entries["x"]
		_, hasY := entries["y"]
		return hasX && hasY
	}, "r2 never received the recovery snapshot")

	eventually(t, func() bool {
		return len(r1.service.ListMembers()) == 3 &&
			len(r2.service.ListMembers()) == 3 &&
			len(r3.service.ListMembers()) == 3
	}, "views never reconverged after recovery")

	// r2 serves the caught-up state.
	read, err := r2.service.Get("x", outcome.Clock.Copy())
	assert.Nil(t, err)
	assert.Equal(t, comm.StatusFound, read.Status)
	assert.Equal(t, []byte("1"), read.Value)
}
