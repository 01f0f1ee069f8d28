// Package node implements the request coordinator of one replica
// process: the single entry point through which client requests,
// peer-replicated operations and recovery tasks act on the shared
// store and view.
package node

import (
	"sync"
	"time"

	"github.com/aneangel/CSE138-Assignment3/comm"
	"github.com/aneangel/CSE138-Assignment3/config"
	"github.com/aneangel/CSE138-Assignment3/store"
	"github.com/aneangel/CSE138-Assignment3/vclock"
	"github.com/aneangel/CSE138-Assignment3/view"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
)

// Variables

// ErrInvalidInput reports a client request that violates the
// protocol limits. It is never retried.
var ErrInvalidInput = errors.New("improperly formatted request")

// Structs

// Outcome is the structured result of one client operation: the
// protocol outcome tag, the value for reads and the causal
// metadata the client has to carry into its next request.
type Outcome struct {
	Status comm.Status
	Value  []byte
	Clock  vclock.VClock
}

// Service defines the operations one replica offers to the
// network-request layer and, via the embedded comm.Handler, to
// its peer replicas.
type Service interface {
	comm.Handler

	// Put writes value under key, gated by the causal metadata
	// the client supplies, and replicates the accepted write to
	// all current view members.
	Put(key string, value []byte, meta vclock.VClock) (*Outcome, error)

	// Get reads key, admitted only once this replica has
	// observed at least the history named by meta.
	Get(key string, meta vclock.VClock) (*Outcome, error)

	// Delete tombstones key on the same causal path as Put.
	Delete(key string, meta vclock.VClock) (*Outcome, error)

	// AddMember inserts addr into the view and fans the event
	// out to every other current member.
	AddMember(addr string) (string, error)

	// RemoveMember deletes addr from the view and fans the
	// event out to the remaining members.
	RemoveMember(addr string) error

	// ListMembers returns the current view.
	ListMembers() []string

	// Announce introduces this replica to every statically known
	// peer so that replicas started later join the running group.
	Announce()

	// Dump returns all entries including tombstones together
	// with this replica's aggregate clock.
	Dump() (map[string]store.Entry, vclock.VClock)

	// Shutdown cancels all background recovery tasks and waits
	// for them to terminate.
	Shutdown()
}

type service struct {
	logger        log.Logger
	self          string
	store         *store.Store
	view          *view.View
	sender        *comm.Sender
	metrics       *Metrics
	retryAttempts int
	retryBackoff  time.Duration
	pollInterval  time.Duration
	maxKeyBytes   int
	maxValueBytes int

	pollerLock sync.Mutex
	pollers    map[string]struct{}
	wg         sync.WaitGroup
	shutdown   chan struct{}
}

// Functions

// NewService wires one replica's store, view and peer transport
// into a coordinator according to the supplied config.
func NewService(logger log.Logger, metrics *Metrics, conf *config.Config) Service {

	connectTimeout := time.Duration(conf.Timeouts.ConnectMS) * time.Millisecond

	return &service{
		logger:        logger,
		self:          conf.Replica.Addr,
		store:         store.InitStore(conf.Replica.Addr),
		view:          view.InitView(conf.Replica.Addr, conf.Replica.Peers),
		sender:        comm.InitSender(logger, connectTimeout),
		metrics:       metrics,
		retryAttempts: conf.Timeouts.RetryAttempts,
		retryBackoff:  time.Duration(conf.Timeouts.RetryBackoffMS) * time.Millisecond,
		pollInterval:  time.Duration(conf.Timeouts.PollIntervalMS) * time.Millisecond,
		maxKeyBytes:   conf.Limits.KeyBytes,
		maxValueBytes: conf.Limits.ValueBytes,
		pollers:       make(map[string]struct{}),
		shutdown:      make(chan struct{}),
	}
}

// validateKey checks a client-supplied key against the
// protocol limits.
func (s *service) validateKey(key string) error {

	if len(key) < 1 {
		return errors.Wrap(ErrInvalidInput, "key is missing")
	}

	if len(key) > s.maxKeyBytes {
		return errors.Wrap(ErrInvalidInput, "key is too long")
	}

	return nil
}

// validateValue checks a client-supplied value against the
// protocol limits.
func (s *service) validateValue(value []byte) error {

	if value == nil {
		return errors.Wrap(ErrInvalidInput, "value is missing in body")
	}

	if len(value) > s.maxValueBytes {
		return errors.Wrap(ErrInvalidInput, "value is too long")
	}

	return nil
}

// Put writes value under key and replicates the accepted write.
func (s *service) Put(key string, value []byte, meta vclock.VClock) (*Outcome, error) {

	logger := s.requestLogger("PUT", key)

	if err := s.validateKey(key); err != nil {
		return nil, err
	}
	if err := s.validateValue(value); err != nil {
		return nil, err
	}

	clock, existed, err := s.store.TryUpdate(key, value, meta)
	if err != nil {
		level.Info(logger).Log("msg", "write rejected by causal gate")
		return nil, err
	}

	status := comm.StatusCreated
	if existed {
		status = comm.StatusReplaced
	}

	// The write is committed locally at this point. Peers that
	// turn out unreachable during fan-out are handed over to
	// recovery and never fail this request.
	if err := s.broadcastWrite(logger, key, value, clock); err != nil {
		return nil, err
	}

	return &Outcome{Status: status, Clock: clock}, nil
}

// Get reads key under the causal gate.
func (s *service) Get(key string, meta vclock.VClock) (*Outcome, error) {

	logger := s.requestLogger("GET", key)

	if err := s.validateKey(key); err != nil {
		return nil, err
	}

	value, clock, err := s.store.Get(key, meta)
	if err == store.ErrCausalityNotSatisfied {
		level.Info(logger).Log("msg", "read rejected by causal gate")
		return nil, err
	}
	if err == store.ErrKeyNotFound {
		return &Outcome{Status: comm.StatusNotFound, Clock: clock}, nil
	}

	return &Outcome{Status: comm.StatusFound, Value: value, Clock: clock}, nil
}

// Delete tombstones key and replicates the accepted delete.
func (s *service) Delete(key string, meta vclock.VClock) (*Outcome, error) {

	logger := s.requestLogger("DELETE", key)

	if err := s.validateKey(key); err != nil {
		return nil, err
	}

	// Deleting a key that never held a value is reported, a
	// tombstone would only bloat causal history.
	if !s.store.Contains(key) {
		return &Outcome{Status: comm.StatusNotFound}, nil
	}

	clock, _, err := s.store.TryUpdate(key, nil, meta)
	if err != nil {
		level.Info(logger).Log("msg", "delete rejected by causal gate")
		return nil, err
	}

	if err := s.broadcastWrite(logger, key, nil, clock); err != nil {
		return nil, err
	}

	return &Outcome{Status: comm.StatusDeleted, Clock: clock}, nil
}

// AddMember inserts addr into the view and fans the event out.
func (s *service) AddMember(addr string) (string, error) {

	if addr == "" {
		return "", errors.Wrap(ErrInvalidInput, "socket-address is missing")
	}

	logger := s.requestLogger("ADD-MEMBER", addr)

	if err := s.view.Add(addr); err == view.ErrAlreadyPresent {
		return "already present", nil
	}

	level.Info(logger).Log("msg", "replica added to view")

	// Fan out once to every other member, flagged so that no
	// receiver rebroadcasts and the event cannot loop.
	s.broadcastView(logger, comm.ViewAdd, addr, s.view.Others(addr))

	return "added", nil
}

// RemoveMember deletes addr from the view and fans the event out
// to the remaining members.
func (s *service) RemoveMember(addr string) error {

	if addr == "" {
		return errors.Wrap(ErrInvalidInput, "socket-address is missing")
	}

	logger := s.requestLogger("REMOVE-MEMBER", addr)

	if err := s.view.Remove(addr); err != nil {
		return err
	}

	level.Info(logger).Log("msg", "replica removed from view")

	s.broadcastView(logger, comm.ViewRemove, addr, s.view.Others(addr))

	return nil
}

// ListMembers returns the current view.
func (s *service) ListMembers() []string {
	return s.view.Snapshot()
}

// Announce introduces this replica to every statically known peer.
// Peers that are down get handed to recovery and re-admit this
// replica through their own announcements later.
func (s *service) Announce() {

	logger := s.requestLogger("ANNOUNCE", s.self)

	s.broadcastView(logger, comm.ViewAdd, s.self, s.view.Others())
}

// Dump returns the whole store of this replica.
func (s *service) Dump() (map[string]store.Entry, vclock.VClock) {
	return s.store.Snapshot()
}

// Shutdown cancels all background recovery tasks and waits for
// them to terminate.
func (s *service) Shutdown() {

	close(s.shutdown)
	s.wg.Wait()
}

// requestLogger derives a per-request logger carrying a unique
// request ID for correlation across fan-out and recovery lines.
func (s *service) requestLogger(method string, subject string) log.Logger {

	return log.With(s.logger,
		"reqid", uuid.NewV4().String(),
		"method", method,
		"subject", subject,
	)
}
