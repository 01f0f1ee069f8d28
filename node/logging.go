package node

import (
	"github.com/aneangel/CSE138-Assignment3/comm"
	"github.com/aneangel/CSE138-Assignment3/store"
	"github.com/aneangel/CSE138-Assignment3/vclock"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// Structs

type loggingService struct {
	logger  log.Logger
	service Service
}

// Functions

// NewLoggingService wraps a provided existing service with the
// provided logger.
func NewLoggingService(s Service, logger log.Logger) Service {

	return &loggingService{
		logger:  logger,
		service: s,
	}
}

// Put wraps this service's Put method with added logging
// capabilities.
func (s *loggingService) Put(key string, value []byte, meta vclock.VClock) (*Outcome, error) {

	outcome, err := s.service.Put(key, value, meta)

	logger := log.With(s.logger,
		"method", "PUT",
		"key", key,
	)

	if err != nil {
		level.Info(logger).Log("msg", "failed to perform operation PUT", "err", err)
	} else {
		level.Debug(logger).Log("status", outcome.Status)
	}

	return outcome, err
}

// Get wraps this service's Get method with added logging
// capabilities.
func (s *loggingService) Get(key string, meta vclock.VClock) (*Outcome, error) {

	outcome, err := s.service.Get(key, meta)

	logger := log.With(s.logger,
		"method", "GET",
		"key", key,
	)

	if err != nil {
		level.Info(logger).Log("msg", "failed to perform operation GET", "err", err)
	} else {
		level.Debug(logger).Log("status", outcome.Status)
	}

	return outcome, err
}

// Delete wraps this service's Delete method with added logging
// capabilities.
func (s *loggingService) Delete(key string, meta vclock.VClock) (*Outcome, error) {

	outcome, err := s.service.Delete(key, meta)

	logger := log.With(s.logger,
		"method", "DELETE",
		"key", key,
	)

	if err != nil {
		level.Info(logger).Log("msg", "failed to perform operation DELETE", "err", err)
	} else {
		level.Debug(logger).Log("status", outcome.Status)
	}

	return outcome, err
}

// AddMember wraps this service's AddMember method with added
// logging capabilities.
func (s *loggingService) AddMember(addr string) (string, error) {

	result, err := s.service.AddMember(addr)

	logger := log.With(s.logger,
		"method", "ADD-MEMBER",
		"addr", addr,
	)

	if err != nil {
		level.Info(logger).Log("msg", "failed to add replica to view", "err", err)
	} else {
		level.Debug(logger).Log("result", result)
	}

	return result, err
}

// RemoveMember wraps this service's RemoveMember method with
// added logging capabilities.
func (s *loggingService) RemoveMember(addr string) error {

	err := s.service.RemoveMember(addr)

	logger := log.With(s.logger,
		"method", "REMOVE-MEMBER",
		"addr", addr,
	)

	if err != nil {
		level.Info(logger).Log("msg", "failed to remove replica from view", "err", err)
	} else {
		level.Debug(logger).Log()
	}

	return err
}

// ListMembers wraps this service's ListMembers method with added
// logging capabilities.
func (s *loggingService) ListMembers() []string {
	return s.service.ListMembers()
}

// Announce wraps this service's Announce method with added
// logging capabilities.
func (s *loggingService) Announce() {

	level.Debug(s.logger).Log(
		"method", "Announce",
		"msg", "introducing this replica to its peers",
	)

	s.service.Announce()
}

// Dump wraps this service's Dump method with added logging
// capabilities.
func (s *loggingService) Dump() (map[string]store.Entry, vclock.VClock) {
	return s.service.Dump()
}

// Shutdown wraps this service's Shutdown method with added
// logging capabilities.
func (s *loggingService) Shutdown() {
	s.service.Shutdown()
}

// HandleWrite wraps this service's HandleWrite method with added
// logging capabilities.
func (s *loggingService) HandleWrite(sender string, wr *comm.WriteMsg, clock vclock.VClock) comm.Status {
	return s.service.HandleWrite(sender, wr, clock)
}

// HandleViewChange wraps this service's HandleViewChange method
// with added logging capabilities.
func (s *loggingService) HandleViewChange(sender string, vw *comm.ViewMsg) comm.Status {
	return s.service.HandleViewChange(sender, vw)
}

// HandleSnapshot wraps this service's HandleSnapshot method with
// added logging capabilities.
func (s *loggingService) HandleSnapshot(sender string, sn *comm.SnapshotMsg, clock vclock.VClock) comm.Status {
	return s.service.HandleSnapshot(sender, sn, clock)
}
