package node

import (
	"time"

	"github.com/aneangel/CSE138-Assignment3/comm"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// Functions

// startPoller launches the background recovery task for addr
// unless one is already running. The owning table guarantees at
// most one active poller per address, a second failure of the
// same peer never spawns a duplicate.
func (s *service) startPoller(addr string) {

	s.pollerLock.Lock()
	defer s.pollerLock.Unlock()

	if _, running := s.pollers[addr]; running {
		return
	}

	select {
	case <-s.shutdown:
		return
	default:
	}

	s.pollers[addr] = struct{}{}

	s.wg.Add(1)
	go s.pollReplica(addr)
}

// finishPoller releases the table slot of addr.
func (s *service) finishPoller(addr string) {

	s.pollerLock.Lock()
	defer s.pollerLock.Unlock()

	delete(s.pollers, addr)
}

// pollReplica pushes full state snapshots to an unreachable peer
// until one lands. Connection failures are retried indefinitely
// on a fixed interval, availability of the peer is worth more
// than promptness here. Once the peer answers, it is re-admitted
// into the view and the re-admission is spread to the remaining
// members, excluding the peer that just received the snapshot.
func (s *service) pollReplica(addr string) {

	defer s.wg.Done()
	defer s.finishPoller(addr)

	logger := log.With(s.logger, "task", "recovery", "peer", addr)

	level.Info(logger).Log("msg", "starting to poll unreachable replica")

	for {

		select {
		case <-s.shutdown:
			return
		default:
		}

		// Snapshot fresh on every attempt so that the peer
		// receives all writes accepted while it was away.
		entries, aggregate := s.store.Snapshot()

		msg := comm.InitMsg()
		msg.Sender = s.self
		msg.VClock = aggregate
		msg.Payload = comm.MarshalSnapshot(&comm.SnapshotMsg{Entries: entries})

		s.metrics.SnapshotPushes.Add(1)

		status, err := s.sender.Send(addr, msg)
		if err != nil {

			if comm.IsUnreachable(err) {

				level.Debug(logger).Log("msg", "replica still unreachable")

				select {
				case <-s.shutdown:
					return
				case <-time.After(s.pollInterval):
				}

				continue
			}

			// Anything beyond a connection failure points at a
			// protocol or state inconsistency retrying cannot
			// fix, surface it and stop this task.
			level.Error(logger).Log(
				"msg", "unexpected error while polling replica",
				"err", err,
			)
			return
		}

		if !status.Accepted() {
			level.Error(logger).Log(
				"msg", "replica rejected recovery snapshot",
				"status", status,
			)
			return
		}

		level.Info(logger).Log("msg", "successfully reached replica again")
		s.metrics.PeersRecovered.Add(1)

		// Re-admit the recovered peer. A concurrent inbound
		// view event may have beaten us to it.
		if err := s.view.Add(addr); err == nil {
			s.broadcastView(logger, comm.ViewAdd, addr, s.view.Others(addr))
		}

		return
	}
}
