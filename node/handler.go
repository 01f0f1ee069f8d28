package node

import (
	"github.com/aneangel/CSE138-Assignment3/comm"
	"github.com/aneangel/CSE138-Assignment3/store"
	"github.com/aneangel/CSE138-Assignment3/vclock"
	"github.com/aneangel/CSE138-Assignment3/view"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// Functions

// HandleWrite applies a write replicated by a peer through the
// same admission gate every other mutation passes. Replicated
// writes are never rebroadcast, the origin already fanned them
// out to all members.
func (s *service) HandleWrite(sender string, wr *comm.WriteMsg, clock vclock.VClock) comm.Status {

	logger := log.With(s.logger, "method", "SYNC-WRITE", "sender", sender, "subject", wr.Key)

	err := s.store.ApplyReplicated(wr.Key, wr.Value, clock)
	if err == store.ErrCausalityNotSatisfied {
		level.Info(logger).Log("msg", "replicated write rejected by causal gate, missing earlier writes")
		return comm.StatusCausality
	}

	level.Debug(logger).Log("msg", "replicated write applied")

	if wr.Value == nil {
		return comm.StatusDeleted
	}

	return comm.StatusReplaced
}

// HandleViewChange applies a membership event replicated by a
// peer. Events not flagged no-rebroadcast are spread to the other
// members exactly once, flagged again so fan-out cannot loop.
func (s *service) HandleViewChange(sender string, vw *comm.ViewMsg) comm.Status {

	logger := log.With(s.logger, "method", "SYNC-VIEW", "sender", sender, "subject", vw.Addr)

	switch vw.Action {

	case comm.ViewAdd:

		if err := s.view.Add(vw.Addr); err == view.ErrAlreadyPresent {
			return comm.StatusReplaced
		}

		level.Info(logger).Log("msg", "replica added to view")

		if !vw.NoRebroadcast {
			s.broadcastView(logger, comm.ViewAdd, vw.Addr, s.view.Others(vw.Addr, sender))
		}

		return comm.StatusCreated

	case comm.ViewRemove:

		if err := s.view.Remove(vw.Addr); err != nil {
			return comm.StatusNotFound
		}

		level.Info(logger).Log("msg", "replica removed from view")

		if !vw.NoRebroadcast {
			s.broadcastView(logger, comm.ViewRemove, vw.Addr, s.view.Others(vw.Addr, sender))
		}

		return comm.StatusDeleted

	default:
		return comm.StatusInvalid
	}
}

// HandleSnapshot installs a full recovery snapshot pushed by a
// peer that kept operating while this replica was unreachable.
// The pushed state replaces local state wholesale.
func (s *service) HandleSnapshot(sender string, sn *comm.SnapshotMsg, clock vclock.VClock) comm.Status {

	logger := log.With(s.logger, "method", "SYNC-SNAPSHOT", "sender", sender)

	s.store.Install(sn.Entries, clock)

	// The pushing replica evidently is alive and part of the
	// group again from our perspective.
	_ = s.view.Add(sender)

	level.Info(logger).Log(
		"msg", "recovery snapshot installed",
		"entries", len(sn.Entries),
	)

	return comm.StatusReplaced
}
