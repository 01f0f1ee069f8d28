package node

import (
	"sync"
	"time"

	"github.com/aneangel/CSE138-Assignment3/comm"
	"github.com/aneangel/CSE138-Assignment3/vclock"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
)

// Functions

// broadcastWrite fans one locally accepted write out to all other
// current view members. Delivery to distinct peers is independent
// and unordered, each receiver's own causal gate decides admission.
// Only an out-of-protocol answer from a still-reachable peer fails
// the originating request.
func (s *service) broadcastWrite(logger log.Logger, key string, value []byte, clock vclock.VClock) error {

	msg := comm.InitMsg()
	msg.Sender = s.self
	msg.VClock = clock
	msg.Payload = comm.MarshalWrite(&comm.WriteMsg{
		Key:   key,
		Value: value,
	})

	return s.fanOut(logger, msg, s.view.Others(), true)
}

// broadcastView fans one membership event out to the supplied
// targets. Receivers are told not to rebroadcast, so the event
// reaches every member exactly once and fan-out cannot loop.
func (s *service) broadcastView(logger log.Logger, action string, addr string, targets []string) {

	msg := comm.InitMsg()
	msg.Sender = s.self
	msg.Payload = comm.MarshalView(&comm.ViewMsg{
		Action:        action,
		Addr:          addr,
		NoRebroadcast: true,
	})

	// Membership fan-out has no originating client request to
	// fail, unexpected answers only get logged by deliverTo.
	if err := s.fanOut(logger, msg, targets, false); err != nil {
		level.Error(logger).Log(
			"msg", "view change fan-out failed",
			"action", action,
			"addr", addr,
			"err", err,
		)
	}
}

// fanOut delivers msg to each target in its own goroutine and
// waits for all deliveries to settle. The first fatal delivery
// error is returned.
func (s *service) fanOut(logger log.Logger, msg *comm.Msg, targets []string, retryCausality bool) error {

	if len(targets) == 0 {
		level.Debug(logger).Log("msg", "no other view members, skipping broadcast")
		return nil
	}

	var wg sync.WaitGroup
	errc := make(chan error, len(targets))

	for _, addr := range targets {

		wg.Add(1)

		go func(addr string) {
			defer wg.Done()
			errc <- s.deliverTo(logger, addr, msg, retryCausality)
		}(addr)
	}

	wg.Wait()
	close(errc)

	for err := range errc {
		if err != nil {
			return err
		}
	}

	return nil
}

// deliverTo sends msg to one peer, absorbing the two expected
// failure modes: a causality rejection is retried with backoff
// up to the configured attempt bound, a connection failure hands
// the peer over to view removal plus background recovery. Any
// other failure is fatal to the caller.
func (s *service) deliverTo(logger log.Logger, addr string, msg *comm.Msg, retryCausality bool) error {

	for attempt := 1; ; attempt++ {

		// The peer may have left the view between snapshotting
		// the target list and this delivery.
		if !s.view.Contains(addr) {
			level.Info(logger).Log(
				"msg", "peer no longer in view, skipping delivery",
				"peer", addr,
			)
			return nil
		}

		start := time.Now()
		status, err := s.sender.Send(addr, msg)
		s.metrics.BroadcastsTotal.Add(1)
		s.metrics.BroadcastLatency.Observe(time.Since(start).Seconds())

		if err != nil {

			if comm.IsUnreachable(err) {
				s.handleUnreachable(logger, addr)
				return nil
			}

			return errors.Wrapf(err, "broadcasting to peer '%s' failed", addr)
		}

		if status == comm.StatusCausality {

			s.metrics.CausalityRejections.Add(1)

			if !retryCausality || attempt >= s.retryAttempts {
				// The peer converges through its own inbound
				// replication once the missing writes arrive.
				level.Warn(logger).Log(
					"msg", "peer keeps rejecting delivery for missing causal history, leaving it to catch up",
					"peer", addr,
					"attempts", attempt,
				)
				return nil
			}

			time.Sleep(s.retryBackoff)
			continue
		}

		// A remove may race with another replica's fan-out of
		// the same event, the peer then already converged.
		if status.Accepted() || status == comm.StatusNotFound {
			return nil
		}

		return errors.Errorf("peer '%s' answered broadcast with '%s'", addr, status)
	}
}

// handleUnreachable removes a peer that failed on the connection
// level from the view, spreads the removal to the remaining
// members and starts the background recovery task for the peer.
func (s *service) handleUnreachable(logger log.Logger, addr string) {

	err := s.view.Remove(addr)
	if err != nil {
		// A concurrent delivery already removed the peer, only
		// make sure recovery is running.
		s.startPoller(addr)
		return
	}

	level.Warn(logger).Log(
		"msg", "could not reach replica, removing from view",
		"peer", addr,
	)
	s.metrics.PeersRemoved.Add(1)

	s.broadcastView(logger, comm.ViewRemove, addr, s.view.Others(addr))

	s.startPoller(addr)
}
