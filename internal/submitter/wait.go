package submitter

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

// await blocks until sig is confirmed at the requested level or reported
// failed, or until ctx ends. Polling always runs; a notifier, when present,
// only shortens the wait.
func (s *Submitter) await(ctx context.Context, sig solana.Signature, opts Options, logger *zap.Logger) (Status, error) {
	var (
		updates    <-chan Status
		subscribed chan subscription
	)
	if s.notifier != nil {
		subCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		subscribed = make(chan subscription, 1)
		go func() {
			ch, err := s.notifier.SubscribeSignature(subCtx, sig, opts.Commitment)
			subscribed <- subscription{updates: ch, err: err}
		}()
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return Status{}, ctx.Err()

		case sub := <-subscribed:
			subscribed = nil
			if sub.err != nil {
				logger.Debug("signature subscription unavailable, polling only", zap.Error(sub.err))
				continue
			}
			updates = sub.updates

		case st, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			if terminal(st, opts.Commitment) {
				logger.Debug("status pushed", zap.Stringer("state", st.State), zap.Uint64("slot", st.Slot))
				return st, nil
			}

		case <-timer.C:
			st, err := s.endpoint.QueryStatus(ctx, sig, opts.Commitment)
			switch {
			case err != nil:
				if ctx.Err() == nil {
					logger.Debug("status query failed", zap.Error(err))
				}
			case terminal(st, opts.Commitment):
				logger.Debug("status polled", zap.Stringer("state", st.State), zap.Uint64("slot", st.Slot))
				return st, nil
			}
			timer.Reset(opts.PollInterval)
		}
	}
}

type subscription struct {
	updates <-chan Status
	err     error
}

// terminal reports whether st ends the wait. A confirmation reported at a
// lower level than required counts as pending.
func terminal(st Status, required Commitment) bool {
	switch st.State {
	case StatusFailed:
		return true
	case StatusConfirmed:
		return st.Commitment == "" || st.Commitment.Satisfies(required)
	default:
		return false
	}
}
