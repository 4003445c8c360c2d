package session

import (
	"errors"
	"time"

	"github.com/meszmate/filibuster/internal/core"
	"github.com/meszmate/filibuster/internal/xmpp/vcard"
)

// fetchQueue is the background profile-card fetcher: an ordered set
// of pending keys drained stack-wise with a single fetch in flight
// and a fixed pause between requests, so the fetch traffic never
// floods the server or blocks the session's processing path.
//
// All methods run on the session's processing goroutine; only the
// transport completion crosses goroutines and is posted back.
type fetchQueue struct {
	s        *Session
	pending  []core.Identity
	inFlight bool
	delay    time.Duration
}

func newFetchQueue(s *Session, delay time.Duration) *fetchQueue {
	return &fetchQueue{s: s, delay: delay}
}

// enqueue appends a key unless it is already pending.
func (q *fetchQueue) enqueue(key core.Identity) {
	for _, k := range q.pending {
		if k == key {
			return
		}
	}
	q.pending = append(q.pending, key)
}

// drain starts fetching if nothing is in flight. The most recently
// enqueued key is fetched first.
func (q *fetchQueue) drain() {
	if q.inFlight {
		return
	}
	for len(q.pending) > 0 {
		key := q.pending[len(q.pending)-1]
		q.pending = q.pending[:len(q.pending)-1]

		address, ok := q.fetchAddress(key)
		if !ok {
			// Contact left the directory while queued.
			continue
		}

		q.inFlight = true
		epoch := q.s.epoch
		q.s.transport.FetchProfile(address, func(card vcard.Card, err error) {
			q.s.post(func() { q.completed(epoch, key, card, err) })
		})
		return
	}
}

func (q *fetchQueue) fetchAddress(key core.Identity) (string, bool) {
	if key == core.SelfKey {
		self := q.s.dir.Self()
		if self == nil {
			return "", false
		}
		// An empty target fetches our own card.
		return "", true
	}
	c, ok := q.s.dir.Get(key)
	if !ok {
		return "", false
	}
	return c.Address, true
}

// completed applies one fetch result and schedules the next pop after
// the configured delay. Results from a previous session epoch are
// dropped: the directory behind them is gone.
func (q *fetchQueue) completed(epoch int, key core.Identity, card vcard.Card, err error) {
	if epoch != q.s.epoch {
		return
	}

	if err != nil {
		// Non-fatal: the profile fields stay unset.
		q.s.log.Warn("profile fetch for %q failed: %v", key, err)
	} else if applyErr := q.s.dir.ApplyProfile(key, card.FullName, card.Nickname, card.Avatar); applyErr != nil {
		if errors.Is(applyErr, core.ErrUnknownContact) {
			// Contact removed mid-flight; the result is stale.
			q.s.log.Debug("discarding profile for departed contact %q", key)
		} else {
			q.s.log.Warn("profile apply for %q failed: %v", key, applyErr)
		}
	}

	time.AfterFunc(q.delay, func() {
		q.s.post(func() {
			if epoch != q.s.epoch {
				return
			}
			q.inFlight = false
			q.drain()
		})
	})
}

// reset abandons pending and in-flight work on disconnect. A late
// completion is dropped by the epoch check.
func (q *fetchQueue) reset() {
	q.pending = nil
	q.inFlight = false
}
