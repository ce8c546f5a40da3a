// Package heartbeat drives the wall-clock slot tick of spec §4.9: a
// single-threaded timer fires on each second boundary, computes the slot
// index, tracks scheduling drift for lag telemetry, and invokes the
// engine's on_tick callback. Grounded on spec §4.9/§5 ("the heartbeat,
// gossip callbacks, and HTTP serving are multiplexed on one cooperative
// loop") and on the teacher's own long-lived dispatch shape in
// core/network.go's ListenAndServe (a single goroutine blocking on its
// one source of events).
package heartbeat

import (
	"context"
	"time"

	logrus "github.com/sirupsen/logrus"

	"github.com/pea-chain/peacashd/internal/params"
)

// Ticker is the engine-facing callback: invoked once per second boundary
// with the computed slot index. Errors are logged by the caller, never
// fatal to the heartbeat loop itself (only StoreIO inside append is
// fatal, per spec §7, and that is the engine's concern, not the clock's).
type Ticker func(slot uint64) error

// lagWindowSize bounds the moving average of scheduling drift exposed via
// Lag(); spec §4.9 calls for "a short moving window", not an unbounded
// history.
const lagWindowSize = 16

// Heartbeat fires Ticker once per BLOCK_TIME_MIN boundary and records the
// drift between the expected and observed fire time in a short moving
// window for lag telemetry.
type Heartbeat struct {
	genesisTime time.Time
	tick        Ticker
	now         func() time.Time
	after       func(time.Duration) <-chan time.Time

	log *logrus.Entry

	lagWindow [lagWindowSize]time.Duration
	lagCount  int
	lagNext   int
}

// New returns a Heartbeat that computes slots relative to genesisTime.
func New(genesisTime time.Time, tick Ticker) *Heartbeat {
	return &Heartbeat{
		genesisTime: genesisTime,
		tick:        tick,
		now:         time.Now,
		after:       time.After,
		log:         logrus.WithField("component", "heartbeat"),
	}
}

// Slot returns the slot index for wall-clock instant t: (t -
// genesis_time) / BLOCK_TIME_MIN, floored, clamped to zero before
// genesis.
func (h *Heartbeat) Slot(t time.Time) uint64 {
	d := t.Sub(h.genesisTime)
	if d < 0 {
		return 0
	}
	return uint64(d / params.BlockTimeMin)
}

// expected returns the wall-clock instant slot s is scheduled to begin.
func (h *Heartbeat) expected(s uint64) time.Time {
	return h.genesisTime.Add(time.Duration(s) * params.BlockTimeMin)
}

// recordLag pushes one drift sample into the moving window.
func (h *Heartbeat) recordLag(d time.Duration) {
	h.lagWindow[h.lagNext] = d
	h.lagNext = (h.lagNext + 1) % lagWindowSize
	if h.lagCount < lagWindowSize {
		h.lagCount++
	}
}

// Lag returns the average observed scheduling drift over the current
// moving window, zero if no tick has fired yet.
func (h *Heartbeat) Lag() time.Duration {
	if h.lagCount == 0 {
		return 0
	}
	var sum time.Duration
	for i := 0; i < h.lagCount; i++ {
		sum += h.lagWindow[i]
	}
	return sum / time.Duration(h.lagCount)
}

// Run blocks, firing Ticker once per BLOCK_TIME_MIN boundary, until ctx is
// canceled. This is the heartbeat's one suspension point in spec §5's
// three-suspension-point model; the engine loop's other two (gossip,
// HTTP) are driven by internal/p2p and internal/api respectively.
func (h *Heartbeat) Run(ctx context.Context) {
	next := h.Slot(h.now()) + 1
	for {
		wait := h.expected(next).Sub(h.now())
		if wait > 0 {
			select {
			case <-ctx.Done():
				return
			case <-h.after(wait):
			}
		}

		fired := h.now()
		h.recordLag(fired.Sub(h.expected(next)))

		if err := h.tick(next); err != nil {
			h.log.Warnf("tick %d: %v", next, err)
		}
		next++

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}
