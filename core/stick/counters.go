package stick

import (
	"time"

	"github.com/Megallm/ultrabalancer-sub000/core/atomicx"
)

// rateCounter is one decaying-window rate: on each update, if a full
// window or more elapsed since the last, the accumulated count resets to
// zero; otherwise it is scaled down by the elapsed fraction of the window.
// The new sample is added after that.
type rateCounter struct {
	count  atomicx.Int64
	lastNS atomicx.Int64
}

func (r *rateCounter) add(n int64, now int64, window time.Duration) {
	last := r.lastNS.Load()
	if last != 0 && window > 0 {
		elapsed := now - last
		if elapsed >= int64(window) {
			r.count.Store(0)
		} else if elapsed > 0 {
			// scale down by the elapsed fraction of the window
			kept := r.count.Load() * (int64(window) - elapsed) / int64(window)
			r.count.Store(kept)
		}
	}
	r.lastNS.Store(now)
	r.count.Add(n)
}

func (r *rateCounter) value() int64 { return r.count.Load() }

// Counters is the per-entry counter bundle: monotonic totals, current
// gauges, decaying rates and the two general-purpose counters.
type Counters struct {
	ConnCnt    atomicx.Int64
	ConnCur    atomicx.Int64
	SessCnt    atomicx.Int64
	HTTPReqCnt atomicx.Int64
	HTTPErrCnt atomicx.Int64
	BytesIn    atomicx.Int64
	BytesOut   atomicx.Int64
	GPC0       atomicx.Int64
	GPC1       atomicx.Int64

	connRate    rateCounter
	sessRate    rateCounter
	httpReqRate rateCounter
	httpErrRate rateCounter
}

// Counters exposes the entry's counter bundle for direct atomic updates.
func (e *Entry) Counters() *Counters { return &e.counters }

// TrackConn records one new connection through this entry.
func (t *Table) TrackConn(e *Entry) {
	now := t.clock.NowNano()
	e.counters.ConnCnt.Add(1)
	e.counters.ConnCur.Add(1)
	e.counters.connRate.add(1, now, t.decayWindow)
}

// TrackConnClose balances a prior TrackConn.
func (t *Table) TrackConnClose(e *Entry, bytesIn, bytesOut int64) {
	e.counters.ConnCur.Add(-1)
	e.counters.BytesIn.Add(bytesIn)
	e.counters.BytesOut.Add(bytesOut)
}

// TrackSession records one new session.
func (t *Table) TrackSession(e *Entry) {
	now := t.clock.NowNano()
	e.counters.SessCnt.Add(1)
	e.counters.sessRate.add(1, now, t.decayWindow)
}

// TrackHTTPRequest records one request and, if failed, one error.
func (t *Table) TrackHTTPRequest(e *Entry, failed bool) {
	now := t.clock.NowNano()
	e.counters.HTTPReqCnt.Add(1)
	e.counters.httpReqRate.add(1, now, t.decayWindow)
	if failed {
		e.counters.HTTPErrCnt.Add(1)
		e.counters.httpErrRate.add(1, now, t.decayWindow)
	}
}

// ConnRate returns the decayed connection rate over the table's window.
func (e *Entry) ConnRate() int64 { return e.counters.connRate.value() }

// SessRate returns the decayed session rate.
func (e *Entry) SessRate() int64 { return e.counters.sessRate.value() }

// HTTPReqRate returns the decayed request rate.
func (e *Entry) HTTPReqRate() int64 { return e.counters.httpReqRate.value() }

// HTTPErrRate returns the decayed error rate.
func (e *Entry) HTTPErrRate() int64 { return e.counters.httpErrRate.value() }
