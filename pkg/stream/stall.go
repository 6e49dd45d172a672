package stream

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// stallMonitor watches a decode for two silence conditions: no bytes at all
// since the stream started, and bytes flowing (keep-alives) without any data
// frame. Both are diagnostic; neither fails the stream.
//
// The timers fire on their own goroutines, so callbacks only log and flag.
// The single allowed output side effect, the liveness placeholder, is
// requested via a flag that the decode loop consumes on its own goroutine,
// keeping all event emission single-threaded.
type stallMonitor struct {
	log       *zap.Logger
	startWarn time.Duration
	dataWarn  time.Duration

	mu           sync.Mutex
	bytesSeen    bool
	warnedNoData bool
	placeholder  bool
	stopped      bool
	startTimer   *time.Timer
	dataTimer    *time.Timer
}

func newStallMonitor(startWarn, dataWarn time.Duration, log *zap.Logger) *stallMonitor {
	return &stallMonitor{
		log:       log,
		startWarn: startWarn,
		dataWarn:  dataWarn,
	}
}

// start arms both timers. It is called once, when the decode begins.
func (m *stallMonitor) start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startTimer = time.AfterFunc(m.startWarn, m.onStartStall)
	m.dataTimer = time.AfterFunc(m.dataWarn, m.onDataStall)
}

// noteBytes records transport activity of any kind.
func (m *stallMonitor) noteBytes() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.bytesSeen {
		m.bytesSeen = true
		m.startTimer.Stop()
	}
}

// noteData records a data frame, pushing the data-stall deadline out.
func (m *stallMonitor) noteData() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.dataTimer.Reset(m.dataWarn)
}

// stop disarms both timers. It runs on every exit path so no timer outlives
// its decode.
func (m *stallMonitor) stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.stopped = true
	if m.startTimer != nil {
		m.startTimer.Stop()
	}
	if m.dataTimer != nil {
		m.dataTimer.Stop()
	}
}

// takePlaceholder reports whether a data stall has requested the liveness
// placeholder, clearing the request. At most one request is ever made.
func (m *stallMonitor) takePlaceholder() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.placeholder {
		return false
	}
	m.placeholder = false
	return true
}

func (m *stallMonitor) onStartStall() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped || m.bytesSeen {
		return
	}
	m.log.Warn("no bytes received since stream start",
		zap.Duration("threshold", m.startWarn),
	)
}

func (m *stallMonitor) onDataStall() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped || !m.bytesSeen || m.warnedNoData {
		return
	}
	m.warnedNoData = true
	m.placeholder = true
	m.log.Warn("bytes arriving but no data frames",
		zap.Duration("threshold", m.dataWarn),
	)
}
