package kiosk

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// spyLifecycle counts StreamLifecycle calls.
type spyLifecycle struct {
	mu        sync.Mutex
	active    bool
	calls     []string
	initErr   error
	initCount int
	starts    int
	teardowns int
}

func (s *spyLifecycle) Initialize(StreamEndpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "initialize")
	s.initCount++
	if s.initErr != nil {
		return s.initErr
	}
	if s.active {
		return ErrSessionActive
	}
	s.active = true
	return nil
}

func (s *spyLifecycle) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "start")
	s.starts++
	return nil
}

func (s *spyLifecycle) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "teardown")
	s.teardowns++
	s.active = false
}

func (s *spyLifecycle) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

type binderFixture struct {
	engine  *fakeEngine
	ctrl    *StreamController
	timer   *IdleTimerCoordinator
	clock   *MockClock
	display *fakeDisplay
	binder  *LifecycleBinder
}

func newBinderFixture(t *testing.T, mutate func(*ControllerConfig)) *binderFixture {
	t.Helper()
	f := &binderFixture{
		engine:  &fakeEngine{},
		clock:   NewMockClock(t0),
		display: &fakeDisplay{},
	}
	f.ctrl = newTestController(f.engine, mutate)
	t.Cleanup(f.ctrl.Close)
	f.timer = NewIdleTimerCoordinator(f.clock, testLog, nil)
	f.binder = NewLifecycleBinder(f.ctrl, f.timer, f.display, testEndpoint, testLog, nil)
	return f
}

func TestParseHostSignal(t *testing.T) {
	for in, want := range map[string]HostSignal{
		"created":   SignalCreated,
		"ACTIVE":    SignalActive,
		" inactive": SignalInactive,
		"destroyed": SignalDestroyed,
	} {
		got, err := ParseHostSignal(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseHostSignal("paused")
	assert.ErrorIs(t, err, ErrUnknownSignal)
}

func TestLifecycleBinder_Dispatch_unknown(t *testing.T) {
	b := NewLifecycleBinder(&spyLifecycle{}, NewIdleTimerCoordinator(nil, testLog, nil), &fakeDisplay{}, testEndpoint, testLog, nil)
	assert.ErrorIs(t, b.Dispatch(HostSignal("resumed")), ErrUnknownSignal)
}

func TestLifecycleBinder_OnCreated_attaches_display(t *testing.T) {
	f := newBinderFixture(t, nil)

	f.binder.OnCreated()

	assert.True(t, f.timer.Snapshot().Attached)
	assert.Zero(t, f.engine.runtimeCount(), "no stream action on create")
}

func TestLifecycleBinder_OnActive_back_to_back(t *testing.T) {
	spy := &spyLifecycle{}
	b := NewLifecycleBinder(spy, NewIdleTimerCoordinator(nil, testLog, nil), &fakeDisplay{}, testEndpoint, testLog, nil)

	require.NoError(t, b.OnActive())
	require.NoError(t, b.OnActive())

	assert.Equal(t, []string{"initialize", "start", "teardown", "initialize", "start"}, spy.calls)
}

func TestLifecycleBinder_OnActive_back_to_back_releases_engine(t *testing.T) {
	f := newBinderFixture(t, nil)

	require.NoError(t, f.binder.OnActive())
	first := f.engine.lastPlayer()
	require.NoError(t, f.binder.OnActive())

	assert.Equal(t, 2, f.engine.runtimeCount())
	assert.True(t, first.isReleased())
	assert.True(t, f.engine.runtime(0).isReleased())
	assert.Equal(t, 2, f.engine.liveHandles(), "one runtime and one player")
	assert.Equal(t, 1, f.engine.lastPlayer().playCount())
}

func TestLifecycleBinder_OnActive_engine_init_error(t *testing.T) {
	spy := &spyLifecycle{initErr: &EngineInitError{Stage: StageRuntime, Err: errors.New("no display")}}
	b := NewLifecycleBinder(spy, NewIdleTimerCoordinator(nil, testLog, nil), &fakeDisplay{}, testEndpoint, testLog, nil)

	err := b.OnActive()

	var initErr *EngineInitError
	require.True(t, errors.As(err, &initErr))
	assert.Equal(t, 1, spy.initCount, "not retried")
	assert.Zero(t, spy.starts)
}

func TestLifecycleBinder_reconnect_through_binder(t *testing.T) {
	f := newBinderFixture(t, nil)
	require.NoError(t, f.binder.OnActive())
	p := f.engine.lastPlayer()

	p.emit(Opening())
	p.emit(Stopped())
	require.Eventually(t, func() bool { return p.playCount() == 2 }, waitFor, tick)
	assert.Equal(t, p.mediaAt(0), p.mediaAt(1))

	p.emit(EndReached())
	require.Eventually(t, func() bool { return p.playCount() == 3 }, waitFor, tick)
	assert.Equal(t, p.mediaAt(0), p.mediaAt(2))
}

func TestLifecycleBinder_pointer_up_restarts_timer(t *testing.T) {
	f := newBinderFixture(t, nil)
	f.binder.OnCreated()
	require.NoError(t, f.binder.OnActive())

	assert.False(t, f.binder.OnPointerUp(), "input is never consumed")
	f.clock.Advance(5 * time.Second)
	assert.False(t, f.binder.OnPointerUp())
	// Touch twice within one clock reading.
	assert.False(t, f.binder.OnPointerUp())

	got := f.display.restartsSnapshot()
	require.Len(t, got, 3)
	assert.True(t, got[1].After(got[0]))
	assert.True(t, got[2].After(got[1]))
}

func TestLifecycleBinder_inactive_before_any_event(t *testing.T) {
	f := newBinderFixture(t, nil)
	require.NoError(t, f.binder.OnActive())
	first := f.ctrl.Status().SessionID
	p := f.engine.lastPlayer()

	f.binder.OnInactive()

	assert.False(t, f.ctrl.Active())
	assert.Zero(t, f.engine.liveHandles())
	assert.Zero(t, p.misuse())

	require.NoError(t, f.binder.OnActive())
	assert.True(t, f.ctrl.Active())
	assert.NotEqual(t, first, f.ctrl.Status().SessionID)
	assert.Equal(t, 1, f.engine.lastPlayer().playCount())
	assert.Equal(t, 2, f.engine.liveHandles())
}

func TestLifecycleBinder_destroyed_during_reconnect(t *testing.T) {
	f := newBinderFixture(t, nil)
	f.binder.OnCreated()
	require.NoError(t, f.binder.OnActive())
	f.binder.OnPointerUp()
	p := f.engine.lastPlayer()

	// Stopped is queued, and its reconnect races the teardown.
	p.emit(Stopped())
	f.binder.OnDestroyed()
	plays := p.playCount()

	assert.Never(t, func() bool { return p.playCount() != plays }, quiet, tick)
	assert.Zero(t, p.misuse(), "no start on a released player")
	assert.Zero(t, f.engine.liveHandles())
	assert.Equal(t, 1, f.display.stopCount())
	assert.False(t, f.timer.Snapshot().Attached)
}

func TestLifecycleBinder_destroyed_during_delayed_reconnect(t *testing.T) {
	f := newBinderFixture(t, func(cfg *ControllerConfig) {
		cfg.Reconnect = ReconnectPolicy{InitialDelay: 50 * time.Millisecond}
	})
	f.binder.OnCreated()
	require.NoError(t, f.binder.OnActive())
	p := f.engine.lastPlayer()

	p.emit(Stopped())
	require.Eventually(t, func() bool { return f.ctrl.Status().Phase == PhaseStopped }, waitFor, tick)
	f.binder.OnDestroyed()

	assert.Never(t, func() bool { return p.playCount() > 1 }, 150*time.Millisecond, tick)
	assert.Zero(t, p.misuse())
	assert.False(t, f.timer.Snapshot().Attached)
}
