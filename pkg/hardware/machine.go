package hardware

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"lifty/pkg/timer"
)

// Result is what a single Apply/HandleTimer call produced: zero or more
// wire events (§6) to transmit in order, and whether this call is the one
// that just crashed the car.
type Result struct {
	Events      []string
	Crashed     bool
	CrashReason string
}

// TimerFireFunc is how StateMachine asks its owner to re-enqueue a timer
// firing onto the single main-loop work queue (§4.6) rather than act on it
// directly from the timer goroutine. gen is the generation token the
// caller must present back to HandleTimer.
type TimerFireFunc func(ch timer.Channel, gen uint64)

// StateMachine is the sole mutator of HardwareState (§4.2). Apply and
// HandleTimer are meant to be called one at a time by a single consumer
// (§5); the mutex here guards concurrent Snapshot reads (e.g. from an
// observability process) rather than the single-writer invariant itself.
type StateMachine struct {
	mu     sync.RWMutex
	state  *HardwareState
	clock  *timer.Clock
	onFire TimerFireFunc
	logger *slog.Logger
}

// NewStateMachine wires a StateMachine to its Clock and its timer-fire
// re-enqueue callback.
func NewStateMachine(clock *timer.Clock, onFire TimerFireFunc, logger *slog.Logger) *StateMachine {
	if logger == nil {
		logger = slog.Default()
	}
	return &StateMachine{
		state:  NewHardwareState(),
		clock:  clock,
		onFire: onFire,
		logger: logger,
	}
}

// Snapshot returns a coherent copy of the current hardware state.
func (m *StateMachine) Snapshot() HardwareState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.state
}

// Apply applies a single command atomically per §4.2: a precondition
// check, then either a crash or a state update plus timer scheduling, with
// the resulting events reported back for the caller to transmit and
// render.
func (m *StateMachine) Apply(cmd Command) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.state
	if s.Crashed && cmd.Kind != Reset {
		m.logger.Debug("command rejected: crashed", "kind", cmd.Kind, "raw", cmd.Raw)
		return Result{}
	}

	switch cmd.Kind {
	case PanelSet:
		s.Panel[cmd.Floor] = true
		return Result{Events: []string{fmt.Sprintf("P%d", cmd.Floor)}}
	case HallUpSet:
		s.HallUp[cmd.Floor] = true
		return Result{Events: []string{fmt.Sprintf("U%d", cmd.Floor)}}
	case HallDownSet:
		s.HallDown[cmd.Floor] = true
		return Result{Events: []string{fmt.Sprintf("D%d", cmd.Floor)}}
	case PanelClear:
		s.Panel[cmd.Floor] = false
		return Result{}
	case HallUpClear:
		s.HallUp[cmd.Floor] = false
		return Result{}
	case HallDownClear:
		s.HallDown[cmd.Floor] = false
		return Result{}
	case IndicatorUp:
		if cmd.Floor == MaxFloor {
			return m.crash(ReasonNoUpOnTop)
		}
		s.Indicators[cmd.Floor] = IndUp
		return Result{}
	case IndicatorDown:
		if cmd.Floor == MinFloor {
			return m.crash(ReasonNoDownOnBottom)
		}
		s.Indicators[cmd.Floor] = IndDown
		return Result{}
	case IndicatorClear:
		s.Indicators[cmd.Floor] = IndNone
		return Result{}
	case MoveUp:
		return m.startMove(MotorUp)
	case MoveDown:
		return m.startMove(MotorDown)
	case Stop:
		return m.stop()
	case DoorOpenCmd:
		return m.doorOpenCmd()
	case DoorCloseCmd:
		return m.doorCloseCmd()
	case Reset:
		return m.doReset()
	default:
		return Result{}
	}
}

// HandleTimer processes a timer firing that was previously re-enqueued via
// TimerFireFunc. gen must still be the live generation for ch or the fire
// is silently discarded (see timer.Clock.Schedule's doc comment for why
// this second check, beyond the one Clock already performs, is needed).
func (m *StateMachine) HandleTimer(ch timer.Channel, gen uint64) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.clock.IsCurrent(ch, gen) {
		m.logger.Debug("ignoring stale timer fire", "channel", ch)
		return Result{}
	}

	switch ch {
	case timer.Motor:
		return m.handleFloorTimer()
	case timer.Door:
		return m.handleDoorTimer()
	default:
		return Result{}
	}
}

func (m *StateMachine) startMove(dir MotorState) Result {
	s := m.state
	if s.Door != DoorClosed {
		return m.crash(ReasonDoorOpenWhileMoving)
	}
	if s.Motor != MotorIdle {
		return m.crash(ReasonAlreadyMoving)
	}
	if dir == MotorUp && s.Floor == MaxFloor {
		return m.crash(ReasonHitRoof)
	}
	if dir == MotorDown && s.Floor == MinFloor {
		return m.crash(ReasonHitBasement)
	}

	s.Motor = dir
	s.travelDir = dir
	m.scheduleFloor()
	return Result{}
}

func (m *StateMachine) stop() Result {
	s := m.state
	switch s.Motor {
	case MotorUp, MotorDown:
		s.Motor = MotorStopping
		return Result{}
	case MotorStopping:
		// Re-entrant stop while already stopping is a no-op, not a crash
		// (spec §9's resolution of its own open question).
		return Result{}
	default:
		return m.crash(ReasonStopWhileIdle)
	}
}

func (m *StateMachine) doorOpenCmd() Result {
	s := m.state
	if s.Motor != MotorIdle {
		return m.crash(ReasonDoorWhileMoving)
	}
	if s.Door != DoorClosed {
		return m.crash(ReasonDoorAlreadyOpen)
	}
	s.Door = DoorOpening
	m.scheduleDoor(DoorOpenDuration)
	return Result{}
}

func (m *StateMachine) doorCloseCmd() Result {
	s := m.state
	if s.Motor != MotorIdle {
		return m.crash(ReasonDoorWhileMoving)
	}
	if s.Door != DoorOpen {
		return m.crash(ReasonDoorAlreadyClosed)
	}
	s.Door = DoorClosing
	m.scheduleDoor(DoorCloseDuration)
	return Result{}
}

func (m *StateMachine) doReset() Result {
	m.clock.Cancel(timer.Motor)
	m.clock.Cancel(timer.Door)
	m.state.reset()
	return Result{}
}

// handleFloorTimer is §4.2.3's "Floor-timer fires" clause. travelDir
// (rather than Motor itself) supplies the direction because Motor may
// already read Stopping by the time this fires — the car keeps travelling
// in whatever direction it was going until the arrival that follows a
// Stop request, per §4.2.3's "timer keeps running".
func (m *StateMachine) handleFloorTimer() Result {
	s := m.state
	if s.Motor == MotorIdle {
		return Result{}
	}

	switch s.travelDir {
	case MotorUp:
		s.Floor++
	case MotorDown:
		s.Floor--
	}

	if s.Floor > MaxFloor {
		s.Floor = MaxFloor
		return m.crash(ReasonHitRoof)
	}
	if s.Floor < MinFloor {
		s.Floor = MinFloor
		return m.crash(ReasonHitBasement)
	}

	events := []string{fmt.Sprintf("F%d", s.Floor)}
	if s.Motor == MotorStopping {
		s.Motor = MotorIdle
		events = append(events, fmt.Sprintf("S%d", s.Floor))
		return Result{Events: events}
	}

	m.scheduleFloor()
	return Result{Events: events}
}

func (m *StateMachine) handleDoorTimer() Result {
	s := m.state
	switch s.Door {
	case DoorOpening:
		s.Door = DoorOpen
		return Result{Events: []string{fmt.Sprintf("O%d", s.Floor)}}
	case DoorClosing:
		s.Door = DoorClosed
		return Result{Events: []string{fmt.Sprintf("C%d", s.Floor)}}
	default:
		return Result{}
	}
}

func (m *StateMachine) scheduleFloor() {
	m.clock.Schedule(timer.Motor, TravelFloor, func(gen uint64) {
		m.onFire(timer.Motor, gen)
	})
}

func (m *StateMachine) scheduleDoor(d time.Duration) {
	m.clock.Schedule(timer.Door, d, func(gen uint64) {
		m.onFire(timer.Door, gen)
	})
}

func (m *StateMachine) crash(reason string) Result {
	m.state.Crashed = true
	m.state.CrashReason = reason
	m.logger.Warn("safety interlock violated", "reason", reason, "floor", m.state.Floor)
	return Result{Crashed: true, CrashReason: reason}
}
