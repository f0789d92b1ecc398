// Package sim is the Main Loop component (§4.6): it owns the single FIFO
// work queue, runs the stdin and UDP producers, and is the sole consumer
// that applies work items to the hardware state machine and renders the
// terminal trace. Nothing outside this package's consumer goroutine ever
// touches hardware.StateMachine.Apply/HandleTimer or writes to stdout,
// which is what gives the system its single-serialized-consumer semantics
// from spec §5 even though several goroutines feed it.
package sim

import (
	"bufio"
	"io"
	"log/slog"
	"net"
	"strings"

	"lifty/pkg/dispatcher"
	"lifty/pkg/emitter"
	"lifty/pkg/hardware"
	"lifty/pkg/timer"
)

// workKind tags what a workItem carries.
type workKind int

const (
	workCommand workKind = iota
	workTimer
)

// workItem is either a parsed-pending command string with its source, or a
// timer firing awaiting its second generation check.
type workItem struct {
	kind    workKind
	source  dispatcher.Source
	raw     string
	channel timer.Channel
	gen     uint64
}

// Sim wires the Clock, StateMachine, Emitter and command sources together
// and runs the single consumer loop.
type Sim struct {
	machine *hardware.StateMachine
	clock   *timer.Clock
	emitter *emitter.Emitter
	logger  *slog.Logger

	workCh  chan workItem
	cmdConn *net.UDPConn
}

// New builds a Sim ready to have its producers started and Run called.
func New(em *emitter.Emitter, logger *slog.Logger) *Sim {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sim{
		emitter: em,
		logger:  logger,
		workCh:  make(chan workItem, 64),
	}
	s.clock = timer.New(logger)
	s.machine = hardware.NewStateMachine(s.clock, s.onTimerFire, logger)
	return s
}

// onTimerFire is the hardware.TimerFireFunc passed to the StateMachine: it
// never touches state itself, only re-enqueues the firing for the single
// consumer to pick up, per §4.5/§5.
func (s *Sim) onTimerFire(ch timer.Channel, gen uint64) {
	s.workCh <- workItem{kind: workTimer, channel: ch, gen: gen}
}

// ListenCommands binds the UDP command port (§6) and starts its receive
// loop. Binding failure is the one fatal I/O error this package surfaces;
// the caller is expected to exit nonzero on it (§7 category 3).
func (s *Sim) ListenCommands(addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return err
	}
	s.cmdConn = conn
	go s.readUDP()
	return nil
}

// Close releases the UDP command listener.
func (s *Sim) Close() error {
	if s.cmdConn == nil {
		return nil
	}
	return s.cmdConn.Close()
}

func (s *Sim) readUDP() {
	buf := make([]byte, 512)
	for {
		n, _, err := s.cmdConn.ReadFromUDP(buf)
		if err != nil {
			// Socket closed at shutdown, or a genuine read error — either
			// way there is nothing left to listen for.
			s.logger.Debug("udp command listener stopped", "error", err)
			return
		}
		raw := strings.TrimSpace(string(buf[:n]))
		if raw == "" {
			continue
		}
		s.workCh <- workItem{kind: workCommand, source: dispatcher.UDP, raw: raw}
	}
}

// ReadTerminal scans in line by line, one command per line, until EOF.
// Blank lines are ignored per §4.3. It is meant to be run on its own
// goroutine; the caller should close a signal channel when it returns to
// tell Run to stop.
func (s *Sim) ReadTerminal(in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		s.workCh <- workItem{kind: workCommand, source: dispatcher.Terminal, raw: line}
	}
	// A read failure is treated as EOF per §7 category 3; scanner.Err()
	// is deliberately not distinguished from clean EOF here.
}

// Run is the single consumer: it drains workCh until eof is closed,
// applying each item to the state machine and rendering the terminal
// trace, in order, one at a time (§4.6).
func (s *Sim) Run(eof <-chan struct{}) {
	for {
		select {
		case <-eof:
			s.drain()
			return
		case item := <-s.workCh:
			s.process(item)
		}
	}
}

// drain processes any work items still queued at EOF so a command typed
// just before stdin closes is not silently lost.
func (s *Sim) drain() {
	for {
		select {
		case item := <-s.workCh:
			s.process(item)
		default:
			return
		}
	}
}

func (s *Sim) process(item workItem) {
	switch item.kind {
	case workCommand:
		if item.source == dispatcher.UDP {
			s.emitter.Recv(item.raw)
		}
		cmd, err := dispatcher.Parse(item.raw)
		if err != nil {
			s.emitter.Unrecognized(err.Error())
			return
		}
		s.finish(s.machine.Apply(cmd))
	case workTimer:
		s.finish(s.machine.HandleTimer(item.channel, item.gen))
	}
}

// finish transmits any events, writes the crash line if this step just
// crashed the car, and unconditionally refreshes the status line — the
// three closing actions §4.2(c) and §4.6 require of every applied command
// or timer firing.
func (s *Sim) finish(result hardware.Result) {
	for _, ev := range result.Events {
		s.emitter.Emit(ev)
	}
	if result.Crashed {
		s.emitter.Crash(result.CrashReason)
	}
	snap := s.machine.Snapshot()
	s.emitter.Status(&snap)
}
