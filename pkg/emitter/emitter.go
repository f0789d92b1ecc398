// Package emitter implements the Event Emitter component (§4.4): it
// serializes physical events to UDP datagrams for the external control
// program, and writes the terminal's audit trail — status lines, the
// crash line, the "recv: " echo of UDP-originated commands, and
// unrecognized-command notices. All of it is written by a single caller
// (the main loop's consumer), which is what keeps stdout free of
// interleaving per spec §5.
package emitter

import (
	"fmt"
	"io"
	"log/slog"
	"net"

	"lifty/pkg/hardware"
)

// Emitter transmits events to the configured UDP endpoint and writes the
// terminal trace.
type Emitter struct {
	conn   *net.UDPConn
	out    io.Writer
	logger *slog.Logger
}

// New dials the UDP event endpoint (§6: fixed at 127.0.0.1:11000, passed
// in by the caller as a constant) and wraps out (normally os.Stdout) for
// the terminal trace.
func New(eventAddr string, out io.Writer, logger *slog.Logger) (*Emitter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	addr, err := net.ResolveUDPAddr("udp", eventAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve event endpoint %s: %w", eventAddr, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial event endpoint %s: %w", eventAddr, err)
	}
	return &Emitter{conn: conn, out: out, logger: logger}, nil
}

// Close releases the UDP socket.
func (e *Emitter) Close() error {
	return e.conn.Close()
}

// Emit transmits a single wire event (§6) as one UDP datagram, with no
// trailing newline. A send failure is reported once to the terminal and
// otherwise swallowed — per §4.4 the simulator never blocks waiting for a
// consumer.
func (e *Emitter) Emit(event string) {
	if _, err := e.conn.Write([]byte(event)); err != nil {
		e.logger.Warn("event send failed", "event", event, "error", err)
		fmt.Fprintf(e.out, "warning: failed to send event %q: %v\n", event, err)
	}
}

// Recv echoes a command received over UDP to the terminal, prefixed per
// §4.3 so it is visually distinguishable from locally-typed commands.
func (e *Emitter) Recv(raw string) {
	fmt.Fprintf(e.out, "recv: %s\n", raw)
}

// Unrecognized writes the one-line notice for malformed/unknown input
// (§7 category 2). msg is normally the error text from dispatcher.Parse.
func (e *Emitter) Unrecognized(msg string) {
	fmt.Fprintln(e.out, msg)
}

// Crash writes the "CRASH! : <reason>" line, immediately preceding the
// status line that follows it in the same command/timer processing step,
// per §6.
func (e *Emitter) Crash(reason string) {
	fmt.Fprintln(e.out, hardware.RenderCrashLine(reason))
}

// Status writes the bit-exact status line for the given snapshot.
func (e *Emitter) Status(s *hardware.HardwareState) {
	fmt.Fprintln(e.out, hardware.RenderStatusLine(s))
}
