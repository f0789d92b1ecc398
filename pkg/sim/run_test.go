package sim

import (
	"bytes"
	"net"
	"strings"
	"testing"
	"time"

	"lifty/pkg/dispatcher"
	"lifty/pkg/emitter"
)

// newTestSim wires a Sim to a real loopback UDP event socket (so Emitter's
// dial succeeds) and a buffer standing in for stdout, without binding the
// command port — tests drive process() directly instead of going through
// ListenCommands/ReadTerminal.
func newTestSim(t *testing.T) (*Sim, *bytes.Buffer, *net.UDPConn) {
	t.Helper()
	evConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("listen events: %v", err)
	}
	t.Cleanup(func() { evConn.Close() })

	var buf bytes.Buffer
	em, err := emitter.New(evConn.LocalAddr().String(), &buf, nil)
	if err != nil {
		t.Fatalf("emitter.New: %v", err)
	}
	t.Cleanup(func() { em.Close() })

	return New(em, nil), &buf, evConn
}

func recvEvent(t *testing.T, conn *net.UDPConn) string {
	t.Helper()
	buf := make([]byte, 64)
	conn.SetReadDeadline(time.Now().Add(time.Second))
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("reading event datagram: %v", err)
	}
	return string(buf[:n])
}

func TestProcess_ResetRendersStatusLine(t *testing.T) {
	s, buf, _ := newTestSim(t)
	s.process(workItem{kind: workCommand, source: dispatcher.Terminal, raw: "R"})

	if !strings.Contains(buf.String(), "[ FLOOR 1 | CLOSED   -- | P:----- | U:----- | D:----- ] :") {
		t.Fatalf("status line missing from terminal output: %q", buf.String())
	}
}

func TestProcess_PanelSetEmitsEventAndStatus(t *testing.T) {
	s, buf, evConn := newTestSim(t)
	s.process(workItem{kind: workCommand, source: dispatcher.Terminal, raw: "R"})
	buf.Reset()

	s.process(workItem{kind: workCommand, source: dispatcher.Terminal, raw: "P2"})

	if got := recvEvent(t, evConn); got != "P2" {
		t.Errorf("event datagram = %q, want P2", got)
	}
	if !strings.Contains(buf.String(), "P:-2---") {
		t.Errorf("status line missing updated panel: %q", buf.String())
	}
}

func TestProcess_UDPSourceGetsRecvPrefix(t *testing.T) {
	s, buf, _ := newTestSim(t)
	s.process(workItem{kind: workCommand, source: dispatcher.Terminal, raw: "R"})
	buf.Reset()

	s.process(workItem{kind: workCommand, source: dispatcher.UDP, raw: "P3"})

	if !strings.Contains(buf.String(), "recv: P3") {
		t.Errorf("UDP-sourced command not echoed with recv prefix: %q", buf.String())
	}
}

func TestProcess_UnrecognizedCommandNoCrashNoEvent(t *testing.T) {
	s, buf, evConn := newTestSim(t)
	s.process(workItem{kind: workCommand, source: dispatcher.Terminal, raw: "R"})
	buf.Reset()

	s.process(workItem{kind: workCommand, source: dispatcher.Terminal, raw: "ZZ"})

	if !strings.Contains(buf.String(), "unknown command: ZZ") {
		t.Errorf("expected unrecognized-command notice, got %q", buf.String())
	}
	evConn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	buf2 := make([]byte, 8)
	if _, _, err := evConn.ReadFromUDP(buf2); err == nil {
		t.Error("unrecognized command unexpectedly emitted an event datagram")
	}
}

func TestProcess_CrashWritesCrashLineThenStatus(t *testing.T) {
	s, buf, _ := newTestSim(t)
	s.process(workItem{kind: workCommand, source: dispatcher.Terminal, raw: "R"})
	buf.Reset()

	s.process(workItem{kind: workCommand, source: dispatcher.Terminal, raw: "ID1"})

	out := buf.String()
	if !strings.Contains(out, "CRASH! : No down indicator light on bottom floor") {
		t.Errorf("missing crash line: %q", out)
	}
	if !strings.Contains(out, "| CRASH    -- |") {
		t.Errorf("status line does not reflect CRASH: %q", out)
	}

	// Further commands besides R are rejected while crashed.
	buf.Reset()
	s.process(workItem{kind: workCommand, source: dispatcher.Terminal, raw: "P1"})
	if strings.Contains(buf.String(), "CRASH!") {
		t.Errorf("second crash line emitted for a no-op command while crashed: %q", buf.String())
	}
}

func TestDrain_ProcessesQueuedItemsBeforeStopping(t *testing.T) {
	s, buf, _ := newTestSim(t)
	s.workCh <- workItem{kind: workCommand, source: dispatcher.Terminal, raw: "R"}
	s.workCh <- workItem{kind: workCommand, source: dispatcher.Terminal, raw: "P4"}

	s.drain()

	if !strings.Contains(buf.String(), "P:---4-") {
		t.Errorf("drain did not process queued command typed before EOF: %q", buf.String())
	}
}
