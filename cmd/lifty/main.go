// Command lifty simulates the hardware of a single five-floor elevator
// car: the motor, the door, the panel/hall buttons, and the direction
// indicators. It takes commands from stdin and from a UDP port, and emits
// physical-event notifications to another UDP port for a separate control
// program to consume. See spec §6 for the CLI and wire contracts.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"lifty/pkg/emitter"
	"lifty/pkg/sim"
)

// Fixed network endpoints per §6 — there is no configuration surface.
const (
	commandAddr = "127.0.0.1:10000"
	eventAddr   = "127.0.0.1:11000"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	fmt.Println("Lifty — five-floor elevator hardware simulator")
	fmt.Printf("commands: stdin, or UDP %s | events: UDP %s\n", commandAddr, eventAddr)

	em, err := emitter.New(eventAddr, os.Stdout, logger)
	if err != nil {
		logger.Error("failed to start event emitter", "error", err)
		os.Exit(1)
	}
	defer em.Close()

	s := sim.New(em, logger)
	if err := s.ListenCommands(commandAddr); err != nil {
		logger.Error("failed to bind command port", "addr", commandAddr, "error", err)
		os.Exit(1)
	}
	defer s.Close()

	eof := make(chan struct{})
	go func() {
		s.ReadTerminal(os.Stdin)
		close(eof)
	}()

	s.Run(eof)
}
