package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// setupSignalHandler returns a channel that is closed when SIGINT or SIGTERM
// arrives. Paths already hashed are still reported; remaining ones are skipped.
func setupSignalHandler(errOut io.Writer) (<-chan struct{}, func()) {
	shutdown := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sigChan:
			fmt.Fprintf(errOut, "\nReceived signal: %v, stopping after current path\n", sig)
			close(shutdown)
		case <-done:
		}
		signal.Stop(sigChan)
	}()

	return shutdown, func() { close(done) }
}

func interrupted(shutdown <-chan struct{}) bool {
	select {
	case <-shutdown:
		return true
	default:
		return false
	}
}
