package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/campuslink/network/pkg/realtime"
)

// signalSource translates SIGUSR1/SIGUSR2 into lifecycle phases.
type signalSource struct {
	phases chan realtime.Phase
}

func newSignalSource() *signalSource {
	s := &signalSource{phases: make(chan realtime.Phase, 1)}
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGUSR1, syscall.SIGUSR2)
	go func() {
		for sig := range sigs {
			switch sig {
			case syscall.SIGUSR1:
				s.phases <- realtime.PhaseBackground
			case syscall.SIGUSR2:
				s.phases <- realtime.PhaseForeground
			}
		}
	}()
	return s
}

func (s *signalSource) Events() <-chan realtime.Phase { return s.phases }
