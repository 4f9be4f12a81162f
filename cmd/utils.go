package cmd

import (
	"io"
	"log/slog"

	"github.com/encodeous/lsr/core"
	"github.com/encodeous/lsr/state"
)

func level() slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// logFile opens the --log file, or returns nil when it is not set.
func logFile() io.WriteCloser {
	if logPath == "" {
		return nil
	}
	lj, err := core.OpenLogFile(logPath)
	if err != nil {
		panic(err)
	}
	return lj
}

func readScenario() *state.Scenario {
	sc, err := state.ReadScenario(scenarioPath)
	if err != nil {
		panic(err)
	}
	return sc
}

// defaultEnd leaves five heartbeats after the last event for the network to settle.
func defaultEnd(sc *state.Scenario) state.Millis {
	if sc.Duration != 0 {
		return sc.Duration
	}
	end := state.Millis(0)
	for _, ev := range sc.Events {
		end = max(end, ev.At)
	}
	return end + 5*sc.Heartbeat
}
