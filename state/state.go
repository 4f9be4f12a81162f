package state

import (
	"context"
	"log/slog"
	"sync/atomic"
)

type NyModule interface {
	Init(s *State) error
	Cleanup(s *State) error
}

// State access must be done only on a single Goroutine
type State struct {
	*Env
	*RouterState
	Modules map[string]NyModule
}

// Env can be read from any Goroutine
type Env struct {
	DispatchChannel chan<- func(s *State) error
	NodeCfg
	Context  context.Context
	Cancel   context.CancelCauseFunc
	Log      *slog.Logger
	Started  atomic.Bool
	Stopping atomic.Bool
}

// NodeCfg is what a single router needs to start.
type NodeCfg struct {
	Id        NodeId
	Heartbeat Millis
	Tick      Millis // how often the heartbeat timer is checked
	LogPath   string `yaml:"log_path,omitempty"`
}
