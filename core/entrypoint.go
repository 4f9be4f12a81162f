package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"reflect"
	"runtime"
	"time"

	"github.com/encodeous/lsr/perf"
	"github.com/encodeous/lsr/state"
	"github.com/encodeous/tint"
	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"
)

var ErrNodeStopped = errors.New("node stopped")

// NewLogger builds a console logger prefixed with the node id, additionally writing to file when it is not nil.
func NewLogger(prefix string, level slog.Level, file io.Writer) *slog.Logger {
	handlers := make([]slog.Handler, 0)
	handlers = append(handlers,
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:        level,
			AddSource:    false,
			CustomPrefix: prefix,
			ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
				if attr.Key == "time" {
					return slog.Attr{}
				}
				return attr
			},
		}))
	if file != nil {
		handlers = append(handlers, slog.NewTextHandler(file, &slog.HandlerOptions{Level: level}).
			WithAttrs([]slog.Attr{slog.String("node", prefix)}))
	}
	return slog.New(slogmulti.Fanout(handlers...))
}

// OpenLogFile opens a size rotated log file, creating its directory.
func OpenLogFile(logPath string) (*lumberjack.Logger, error) {
	err := os.MkdirAll(path.Dir(logPath), 0700)
	if err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	return &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    state.LogMaxSizeMB,
		MaxBackups: state.LogMaxBackups,
	}, nil
}

// Node is a router running its own dispatch loop.
type Node struct {
	*state.Env
	Router *LinkStateRouter
	Routes *RouteTrace
	done   chan struct{}
}

// Start initializes the router modules and runs the main loop in the background until ctx is
// cancelled or Stop is called.
func Start(ctx context.Context, cfg state.NodeCfg, t Transport, logger *slog.Logger) (*Node, error) {
	err := state.NodeConfigValidator(&cfg)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancelCause(ctx)
	dispatch := make(chan func(env *state.State) error, state.DispatchBacklog)

	s := &state.State{
		Modules: make(map[string]state.NyModule),
		Env: &state.Env{
			Context:         ctx,
			Cancel:          cancel,
			DispatchChannel: dispatch,
			NodeCfg:         cfg,
			Log:             logger,
		},
	}

	s.Log.Debug("init modules")
	router := &LinkStateRouter{Transport: t}
	trace := &RouteTrace{}
	err = initModules(s, trace, router)
	if err != nil {
		cancel(err)
		return nil, fmt.Errorf("init node %s: %w", cfg.Id, err)
	}
	s.Log.Debug("init modules complete")

	n := &Node{
		Env:    s.Env,
		Router: router,
		Routes: trace,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(n.done)
		_ = MainLoop(s, dispatch)
	}()
	return n, nil
}

// Stop cancels the node and waits for its main loop to exit.
func (n *Node) Stop() {
	n.Cancel(ErrNodeStopped)
	<-n.done
}

func (n *Node) Done() <-chan struct{} {
	return n.done
}

func initModules(s *state.State, modules ...state.NyModule) error {
	for _, module := range modules {
		s.Modules[reflect.TypeOf(module).String()] = module
		if err := module.Init(s); err != nil {
			return err
		}
	}
	return nil
}

func MainLoop(s *state.State, dispatch <-chan func(*state.State) error) error {
	s.Log.Debug("started main loop")
	s.Started.Store(true)
	for {
		select {
		case fun := <-dispatch:
			if fun == nil {
				goto endLoop
			}
			start := time.Now()
			err := fun(s)
			if err != nil {
				s.Log.Error("error occurred during dispatch: ", "error", err)
				s.Cancel(err)
			}
			elapsed := time.Since(start)
			perf.DispatchLatency.Add(float64(elapsed.Microseconds()))
			if elapsed > time.Millisecond*4 {
				s.Log.Warn("dispatch took a long time!", "fun", runtime.FuncForPC(reflect.ValueOf(fun).Pointer()).Name(), "elapsed", elapsed, "len", len(dispatch))
			}
		case <-s.Context.Done():
			goto endLoop
		}
	}
endLoop:
	s.Log.Debug("stopped main loop", "reason", context.Cause(s.Context).Error())
	Stop(s)
	return nil
}

// Stop cancels the node and cleans up its modules. The dispatch channel is left open, late
// dispatches observe the cancelled context and are dropped.
func Stop(s *state.State) {
	if s.Stopping.Swap(true) {
		return // don't stop twice
	}
	s.Cancel(context.Canceled)
	s.Log.Debug("cleaning up modules")
	for moduleName, module := range s.Modules {
		err := module.Cleanup(s)
		if err != nil {
			s.Log.Error("error occurred during Stop: ", "module", moduleName, "error", err)
		}
	}
	s.Log.Debug("stopped")
}
