package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/encodeous/lsr/core"
	"github.com/encodeous/lsr/perf"
	"github.com/encodeous/lsr/vnet"
	"github.com/spf13/cobra"
)

var (
	metricsAddr   string
	logDir        string
	statsInterval time.Duration
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Runs a scenario in real time",
	Long: `Every router runs on its own goroutine and links deliver packets after their latency.
Runs until duration_ms passes, forever when it is 0. Send SIGINT or Ctrl+C to stop early.`,
	Run: func(cmd *cobra.Command, args []string) {
		sc := readScenario()
		file := logFile()
		if file != nil {
			defer file.Close()
		}
		logger := core.NewLogger("lsr", level(), file)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if metricsAddr != "" {
			// perf and expvar register on the default mux
			srv := &http.Server{Addr: metricsAddr}
			go func() {
				err := srv.ListenAndServe()
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("metrics server failed", "error", err)
				}
			}()
			defer srv.Close()
			logger.Info("serving metrics", "url", fmt.Sprintf("http://%s/debug/metrics", metricsAddr))
		}

		if statsInterval > 0 {
			go perf.ReportProcess(ctx, logger, statsInterval)
		}

		n, err := vnet.FromScenario(sc, vnet.Options{
			Level:   level(),
			LogFile: file,
			LogDir:  logDir,
		})
		if err != nil {
			panic(err)
		}
		defer n.Stop()

		probes, unsubscribe := n.Subscribe()
		done := make(chan struct{})
		go func() {
			for {
				select {
				case p := <-probes:
					logger.Info(p.(vnet.Probe).String())
				case <-done:
					return
				}
			}
		}()

		logger.Info("lsr is running. To gracefully exit, send SIGINT or Ctrl+C.", "nodes", len(sc.Nodes), "links", len(sc.Links))
		err = n.Run(ctx, sc, logger)
		close(done)
		unsubscribe()
		if err != nil && ctx.Err() == nil {
			panic(err)
		}

		for _, id := range n.Nodes() {
			out, err := n.Debug(id)
			if err != nil {
				panic(err)
			}
			fmt.Println(out)
			fmt.Println()
		}
	},
	GroupID: "lsr",
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&metricsAddr, "metrics", "m", "", "serve metrics at this address, e.g. localhost:6060")
	runCmd.Flags().StringVar(&logDir, "log-dir", "", "write a rotated log file per node into this directory")
	runCmd.Flags().DurationVar(&statsInterval, "stats", 0, "log process cpu and memory usage at this interval, e.g. 10s")
}
