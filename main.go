package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/launchdarkly/stdio-rpc-contract-tests/framework"
	"github.com/launchdarkly/stdio-rpc-contract-tests/rpctests"
	"github.com/launchdarkly/stdio-rpc-contract-tests/stdio"
)

func main() {
	// The target must be stopped even if we are interrupted, so these signals end the run
	// context rather than the process.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, out, errOut io.Writer) int {
	var params commandParams
	if !params.Read(args, errOut) {
		return 1
	}

	cases := rpctests.DefaultCases()
	if params.casesPath != "" {
		loaded, err := rpctests.LoadCases(params.casesPath)
		if err != nil {
			fmt.Fprintf(errOut, "Could not load test cases: %s\n", err)
			return 1
		}
		cases = loaded
	}

	mainDebugLogger := framework.NullLogger()
	if params.debugAll {
		mainDebugLogger = log.New(out, "", log.LstdFlags)
	}

	target := stdio.NewProcess(stdio.Config{
		Path:        params.serverPath,
		Args:        params.serverArgs,
		SettleDelay: params.settleDelay,
		GracePeriod: params.gracePeriod,
	}, mainDebugLogger)

	fmt.Fprintln(out, "========================================")
	fmt.Fprintln(out, "JSON-RPC Server Test Suite")
	fmt.Fprintln(out, "========================================")
	fmt.Fprintf(out, "Starting server: %s\n", target.CommandLine())
	fmt.Fprintln(out)
	framework.PrintFilterDescription(out, params.filters)

	testLogger := &ConsoleTestLogger{
		Out:                  out,
		DebugOutputOnFailure: params.debug || params.debugAll,
		DebugOutputOnSuccess: params.debugAll,
	}
	summary, err := rpctests.Run(ctx, startLogged{target, out}, cases, rpctests.Options{
		Filter:      params.filters.AsFilter,
		TestLogger:  testLogger,
		ReadTimeout: params.readTimeout,
	})
	interrupted := errors.Is(err, rpctests.ErrInterrupted)
	if err != nil && !interrupted {
		fmt.Fprintf(errOut, "ERROR: %s\n", err)
		return 1
	}
	if interrupted {
		fmt.Fprintln(errOut, "Run interrupted; the remaining tests were not run")
	}

	if err := rpctests.WriteReport(params.outputPath, summary); err != nil {
		fmt.Fprintf(errOut, "ERROR: %s\n", err)
		return 1
	}
	fmt.Fprintf(out, "Results saved to: %s\n", params.outputPath)
	fmt.Fprintln(out)

	PrintResults(out, summary)
	if interrupted || !summary.OK() {
		return 1
	}
	return 0
}

// startLogged reports the process ID once the target is up.
type startLogged struct {
	*stdio.Process
	out io.Writer
}

func (s startLogged) Start(ctx context.Context) error {
	if err := s.Process.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Server started (PID: %d)\n\n", s.Pid())
	return nil
}
