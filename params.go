package main

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/launchdarkly/stdio-rpc-contract-tests/framework"
)

const (
	defaultOutputPath  = "test-results.json"
	defaultReadTimeout = 10 * time.Second
	defaultSettleDelay = 500 * time.Millisecond
	defaultGracePeriod = 2 * time.Second
)

type commandParams struct {
	serverPath  string
	serverArgs  argList
	casesPath   string
	outputPath  string
	readTimeout time.Duration
	settleDelay time.Duration
	gracePeriod time.Duration
	filters     framework.RegexFilters
	debug       bool
	debugAll    bool
}

// argList collects a repeatable string flag.
type argList []string

func (a argList) String() string {
	return strings.Join(a, " ")
}

// Set is called by the command line parser
func (a *argList) Set(value string) error {
	*a = append(*a, value)
	return nil
}

func (c *commandParams) Read(args []string, errOut io.Writer) bool {
	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.StringVar(&c.serverPath, "server", "", "path of the JSON-RPC server executable to test")
	fs.Var(&c.serverArgs, "arg", "argument to pass to the server (may be repeated)")
	fs.StringVar(&c.casesPath, "cases", "", "YAML or JSON file of test cases (default: built-in catalogue)")
	fs.StringVar(&c.outputPath, "output", defaultOutputPath, "file to write the JSON report to")
	fs.DurationVar(&c.readTimeout, "timeout", defaultReadTimeout, "how long to wait for each response (0 waits forever)")
	fs.DurationVar(&c.settleDelay, "settle", defaultSettleDelay, "how long to wait after starting the server")
	fs.DurationVar(&c.gracePeriod, "grace", defaultGracePeriod, "how long to wait for the server to exit before killing it")
	fs.Var(&c.filters.MustMatch, "run", "regex pattern(s) to select tests to run")
	fs.Var(&c.filters.MustNotMatch, "skip", "regex pattern(s) to select tests not to run")
	fs.BoolVar(&c.debug, "debug", false, "enable debug logging for failed tests")
	fs.BoolVar(&c.debugAll, "debug-all", false, "enable debug logging for all tests")

	if err := fs.Parse(args[1:]); err != nil {
		return false
	}
	if c.serverPath == "" {
		fmt.Fprintln(errOut, "-server is required")
		fs.Usage()
		return false
	}
	if c.readTimeout < 0 || c.settleDelay < 0 || c.gracePeriod < 0 {
		fmt.Fprintln(errOut, "durations must not be negative")
		return false
	}
	return true
}
