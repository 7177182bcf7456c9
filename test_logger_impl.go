package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/launchdarkly/stdio-rpc-contract-tests/framework"
	"github.com/launchdarkly/stdio-rpc-contract-tests/rpctests"
	"github.com/launchdarkly/stdio-rpc-contract-tests/servicedef"
)

const separator = "-----------------------------------"

var (
	passLabel = color.New(color.FgGreen, color.Bold).SprintFunc()
	failLabel = color.New(color.FgRed, color.Bold).SprintFunc()
	skipLabel = color.New(color.FgYellow).SprintFunc()
)

func jsonOrError(data []byte, err error) string {
	if err != nil {
		return fmt.Sprintf("<could not serialize: %s>", err)
	}
	return string(data)
}

// ConsoleTestLogger prints the transcript: every request, whatever came back, and the verdict.
type ConsoleTestLogger struct {
	Out                  io.Writer
	DebugOutputOnFailure bool
	DebugOutputOnSuccess bool
}

func (c *ConsoleTestLogger) out() io.Writer {
	if c.Out == nil {
		return os.Stdout
	}
	return c.Out
}

func (c *ConsoleTestLogger) TestStarted(number int, tc rpctests.TestCase, request servicedef.Request) {
	w := c.out()
	fmt.Fprintln(w, separator)
	fmt.Fprintf(w, "Test #%d: %s\n", number, tc.Description)
	fmt.Fprintf(w, "Request: %s\n\n", jsonOrError(json.Marshal(request)))
}

func (c *ConsoleTestLogger) TestFinished(record rpctests.TestRecord, debugOutput framework.CapturedOutput) {
	w := c.out()
	if record.Response != nil {
		fmt.Fprintf(w, "Response:\n%s\n\n", jsonOrError(json.MarshalIndent(record.Response, "", "  ")))
	}
	if record.Passed() {
		fmt.Fprintf(w, "STATUS: %s - %s\n", passLabel("PASS"), record.Explanation)
	} else {
		fmt.Fprintf(w, "STATUS: %s - %s\n", failLabel("FAIL"), record.Explanation)
	}
	failed := !record.Passed()
	if len(debugOutput) > 0 &&
		((failed && c.DebugOutputOnFailure) || (!failed && c.DebugOutputOnSuccess)) {
		debugOutput.Dump(w, "    DEBUG ")
	}
	fmt.Fprintln(w)
}

func (c *ConsoleTestLogger) TestSkipped(tc rpctests.TestCase, reason string) {
	if reason == "" {
		fmt.Fprintf(c.out(), "%s %s\n", skipLabel("SKIPPED:"), tc.Description)
	} else {
		fmt.Fprintf(c.out(), "%s %s (%s)\n", skipLabel("SKIPPED:"), tc.Description, reason)
	}
}

// PrintResults prints the summary block at the end of the transcript.
func PrintResults(w io.Writer, summary rpctests.RunSummary) {
	fmt.Fprintln(w, "========================================")
	fmt.Fprintln(w, "Test Summary")
	fmt.Fprintln(w, "========================================")
	fmt.Fprintf(w, "Total tests: %d\n", summary.Total)
	fmt.Fprintf(w, "Passed: %d\n", summary.Passed)
	fmt.Fprintf(w, "Failed: %d\n", summary.Failed)
	fmt.Fprintln(w)
	if summary.OK() {
		fmt.Fprintln(w, passLabel("All tests passed!"))
	} else {
		fmt.Fprintln(w, failLabel("Some tests failed."))
		for _, r := range summary.Tests {
			if !r.Passed() {
				fmt.Fprintf(w, "  FAILED: #%d %s\n", r.Number, r.Name)
			}
		}
	}
}
