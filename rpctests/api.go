package rpctests

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/launchdarkly/stdio-rpc-contract-tests/framework"
	"github.com/launchdarkly/stdio-rpc-contract-tests/servicedef"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

// Transport is what the harness needs from the target process. *stdio.Process implements it.
type Transport interface {
	Start(ctx context.Context) error
	WriteLine(payload string) error
	ReadLine(ctx context.Context) (string, error)
	Stop()
}

// Expectation says how a test case wants an error-shaped response to be treated.
type Expectation int

const (
	// ExpectAuto infers the expectation from the case description; see ErrorMarkerPhrase.
	ExpectAuto Expectation = iota
	ExpectSuccess
	ExpectError
)

// ErrorMarkerPhrase in a description (case-insensitive) means an ExpectAuto case expects an
// error response.
const ErrorMarkerPhrase = "error handling"

func (e Expectation) String() string {
	switch e {
	case ExpectSuccess:
		return "success"
	case ExpectError:
		return "error"
	default:
		return "auto"
	}
}

// UnmarshalText accepts the values produced by String, so the tag can be written in case files.
func (e *Expectation) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "", "auto":
		*e = ExpectAuto
	case "success":
		*e = ExpectSuccess
	case "error":
		*e = ExpectError
	default:
		return fmt.Errorf("invalid expectation %q (expected auto|success|error)", string(text))
	}
	return nil
}

func (e Expectation) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// TestCase is one request to send, plus how to judge the reply.
type TestCase struct {
	// Description is shown in the transcript and report, and is what -run/-skip filters match.
	Description string

	Method string
	Params ldvalue.Value

	Expect Expectation

	// ReadTimeoutMS overrides the run's read timeout for this case. Zero disables the timeout.
	ReadTimeoutMS ldvalue.OptionalInt
}

// ExpectsError returns the expectation signal for this case.
func (c TestCase) ExpectsError() bool {
	switch c.Expect {
	case ExpectError:
		return true
	case ExpectSuccess:
		return false
	default:
		return strings.Contains(strings.ToLower(c.Description), ErrorMarkerPhrase)
	}
}

func (c TestCase) readTimeout(runDefault time.Duration) time.Duration {
	if c.ReadTimeoutMS.IsDefined() {
		return time.Duration(c.ReadTimeoutMS.IntValue()) * time.Millisecond
	}
	return runDefault
}

type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
)

// TestRecord is the outcome of one attempted test case. Exactly one of Response and Error is
// set, except when an error-shaped response failed the case, in which case Response is set.
type TestRecord struct {
	Name     string               `json:"name"`
	Status   Status               `json:"status"`
	Request  servicedef.Request   `json:"request"`
	Response *servicedef.Response `json:"response,omitempty"`
	Error    string               `json:"error,omitempty"`

	// Number is the 1-based position of the case in the run.
	Number int `json:"-"`

	// Explanation is the human-readable reason for Status.
	Explanation string `json:"-"`
}

func (r TestRecord) Passed() bool {
	return r.Status == StatusPass
}

// RunSummary is everything the harness knows at the end of a run.
type RunSummary struct {
	RunID     string
	Timestamp time.Time
	Tests     []TestRecord
	Total     int
	Passed    int
	Failed    int
}

func (s RunSummary) OK() bool {
	return s.Failed == 0
}

// TestLogger receives progress notifications as the run proceeds. It is how the transcript
// gets printed.
type TestLogger interface {
	TestStarted(number int, c TestCase, request servicedef.Request)
	TestFinished(record TestRecord, debugOutput framework.CapturedOutput)
	TestSkipped(c TestCase, reason string)
}

type nullTestLogger struct{}

func (n nullTestLogger) TestStarted(int, TestCase, servicedef.Request)     {}
func (n nullTestLogger) TestFinished(TestRecord, framework.CapturedOutput) {}
func (n nullTestLogger) TestSkipped(TestCase, string)                      {}
