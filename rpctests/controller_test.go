package rpctests

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/launchdarkly/stdio-rpc-contract-tests/framework"
	"github.com/launchdarkly/stdio-rpc-contract-tests/servicedef"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTestLogger struct {
	started  []int
	finished []TestRecord
	skipped  []string
	debug    []framework.CapturedOutput
	onStart  func()
}

func (r *recordingTestLogger) TestStarted(number int, c TestCase, request servicedef.Request) {
	if r.onStart != nil {
		r.onStart()
	}
	r.started = append(r.started, number)
}

func (r *recordingTestLogger) TestFinished(record TestRecord, debugOutput framework.CapturedOutput) {
	r.finished = append(r.finished, record)
	r.debug = append(r.debug, debugOutput)
}

func (r *recordingTestLogger) TestSkipped(c TestCase, reason string) {
	r.skipped = append(r.skipped, c.Description)
}

var fixedTime = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedTime }

func runCases(t *testing.T, respond func(servicedef.Request) fakeReply, cases []TestCase, opts Options) (RunSummary, *fakeTransport) {
	f := &fakeTransport{respond: respond}
	if opts.Now == nil {
		opts.Now = fixedClock
	}
	summary, err := Run(context.Background(), f, cases, opts)
	require.NoError(t, err)
	return summary, f
}

func TestDefaultCatalogueAgainstWellBehavedTarget(t *testing.T) {
	summary, f := runCases(t, wellBehaved, DefaultCases(), Options{})

	assert.Equal(t, 12, summary.Total)
	assert.Equal(t, 12, summary.Passed)
	assert.Equal(t, 0, summary.Failed)
	assert.True(t, summary.OK())
	assert.Equal(t, fixedTime, summary.Timestamp)
	assert.NotEmpty(t, summary.RunID)

	require.Len(t, summary.Tests, 12)
	for i, r := range summary.Tests {
		assert.Equal(t, DefaultCases()[i].Description, r.Name)
		assert.Equal(t, i+1, r.Number)
		assert.Equal(t, float64(i+1), r.Request.ID.Float64Value(), "ids are assigned in order from 1")
		assert.True(t, f.requests[i].ID.Equal(r.Request.ID))
	}
	assert.Equal(t, 1, f.starts)
	assert.Equal(t, 1, f.stops)
}

func TestFailuresDoNotStopTheRun(t *testing.T) {
	cases := []TestCase{
		{Description: "first", Method: "a"},
		{Description: "second", Method: "b"},
		{Description: "third", Method: "c"},
		{Description: "fourth", Method: "d"},
	}
	summary, _ := runCases(t, func(req servicedef.Request) fakeReply {
		id := req.ID.JSONString()
		switch req.Method {
		case "a":
			return fakeReply{lines: []string{errorLine(id)}}
		case "b":
			return fakeReply{lines: []string{`{"jsonrpc":"2.0","id"`}}
		case "c":
			return fakeReply{writeErr: errors.New("broken pipe")}
		default:
			return fakeReply{lines: []string{resultLine(id)}}
		}
	}, cases, Options{})

	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 1, summary.Passed)
	assert.Equal(t, 3, summary.Failed)
	assert.Equal(t, summary.Total, summary.Passed+summary.Failed)
	assert.False(t, summary.OK())

	require.Len(t, summary.Tests, 4)
	assert.Equal(t, StatusFail, summary.Tests[0].Status)
	assert.NotNil(t, summary.Tests[0].Response, "an unexpected error response is kept in the record")
	assert.Empty(t, summary.Tests[0].Error)

	assert.Equal(t, StatusFail, summary.Tests[1].Status)
	assert.Nil(t, summary.Tests[1].Response)
	assert.Contains(t, summary.Tests[1].Error, "invalid JSON response")

	assert.Equal(t, StatusFail, summary.Tests[2].Status)
	assert.Contains(t, summary.Tests[2].Error, "broken pipe")

	assert.Equal(t, StatusPass, summary.Tests[3].Status)
}

func TestTargetThatNeverAnswersFailsEveryCase(t *testing.T) {
	summary, _ := runCases(t, func(servicedef.Request) fakeReply { return fakeReply{eof: true} },
		DefaultCases(), Options{})
	assert.Equal(t, 12, summary.Failed)
	for _, r := range summary.Tests {
		assert.Equal(t, "no response received", r.Error)
	}
}

func TestReadTimeoutFailsOnlyTheSlowCase(t *testing.T) {
	cases := []TestCase{
		{Description: "slow", Method: "slow"},
		{Description: "fast", Method: "fast"},
	}
	summary, _ := runCases(t, func(req servicedef.Request) fakeReply {
		if req.Method == "slow" {
			return fakeReply{hang: true}
		}
		return fakeReply{lines: []string{resultLine(req.ID.JSONString())}}
	}, cases, Options{ReadTimeout: 30 * time.Millisecond})

	require.Len(t, summary.Tests, 2)
	assert.Equal(t, StatusFail, summary.Tests[0].Status)
	assert.Contains(t, summary.Tests[0].Error, "timed out")
	assert.Equal(t, StatusPass, summary.Tests[1].Status)
}

func TestFilterSkipsCasesWithoutRecordingThem(t *testing.T) {
	var filters framework.RegexFilters
	require.NoError(t, filters.MustNotMatch.Set("error handling"))
	logger := &recordingTestLogger{}

	summary, f := runCases(t, wellBehaved, DefaultCases(), Options{Filter: filters.AsFilter, TestLogger: logger})

	assert.Equal(t, 10, summary.Total)
	assert.Len(t, f.requests, 10)
	assert.Equal(t, []string{
		"Test error handling with invalid tool",
		"Test error handling with missing parameter",
	}, logger.skipped)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, logger.started)
}

func TestEveryCaseIsReportedToTheTestLogger(t *testing.T) {
	logger := &recordingTestLogger{}
	summary, _ := runCases(t, wellBehaved, DefaultCases(), Options{TestLogger: logger})

	assert.Equal(t, summary.Tests, logger.finished)
	require.Len(t, logger.debug, 12)
	require.NotEmpty(t, logger.debug[0])
	assert.Contains(t, logger.debug[0][0].Message, `Sending: {"jsonrpc":"2.0","id":1,"method":"initialize"`)
}

func TestPanicDuringExchangeFailsOnlyThatCase(t *testing.T) {
	cases := []TestCase{
		{Description: "explodes", Method: "boom"},
		{Description: "fine", Method: "ok"},
	}
	summary, f := runCases(t, func(req servicedef.Request) fakeReply {
		if req.Method == "boom" {
			panic("target exploded")
		}
		return fakeReply{lines: []string{resultLine(req.ID.JSONString())}}
	}, cases, Options{})

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Failed)
	assert.Contains(t, summary.Tests[0].Error, "unexpected panic in test: target exploded")
	assert.Equal(t, StatusPass, summary.Tests[1].Status)
	assert.Equal(t, 1, f.stops)
}

func TestRepeatedRunsGiveIdenticalCounts(t *testing.T) {
	first, _ := runCases(t, wellBehaved, DefaultCases(), Options{})
	second, _ := runCases(t, wellBehaved, DefaultCases(), Options{})
	assert.Equal(t, first.Total, second.Total)
	assert.Equal(t, first.Passed, second.Passed)
	assert.Equal(t, first.Failed, second.Failed)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestRunAllCanOnlyBeCalledOnce(t *testing.T) {
	c := NewController(&fakeTransport{respond: wellBehaved}, Options{})
	require.NoError(t, c.RunAll(context.Background(), DefaultCases()[:1]))
	assert.Equal(t, ErrAlreadyRun, c.RunAll(context.Background(), DefaultCases()[:1]))
	assert.Equal(t, 1, c.Finalize().Total)
}

func TestFinalizeHasNoSideEffects(t *testing.T) {
	c := NewController(&fakeTransport{respond: wellBehaved}, Options{Now: fixedClock})
	assert.Equal(t, 0, c.Finalize().Total)
	require.NoError(t, c.RunAll(context.Background(), DefaultCases()))

	a := c.Finalize()
	a.Tests[0].Name = "changed by caller"
	b := c.Finalize()
	assert.Equal(t, "Initialize MCP server", b.Tests[0].Name)
	assert.Equal(t, a.Total, b.Total)
}

func TestStopIsCalledOnceWhenStartFails(t *testing.T) {
	f := &fakeTransport{startErr: errors.New("no such file"), respond: wellBehaved}
	_, err := Run(context.Background(), f, DefaultCases(), Options{})
	assert.EqualError(t, err, "no such file")
	assert.Empty(t, f.requests)
	assert.Equal(t, 1, f.stops)
}

func TestStopIsCalledOnceWhenRunPanics(t *testing.T) {
	f := &fakeTransport{respond: wellBehaved}
	logger := &recordingTestLogger{onStart: func() { panic("transcript failure") }}
	assert.Panics(t, func() {
		_, _ = Run(context.Background(), f, DefaultCases(), Options{TestLogger: logger})
	})
	assert.Equal(t, 1, f.stops)
}

func TestCancelledRunStopsStartingCases(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := &fakeTransport{respond: func(req servicedef.Request) fakeReply {
		if req.ID.IntValue() == 2 {
			// the harness is told to shut down while waiting for this reply
			cancel()
			return fakeReply{hang: true}
		}
		return wellBehaved(req)
	}}
	logger := &recordingTestLogger{}

	summary, err := Run(ctx, f, DefaultCases(), Options{TestLogger: logger, Now: fixedClock})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInterrupted))

	assert.Len(t, f.requests, 2)
	assert.Equal(t, []int{1, 2}, logger.started)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Passed)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Tests, 2)
	assert.Equal(t, "timed out waiting for response: context canceled", summary.Tests[1].Error)
	assert.Equal(t, 1, f.stops)
}

func TestRunWithCancelledContextRunsNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &fakeTransport{respond: wellBehaved}

	summary, err := Run(ctx, f, DefaultCases(), Options{Now: fixedClock})
	assert.True(t, errors.Is(err, ErrInterrupted))
	assert.Empty(t, f.requests)
	assert.Equal(t, 0, summary.Total)
	assert.Equal(t, 1, f.stops)
}
