package rpctests

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/launchdarkly/stdio-rpc-contract-tests/framework"
	"github.com/launchdarkly/stdio-rpc-contract-tests/servicedef"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

var (
	// ErrAlreadyRun is returned if RunAll is called more than once on a Controller.
	ErrAlreadyRun = errors.New("test run was already started")

	// ErrInterrupted is returned if the context ended before every case had run. The results
	// of the cases that did run are still available.
	ErrInterrupted = errors.New("test run was interrupted")
)

type runState int

const (
	stateNotStarted runState = iota
	stateRunning
	stateCompleted
)

// Options configures a Controller.
type Options struct {
	// Filter selects which cases to run by description. Nil runs everything.
	Filter framework.Filter

	// TestLogger receives the transcript. Nil discards it.
	TestLogger TestLogger

	// ReadTimeout bounds the wait for each reply, unless a case overrides it. Zero waits forever.
	ReadTimeout time.Duration

	// Now is the clock used for the run timestamp.
	Now func() time.Time
}

// Controller runs an ordered list of test cases against one target and owns the results.
// The counters and the record list are only changed by recordOutcome.
type Controller struct {
	exchanger *Exchanger
	opts      Options

	state     runState
	runID     string
	timestamp time.Time
	nextID    int

	total   int
	passed  int
	failed  int
	records []TestRecord
}

func NewController(transport Transport, opts Options) *Controller {
	if opts.TestLogger == nil {
		opts.TestLogger = nullTestLogger{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{
		exchanger: NewExchanger(transport),
		opts:      opts,
		runID:     uuid.New().String(),
	}
}

// RunAll runs every case in order. A failing case never stops the run, but the end of ctx does:
// no further cases are started and ErrInterrupted is returned. Cases rejected by the filter are
// reported as skipped and are not counted.
func (c *Controller) RunAll(ctx context.Context, cases []TestCase) error {
	if c.state != stateNotStarted {
		return ErrAlreadyRun
	}
	c.state = stateRunning
	c.timestamp = c.opts.Now().UTC()
	defer func() { c.state = stateCompleted }()

	for i, tc := range cases {
		if ctx.Err() != nil {
			break
		}
		if c.opts.Filter != nil && !c.opts.Filter(tc.Description) {
			c.opts.TestLogger.TestSkipped(tc, "excluded by filter parameters")
			continue
		}
		c.runCase(ctx, i+1, tc)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %s", ErrInterrupted, err)
	}
	return nil
}

func (c *Controller) runCase(ctx context.Context, number int, tc TestCase) {
	c.nextID++
	request := servicedef.NewRequest(ldvalue.Int(c.nextID), tc.Method, tc.Params)
	var debugLogger framework.CapturingLogger

	c.opts.TestLogger.TestStarted(number, tc, request)

	record := TestRecord{
		Name:    tc.Description,
		Request: request,
		Number:  number,
	}
	outcome := c.exchange(ctx, tc, request, &debugLogger)
	verdict := Classify(outcome, tc.ExpectsError())
	record.Status = verdict.Status
	record.Explanation = verdict.Explanation
	if outcome.Kind == OutcomeReceived {
		resp := outcome.Response
		record.Response = &resp
	} else {
		record.Error = verdict.Explanation
	}

	c.recordOutcome(record)
	c.opts.TestLogger.TestFinished(record, debugLogger.Output())
}

// exchange runs one exchange under the case's read timeout. A panic anywhere below it is turned
// into a transport error for this case only.
func (c *Controller) exchange(
	ctx context.Context,
	tc TestCase,
	request servicedef.Request,
	debugLogger framework.Logger,
) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			debugLogger.Printf("Unexpected panic: %+v\n%s", r, string(debug.Stack()))
			outcome = Outcome{Kind: OutcomeTransportError, Err: fmt.Errorf("unexpected panic in test: %+v", r)}
		}
	}()

	if timeout := tc.readTimeout(c.opts.ReadTimeout); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return c.exchanger.Exchange(ctx, request, debugLogger)
}

func (c *Controller) recordOutcome(record TestRecord) {
	c.total++
	if record.Passed() {
		c.passed++
	} else {
		c.failed++
	}
	c.records = append(c.records, record)
}

// Finalize packages the current results. It has no side effects and can be called at any time.
func (c *Controller) Finalize() RunSummary {
	return RunSummary{
		RunID:     c.runID,
		Timestamp: c.timestamp,
		Tests:     append([]TestRecord(nil), c.records...),
		Total:     c.total,
		Passed:    c.passed,
		Failed:    c.failed,
	}
}

// Run starts the target, runs all cases, and stops the target. The transport is stopped exactly
// once on every path out of Run, including a panic. If the target could not be started, that
// error is returned with an empty summary. If ctx ends during the run, the summary of the cases
// that ran is returned along with ErrInterrupted. Individual case failures are in the summary.
func Run(ctx context.Context, transport Transport, cases []TestCase, opts Options) (RunSummary, error) {
	defer transport.Stop()

	if err := transport.Start(ctx); err != nil {
		return RunSummary{}, err
	}
	controller := NewController(transport, opts)
	err := controller.RunAll(ctx, cases)
	return controller.Finalize(), err
}
