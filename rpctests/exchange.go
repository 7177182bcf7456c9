package rpctests

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/launchdarkly/stdio-rpc-contract-tests/framework"
	"github.com/launchdarkly/stdio-rpc-contract-tests/servicedef"
)

// OutcomeKind classifies what came back from one exchange, before any pass/fail judgment.
type OutcomeKind int

const (
	OutcomeReceived OutcomeKind = iota
	OutcomeNoResponse
	OutcomeMalformed
	OutcomeTimeout
	OutcomeTransportError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeReceived:
		return "received"
	case OutcomeNoResponse:
		return "no response"
	case OutcomeMalformed:
		return "malformed response"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeTransportError:
		return "transport error"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is the result of Exchanger.Exchange.
type Outcome struct {
	Kind OutcomeKind

	// Response is set for OutcomeReceived.
	Response servicedef.Response

	// Raw is the line that was read, for OutcomeReceived and OutcomeMalformed.
	Raw string

	// Err is the decode, timeout, or transport error for the other kinds.
	Err error
}

var errEmptyLine = errors.New("empty response line")

// Exchanger performs one write-then-read cycle per call against a Transport.
//
// When a read times out, the reply to that request may still arrive later and would then be
// the next line we read. The Exchanger remembers the ids of abandoned requests and skips any
// reply carrying one of them, so a slow reply is not attributed to the following case. That is
// the only case in which Exchange reads more than one line.
type Exchanger struct {
	transport Transport
	abandoned map[string]struct{}
}

func NewExchanger(transport Transport) *Exchanger {
	return &Exchanger{transport: transport, abandoned: make(map[string]struct{})}
}

// Exchange sends req and waits for one reply. It never panics on bad output from the target;
// every problem is reported as an Outcome.
func (e *Exchanger) Exchange(ctx context.Context, req servicedef.Request, logger framework.Logger) Outcome {
	if logger == nil {
		logger = framework.NullLogger()
	}
	data, err := json.Marshal(req)
	if err != nil {
		return Outcome{Kind: OutcomeTransportError, Err: fmt.Errorf("could not serialize request: %w", err)}
	}
	logger.Printf("Sending: %s", string(data))
	if err := e.transport.WriteLine(string(data)); err != nil {
		logger.Printf("Write failed: %s", err)
		return Outcome{Kind: OutcomeTransportError, Err: err}
	}

	for {
		line, err := e.transport.ReadLine(ctx)
		if err != nil {
			return e.readFailure(req, err, logger)
		}
		logger.Printf("Received: %s", line)
		if strings.TrimSpace(line) == "" {
			return Outcome{Kind: OutcomeMalformed, Raw: line, Err: errEmptyLine}
		}
		resp, err := servicedef.ParseResponse([]byte(line))
		if err != nil {
			return Outcome{Kind: OutcomeMalformed, Raw: line, Err: err}
		}
		if e.isAbandoned(resp) {
			logger.Printf("Discarding late reply to abandoned request %s", resp.ID.JSONString())
			continue
		}
		if !resp.ID.Equal(req.ID) {
			logger.Printf("Reply id %s does not match request id %s", resp.ID.JSONString(), req.ID.JSONString())
		}
		return Outcome{Kind: OutcomeReceived, Response: resp, Raw: line}
	}
}

func (e *Exchanger) readFailure(req servicedef.Request, err error, logger framework.Logger) Outcome {
	switch {
	case errors.Is(err, io.EOF):
		logger.Printf("Target closed its output")
		return Outcome{Kind: OutcomeNoResponse, Err: err}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		e.abandoned[req.ID.JSONString()] = struct{}{}
		logger.Printf("Gave up waiting for reply: %s", err)
		return Outcome{Kind: OutcomeTimeout, Err: err}
	default:
		logger.Printf("Read failed: %s", err)
		return Outcome{Kind: OutcomeTransportError, Err: err}
	}
}

func (e *Exchanger) isAbandoned(resp servicedef.Response) bool {
	if resp.ID.IsNull() {
		return false
	}
	_, ok := e.abandoned[resp.ID.JSONString()]
	return ok
}
