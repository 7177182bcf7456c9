package rpctests

import "fmt"

// Verdict is the Classifier's judgment of one exchange.
type Verdict struct {
	Status      Status
	Explanation string
}

func pass(format string, args ...interface{}) Verdict {
	return Verdict{Status: StatusPass, Explanation: fmt.Sprintf(format, args...)}
}

func fail(format string, args ...interface{}) Verdict {
	return Verdict{Status: StatusFail, Explanation: fmt.Sprintf(format, args...)}
}

// Classify decides pass or fail for an outcome. A missing, late, or undecodable reply always
// fails. An error-shaped reply passes only if expectError is set. Any other well-formed reply
// passes; its content is not inspected.
func Classify(o Outcome, expectError bool) Verdict {
	switch o.Kind {
	case OutcomeNoResponse:
		return fail("no response received")
	case OutcomeTimeout:
		return fail("timed out waiting for response: %s", o.Err)
	case OutcomeTransportError:
		return fail("transport error: %s", o.Err)
	case OutcomeMalformed:
		return fail("invalid JSON response: %s (raw response: %s)", o.Err, o.Raw)
	case OutcomeReceived:
		if o.Response.IsError() {
			if expectError {
				return pass("expected error received: %s", o.Response.Error.Message)
			}
			return fail("unexpected error in response: %s", o.Response.Error)
		}
		return pass("valid JSON-RPC response")
	default:
		return fail("unknown outcome %s", o.Kind)
	}
}
