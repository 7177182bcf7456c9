// Package framework contains the parts of the test harness that do not depend on the protocol
// being tested: loggers that capture per-test debug output, and the regex filters that select
// which test cases to run.
//
// The protocol-specific code that knows how to talk to the service under test, and how to
// judge its responses, is in the rpctests package.
package framework
