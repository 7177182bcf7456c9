// Package rpctests drives a JSON-RPC service over a line-oriented transport and judges its
// replies.
//
// Each test case is sent as one request; the Exchanger reads back one reply and reports what
// happened as an Outcome; Classify turns the Outcome into pass or fail; the Controller runs
// the cases in order and keeps the records and counts that end up in the report.
//
// Starting and stopping the target process is the job of the stdio package, and printing the
// transcript is the job of whatever TestLogger the caller supplies.
package rpctests
