package rpctests

import (
	"context"
	"encoding/json"
	"io"

	"github.com/launchdarkly/stdio-rpc-contract-tests/servicedef"
)

// fakeReply says what the fake target does after receiving one request.
type fakeReply struct {
	lines    []string // lines to return from ReadLine, in order
	eof      bool     // after the lines, report end of output
	hang     bool     // after the lines, block until the context ends
	writeErr error    // fail the write instead
}

type fakeTransport struct {
	respond  func(req servicedef.Request) fakeReply
	startErr error

	pending  []string
	after    fakeReply
	requests []servicedef.Request
	reads    int
	starts   int
	stops    int
}

func (f *fakeTransport) Start(ctx context.Context) error {
	f.starts++
	return f.startErr
}

func (f *fakeTransport) WriteLine(payload string) error {
	var req servicedef.Request
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		panic(err)
	}
	f.requests = append(f.requests, req)
	reply := f.respond(req)
	if reply.writeErr != nil {
		return reply.writeErr
	}
	f.pending = append(f.pending, reply.lines...)
	f.after = reply
	return nil
}

func (f *fakeTransport) ReadLine(ctx context.Context) (string, error) {
	f.reads++
	if len(f.pending) > 0 {
		line := f.pending[0]
		f.pending = f.pending[1:]
		return line, nil
	}
	if f.after.hang {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return "", io.EOF
}

func (f *fakeTransport) Stop() {
	f.stops++
}

func resultLine(id string) string {
	return `{"jsonrpc":"2.0","id":` + id + `,"result":{"content":[]}}`
}

func errorLine(id string) string {
	return `{"jsonrpc":"2.0","id":` + id + `,"error":{"code":-32601,"message":"Method not found"}}`
}

// wellBehaved answers tools/call for an unknown tool, or a call without arguments, with an
// error, and everything else with a result.
func wellBehaved(req servicedef.Request) fakeReply {
	id := req.ID.JSONString()
	if req.Method == "tools/call" {
		name := req.Params.GetByKey("name").StringValue()
		if name == "nonexistent_tool" || (name == "search_sessions" && req.Params.GetByKey("arguments").Count() == 0) {
			return fakeReply{lines: []string{errorLine(id)}}
		}
	}
	return fakeReply{lines: []string{resultLine(id)}}
}
