package rpctests

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
	"gopkg.in/yaml.v3"
)

const (
	MethodInitialize = "initialize"
	MethodToolsList  = "tools/list"
	MethodToolsCall  = "tools/call"

	protocolVersion = "2024-11-05"
)

func object(kvs ...interface{}) ldvalue.Value {
	b := ldvalue.ObjectBuild()
	for i := 0; i+1 < len(kvs); i += 2 {
		v, ok := kvs[i+1].(ldvalue.Value)
		if !ok {
			v = ldvalue.CopyArbitraryValue(kvs[i+1])
		}
		b = b.Set(kvs[i].(string), v)
	}
	return b.Build()
}

func toolCall(tool string, arguments ldvalue.Value) ldvalue.Value {
	return object("name", tool, "arguments", arguments)
}

// DefaultCases is the built-in catalogue: the handshake, tool discovery, one call per tool of
// the conference-schedule service, and two deliberate misuses that must produce errors.
func DefaultCases() []TestCase {
	return []TestCase{
		{
			Description: "Initialize MCP server",
			Method:      MethodInitialize,
			Params: object(
				"protocolVersion", protocolVersion,
				"capabilities", object(),
				"clientInfo", object("name", "test-client", "version", "1.0.0"),
			),
		},
		{
			Description: "List all available tools",
			Method:      MethodToolsList,
			Params:      object(),
		},
		{
			Description: "List all sessions without filters",
			Method:      MethodToolsCall,
			Params:      toolCall("list_sessions", object()),
		},
		{
			Description: "List sessions filtered by track",
			Method:      MethodToolsCall,
			Params:      toolCall("list_sessions", object("track", "Server-Side Swift")),
		},
		{
			Description: "List sessions filtered by difficulty",
			Method:      MethodToolsCall,
			Params:      toolCall("list_sessions", object("difficulty", "advanced")),
		},
		{
			Description: "Search sessions by query",
			Method:      MethodToolsCall,
			Params:      toolCall("search_sessions", object("query", "Swift Concurrency")),
		},
		{
			Description: "Get speaker details by name",
			Method:      MethodToolsCall,
			Params:      toolCall("get_speaker", object("speakerName", "Jane Developer")),
		},
		{
			Description: "Get schedule for today",
			Method:      MethodToolsCall,
			Params:      toolCall("get_schedule", object("date", "today")),
		},
		{
			Description: "Find room by name",
			Method:      MethodToolsCall,
			Params:      toolCall("find_room", object("roomName", "Main Hall")),
		},
		{
			Description: "Get detailed session information",
			Method:      MethodToolsCall,
			Params:      toolCall("get_session_details", object("sessionId", "test-session-123")),
		},
		{
			Description: "Test error handling with invalid tool",
			Method:      MethodToolsCall,
			Params:      toolCall("nonexistent_tool", object()),
			Expect:      ExpectError,
		},
		{
			Description: "Test error handling with missing parameter",
			Method:      MethodToolsCall,
			Params:      toolCall("search_sessions", object()),
			Expect:      ExpectError,
		},
	}
}

type caseFile struct {
	Cases []caseFileEntry `json:"cases" yaml:"cases"`
}

type caseFileEntry struct {
	Description   string      `json:"description" yaml:"description"`
	Method        string      `json:"method" yaml:"method"`
	Params        interface{} `json:"params" yaml:"params"`
	Expect        Expectation `json:"expect" yaml:"expect"`
	ReadTimeoutMS *int        `json:"readTimeoutMs" yaml:"readTimeoutMs"`
}

// LoadCases reads a case catalogue from a YAML (.yaml, .yml) or JSON file. The order of the
// cases in the file is the order they run in.
func LoadCases(path string) ([]TestCase, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f caseFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("invalid case file yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("invalid case file json: %w", err)
		}
	}

	if len(f.Cases) == 0 {
		return nil, fmt.Errorf("case file %s has no cases", path)
	}
	seen := make(map[string]bool)
	ret := make([]TestCase, 0, len(f.Cases))
	for i, e := range f.Cases {
		desc := strings.TrimSpace(e.Description)
		if desc == "" {
			return nil, fmt.Errorf("case %d: missing description", i+1)
		}
		if seen[desc] {
			return nil, fmt.Errorf("case %d: duplicate description %q", i+1, desc)
		}
		seen[desc] = true
		method := strings.TrimSpace(e.Method)
		if method == "" {
			return nil, fmt.Errorf("case %d (%s): missing method", i+1, desc)
		}
		if e.ReadTimeoutMS != nil && *e.ReadTimeoutMS < 0 {
			return nil, fmt.Errorf("case %d (%s): readTimeoutMs must not be negative", i+1, desc)
		}
		ret = append(ret, TestCase{
			Description:   desc,
			Method:        method,
			Params:        ldvalue.CopyArbitraryValue(e.Params),
			Expect:        e.Expect,
			ReadTimeoutMS: ldvalue.NewOptionalIntFromPointer(e.ReadTimeoutMS),
		})
	}
	return ret, nil
}
