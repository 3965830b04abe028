package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// searchCall records one call made to fakeSearcher.
type searchCall struct {
	query string
	start time.Time
	end   time.Time
}

// fakeSearcher is a Searcher test double.
type fakeSearcher struct {
	result    string
	panicWith interface{}
	delay     time.Duration

	// before, if set, runs at the start of every call.
	before func(query string)

	mu    sync.Mutex
	calls []searchCall
}

func (f *fakeSearcher) Search(_ context.Context, query string) (result string) {
	call := searchCall{query: query, start: time.Now()}

	defer func() {
		call.end = time.Now()

		f.mu.Lock()
		f.calls = append(f.calls, call)
		f.mu.Unlock()
	}()

	if f.before != nil {
		f.before(query)
	}

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	if f.panicWith != nil {
		panic(f.panicWith)
	}

	result = f.result
	return result
}

func (f *fakeSearcher) recorded() (calls []searchCall) {
	f.mu.Lock()
	defer f.mu.Unlock()

	calls = append(calls, f.calls...)
	return calls
}

func testLogger() (logger *slog.Logger) {
	logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))

	return logger
}

// decodeResponse unmarshals an encoded response into a generic map.
func decodeResponse(t *testing.T, data []byte) (response map[string]interface{}) {
	t.Helper()

	err := json.Unmarshal(data, &response)
	require.NoError(t, err, "response is not valid JSON: %s", data)

	return response
}

// contentText returns the text of the single content block in a tools/call result.
func contentText(t *testing.T, response map[string]interface{}) (text string) {
	t.Helper()

	result, ok := response["result"].(map[string]interface{})
	require.True(t, ok, "response has no result object: %v", response)

	content, ok := result["content"].([]interface{})
	require.True(t, ok, "result has no content array: %v", result)
	require.Len(t, content, 1)

	block, ok := content[0].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "text", block["type"])

	text, ok = block["text"].(string)
	require.True(t, ok)

	return text
}

// errorCode returns error.code from a response, failing if there is none.
func errorCode(t *testing.T, response map[string]interface{}) (code int) {
	t.Helper()

	errObj, ok := response["error"].(map[string]interface{})
	require.True(t, ok, "response has no error object: %v", response)

	codeFloat, ok := errObj["code"].(float64)
	require.True(t, ok)

	code = int(codeFloat)
	return code
}
