package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/crux/internal/config"
)

func TestBuildPrompt(t *testing.T) {
	t.Parallel()

	got := BuildPrompt(Request{
		ID:     "c:@F@f",
		Name:   "ns::f",
		Source: "int f() { return g(); }",
		Callees: []CalleeResult{
			{Name: "ns::g", Result: "returns 42"},
			{Name: "ns::h", Result: "logs"},
		},
	})

	want := "Summarize the following function or method `ns::f`.\n" +
		"\n" +
		"Source code:\n" +
		"```\n" +
		"int f() { return g(); }\n" +
		"```\n" +
		"\n" +
		"Summaries of functions it calls:\n" +
		"- `ns::g`: returns 42\n" +
		"- `ns::h`: logs\n" +
		"\n" +
		"Write a concise one- or two-sentence summary describing what this function does."
	assert.Equal(t, want, got)
}

func TestBuildPromptNoCallees(t *testing.T) {
	t.Parallel()

	got := BuildPrompt(Request{Name: "f", Source: "void f() {}"})
	assert.NotContains(t, got, "Summaries of functions it calls")
	assert.True(t, strings.HasSuffix(got, "what this function does."))
}

func TestMock(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name, source, want string
	}{
		{"f", "", "f is a great function and has size of 0"},
		{"ns::g", "int g() {}", "ns::g is a great function and has size of 10"},
		{"h", "é\nü", "h is a great function and has size of 3"},
	}
	for _, tt := range tests {
		got, err := Mock{}.Enrich(context.Background(), Request{Name: tt.name, Source: tt.source})
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestMockIgnoresCallees(t *testing.T) {
	t.Parallel()

	a, err := Mock{}.Enrich(context.Background(), Request{Name: "f", Source: "x"})
	require.NoError(t, err)
	b, err := Mock{}.Enrich(context.Background(), Request{Name: "f", Source: "x", Callees: []CalleeResult{{Name: "g", Result: "r"}}})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

// flaky fails the first n calls.
type flaky struct {
	n     int32
	calls atomic.Int32
}

func (f *flaky) Enrich(ctx context.Context, req Request) (string, error) {
	if f.calls.Add(1) <= f.n {
		return "", errors.New("transient")
	}
	return "ok", nil
}

func TestWithRetry(t *testing.T) {
	t.Parallel()

	t.Run("recovers", func(t *testing.T) {
		t.Parallel()
		f := &flaky{n: 2}
		e := WithRetry(f, RetryPolicy{Attempts: 3, Backoff: time.Millisecond})
		got, err := e.Enrich(context.Background(), Request{ID: "a"})
		require.NoError(t, err)
		assert.Equal(t, "ok", got)
		assert.Equal(t, int32(3), f.calls.Load())
	})

	t.Run("exhausts", func(t *testing.T) {
		t.Parallel()
		f := &flaky{n: 10}
		e := WithRetry(f, RetryPolicy{Attempts: 2, Backoff: time.Millisecond})
		_, err := e.Enrich(context.Background(), Request{ID: "a"})
		require.EqualError(t, err, "transient")
		assert.Equal(t, int32(2), f.calls.Load())
	})

	t.Run("single attempt is passthrough", func(t *testing.T) {
		t.Parallel()
		f := &flaky{n: 1}
		e := WithRetry(f, RetryPolicy{Attempts: 1})
		_, err := e.Enrich(context.Background(), Request{})
		require.Error(t, err)
		assert.Equal(t, int32(1), f.calls.Load())
	})

	t.Run("stops on cancel", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		f := &flaky{n: 10}
		e := WithRetry(Func(func(ctx context.Context, req Request) (string, error) {
			cancel()
			return f.Enrich(ctx, req)
		}), RetryPolicy{Attempts: 5, Backoff: time.Hour})
		_, err := e.Enrich(ctx, Request{})
		require.Error(t, err)
		assert.Equal(t, int32(1), f.calls.Load())
	})
}

func TestWithRateLimit(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	inner := Func(func(ctx context.Context, req Request) (string, error) {
		calls.Add(1)
		return "ok", nil
	})
	e := WithRateLimit(inner, 0.001, 1)

	_, err := e.Enrich(context.Background(), Request{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = e.Enrich(ctx, Request{})
	require.Error(t, err, "second call must wait far longer than the deadline")
	assert.Equal(t, int32(1), calls.Load())

	assert.Equal(t, Mock{}, WithRateLimit(Mock{}, 0, 0), "rate 0 disables limiting")
}

func TestWithTimeout(t *testing.T) {
	t.Parallel()

	slow := Func(func(ctx context.Context, req Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	_, err := WithTimeout(slow, 10*time.Millisecond).Enrich(context.Background(), Request{})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Equal(t, Mock{}, WithTimeout(Mock{}, 0))
}

func TestOpenAI(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  Adds two numbers. "},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	e := NewOpenAI("sk-test", "", srv.URL+"/v1")
	got, err := e.Enrich(context.Background(), Request{Name: "add", Source: "int add(int a, int b)"})
	require.NoError(t, err)
	assert.Equal(t, "Adds two numbers.", got)
	assert.Equal(t, DefaultOpenAIModel, gotBody["model"])

	msgs, ok := gotBody["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	user := msgs[1].(map[string]any)
	assert.Contains(t, user["content"], "`add`")
}

func TestOpenAIEmpty(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAI("k", "m", srv.URL).Enrich(context.Background(), Request{Name: "f"})
	require.ErrorIs(t, err, ErrEmptyResponse)
}

func TestNew(t *testing.T) {
	t.Parallel()

	e, err := New(context.Background(), config.EnrichConfig{Provider: "mock", Attempts: 1})
	require.NoError(t, err)
	got, err := e.Enrich(context.Background(), Request{Name: "f", Source: "ab"})
	require.NoError(t, err)
	assert.Equal(t, "f is a great function and has size of 2", got)

	e, err = New(context.Background(), config.EnrichConfig{Provider: "openai", Model: "m", BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)
	assert.NotNil(t, e)

	e, err = New(context.Background(), config.EnrichConfig{Provider: "ollama", BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)
	assert.NotNil(t, e)

	_, err = New(context.Background(), config.EnrichConfig{Provider: "oracle"})
	require.ErrorIs(t, err, config.ErrUnknownProvider)
}
