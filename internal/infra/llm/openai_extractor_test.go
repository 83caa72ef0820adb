package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bookkeeper_bot/internal/domain/chat"

	"github.com/sirupsen/logrus"
)

type recordedCall struct {
	item, amount, note string
}

type fakeRecorder struct {
	calls []recordedCall
}

func (f *fakeRecorder) AddExpense(_ context.Context, _ chat.Event, item, amount, note string) string {
	f.calls = append(f.calls, recordedCall{item, amount, note})
	return "Saved: " + item + " " + amount
}

func (f *fakeRecorder) Today() time.Time {
	return time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func completionServer(t *testing.T, toolCalls string, seen *map[string]interface{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if seen != nil {
			json.NewDecoder(r.Body).Decode(seen)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"m","choices":[{"index":0,`+
			`"message":{"role":"assistant","content":"","tool_calls":`+toolCalls+`},"finish_reason":"tool_calls"}]}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExtractExecutesToolCalls(t *testing.T) {
	var request map[string]interface{}
	srv := completionServer(t, `[
		{"id":"a","type":"function","function":{"name":"bookkeeper_add_expense","arguments":"{\"item\":\"coffee\",\"amount\":4.5}"}},
		{"id":"b","type":"function","function":{"name":"other_tool","arguments":"{}"}},
		{"id":"c","type":"function","function":{"name":"bookkeeper_add_expense","arguments":"{\"item\":\"taxi\",\"amount\":\"12.30\",\"note\":\"airport\"}"}}
	]`, &request)

	rec := &fakeRecorder{}
	ex := NewOpenAIExtractor(Config{APIKey: "k", BaseURL: srv.URL + "/", Model: "test-model"}, rec, testLogger())
	reply, err := ex.Extract(context.Background(), chat.Event{Session: "1", SenderID: "2"}, "coffee 4.5 and taxi 12.30")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if reply != "Saved: coffee 4.5\nSaved: taxi 12.30" {
		t.Fatalf("unexpected reply %q", reply)
	}
	if len(rec.calls) != 2 || rec.calls[1] != (recordedCall{"taxi", "12.30", "airport"}) {
		t.Fatalf("unexpected calls %+v", rec.calls)
	}

	if request["model"] != "test-model" {
		t.Fatalf("unexpected model %v", request["model"])
	}
	messages, _ := request["messages"].([]interface{})
	if len(messages) != 2 {
		t.Fatalf("expected system and user messages, got %v", request["messages"])
	}
	system, _ := messages[0].(map[string]interface{})
	if content, _ := system["content"].(string); !strings.Contains(content, "Today is 2026-03-15.") {
		t.Fatalf("system prompt missing date: %q", content)
	}
}

func TestExtractWithoutToolCallsReturnsEmpty(t *testing.T) {
	srv := completionServer(t, `[]`, nil)
	rec := &fakeRecorder{}
	ex := NewOpenAIExtractor(Config{APIKey: "k", BaseURL: srv.URL, Model: "m"}, rec, testLogger())
	reply, err := ex.Extract(context.Background(), chat.Event{}, "hello")
	if err != nil || reply != "" || len(rec.calls) != 0 {
		t.Fatalf("expected silent result, got %q, %v, %v", reply, err, rec.calls)
	}
}

func TestExtractMalformedArguments(t *testing.T) {
	srv := completionServer(t, `[{"id":"a","type":"function","function":{"name":"bookkeeper_add_expense","arguments":"not json"}}]`, nil)
	rec := &fakeRecorder{}
	ex := NewOpenAIExtractor(Config{APIKey: "k", BaseURL: srv.URL, Model: "m"}, rec, testLogger())
	reply, err := ex.Extract(context.Background(), chat.Event{}, "coffee")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if reply != "Bookkeeping skipped: malformed tool arguments." || len(rec.calls) != 0 {
		t.Fatalf("unexpected result %q %v", reply, rec.calls)
	}
}

func TestExtractSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()
	ex := NewOpenAIExtractor(Config{APIKey: "k", BaseURL: srv.URL, Model: "m"}, &fakeRecorder{}, testLogger())
	if _, err := ex.Extract(context.Background(), chat.Event{}, "coffee 4"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDecodeArguments(t *testing.T) {
	tests := []struct {
		raw    string
		amount string
	}{
		{`{"item":"a","amount":4.50}`, "4.50"},
		{`{"item":"a","amount":"0.005"}`, "0.005"},
		{`{"item":"a","amount":1e2}`, "1e2"},
		{`{"item":"a"}`, ""},
	}
	for _, tt := range tests {
		args, err := decodeArguments(tt.raw)
		if err != nil {
			t.Fatalf("%s: %v", tt.raw, err)
		}
		if args.Amount != tt.amount {
			t.Fatalf("%s: expected amount %q, got %q", tt.raw, tt.amount, args.Amount)
		}
	}
}
