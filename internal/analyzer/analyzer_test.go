package analyzer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopii/reviewrank/internal/storage"
)

type fakeCompleter struct {
	response string
	err      error
	prompt   string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string, _ int) (string, error) {
	f.prompt = prompt
	return f.response, f.err
}

func socialItem(content string, upvotes int) storage.Item {
	return storage.Item{
		SourceType: storage.SourceSocial,
		SourceURL:  "https://example.com/post",
		Content:    content,
		Upvotes:    upvotes,
	}
}

func TestAnalyze_ParsesBackendJSON(t *testing.T) {
	backend := &fakeCompleter{
		response: `{"sentiment": 0.8, "pros": ["great sound", "comfortable"], "cons": ["pricey"]}`,
	}
	a := New(backend, nil, nil)

	got := a.Analyze(context.Background(), socialItem("love these headphones", 5))

	if got.Sentiment != 0.8 {
		t.Errorf("sentiment = %v, want 0.8", got.Sentiment)
	}
	if len(got.Pros) != 2 || got.Pros[0] != "great sound" {
		t.Errorf("unexpected pros: %v", got.Pros)
	}
	if len(got.Cons) != 1 || got.Cons[0] != "pricey" {
		t.Errorf("unexpected cons: %v", got.Cons)
	}
	if got.CredibilityWeight != 0.60 {
		t.Errorf("credibility = %v, want 0.60", got.CredibilityWeight)
	}
}

func TestAnalyze_JSONEmbeddedInProse(t *testing.T) {
	backend := &fakeCompleter{
		response: "Here is my analysis:\n\n" +
			`{"sentiment": -0.4, "pros": [], "cons": ["breaks easily"]}` +
			"\n\nLet me know if you need more.",
	}
	a := New(backend, nil, nil)

	got := a.Analyze(context.Background(), socialItem("broke in a week", 0))
	if got.Sentiment != -0.4 {
		t.Errorf("sentiment = %v, want -0.4", got.Sentiment)
	}
	if len(got.Cons) != 1 {
		t.Errorf("unexpected cons: %v", got.Cons)
	}
}

func TestAnalyze_BackendErrorFallsBackNeutral(t *testing.T) {
	backend := &fakeCompleter{err: errors.New("timeout")}
	a := New(backend, nil, nil)

	got := a.Analyze(context.Background(), socialItem("whatever", 200))

	if got.Sentiment != 0 || got.Pros != nil || got.Cons != nil {
		t.Errorf("expected neutral result, got %+v", got)
	}
	// credibility survives the fallback
	if got.CredibilityWeight != 0.70 {
		t.Errorf("credibility = %v, want 0.70", got.CredibilityWeight)
	}
}

func TestAnalyze_GarbageResponseFallsBackNeutral(t *testing.T) {
	for _, response := range []string{
		"no json here at all",
		`{"sentiment": "not a number"}`,
		`{broken json`,
	} {
		a := New(&fakeCompleter{response: response}, nil, nil)
		got := a.Analyze(context.Background(), socialItem("text", 0))
		if got.Sentiment != 0 || got.Pros != nil {
			t.Errorf("response %q: expected neutral, got %+v", response, got)
		}
	}
}

func TestAnalyze_NilBackendIsNeutral(t *testing.T) {
	a := New(nil, nil, nil)

	got := a.Analyze(context.Background(), socialItem("text", 0))
	if got.Sentiment != 0 {
		t.Errorf("expected neutral sentiment, got %v", got.Sentiment)
	}
	if got.CredibilityWeight != 0.60 {
		t.Errorf("credibility = %v, want 0.60", got.CredibilityWeight)
	}
}

func TestAnalyze_ClampsAdversarialValues(t *testing.T) {
	backend := &fakeCompleter{
		response: `{"sentiment": 99, "pros": ["a", "b", "c", "d", "e"], "cons": ["  ", "` +
			strings.Repeat("x", 200) + `"]}`,
	}
	a := New(backend, nil, nil)

	got := a.Analyze(context.Background(), socialItem("text", 0))

	if got.Sentiment != 1 {
		t.Errorf("sentiment not clamped: %v", got.Sentiment)
	}
	if len(got.Pros) != 3 {
		t.Errorf("pros not capped at 3: %v", got.Pros)
	}
	if len(got.Cons) != 1 {
		t.Errorf("blank cons not dropped: %v", got.Cons)
	}
	if len([]rune(got.Cons[0])) != maxPhraseLength {
		t.Errorf("phrase not length-capped: %d runes", len([]rune(got.Cons[0])))
	}
}

func TestAnalyze_PromptTruncatesContent(t *testing.T) {
	backend := &fakeCompleter{response: `{"sentiment": 0, "pros": [], "cons": []}`}
	a := New(backend, nil, nil)

	long := strings.Repeat("w ", promptContentLimit)
	a.Analyze(context.Background(), socialItem(long, 0))

	if len([]rune(backend.prompt)) > promptContentLimit+500 {
		t.Errorf("prompt not truncated: %d runes", len([]rune(backend.prompt)))
	}
}

func TestJSONFragment(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{"a": 1}`, `{"a": 1}`},
		{`prefix {"a": {"b": 2}} suffix`, `{"a": {"b": 2}}`},
		{`{"s": "brace } in string"}`, `{"s": "brace } in string"}`},
		{`{"s": "escaped \" quote"}`, `{"s": "escaped \" quote"}`},
		{`{invalid} then {"ok": true}`, `{"ok": true}`},
		{`no braces`, ""},
		{`{never closed`, ""},
	}

	for _, tc := range cases {
		if got := jsonFragment(tc.in); got != tc.want {
			t.Errorf("jsonFragment(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
