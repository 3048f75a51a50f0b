package validator

import (
	"context"
	"errors"
	"testing"

	"github.com/vocatutor/vocatutor/internal/vocab"
)

type fakeModel struct {
	correct bool
	comment string
	err     error
	calls   int
}

func (f *fakeModel) Validate(ctx context.Context, req ModelRequest) (bool, string, error) {
	f.calls++
	return f.correct, f.comment, f.err
}

func TestValidate_ExactMatch(t *testing.T) {
	v := New(nil)
	res, err := v.Validate(context.Background(), Request{UserAnswer: "House", Expected: "house"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Correct || res.Method != vocab.MethodExact {
		t.Errorf("got %+v, want correct/exact", res)
	}
}

func TestValidate_ExactMatchAlternative(t *testing.T) {
	v := New(nil)
	res, err := v.Validate(context.Background(), Request{
		UserAnswer: "big house", Expected: "mansion", Alternatives: []string{"Big House."},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Correct || res.Method != vocab.MethodExact {
		t.Errorf("got %+v, want correct/exact via alternative", res)
	}
}

func TestValidate_FuzzyTypoAccepted(t *testing.T) {
	v := New(nil)
	// дoм (Latin 'o') vs дом — edit distance 1, a typical typo.
	res, err := v.Validate(context.Background(), Request{UserAnswer: "дoм", Expected: "дом"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Correct || res.Method != vocab.MethodFuzzy {
		t.Errorf("got %+v, want correct/fuzzy", res)
	}
}

func TestValidate_FuzzyBeyondThresholdEscalates(t *testing.T) {
	model := &fakeModel{correct: true, comment: "synonym accepted"}
	v := New(model)
	res, err := v.Validate(context.Background(), Request{UserAnswer: "прекрасный", Expected: "красивый"})
	if err != nil {
		t.Fatal(err)
	}
	if model.calls != 1 {
		t.Fatalf("model calls = %d, want 1", model.calls)
	}
	if !res.Correct || res.Method != vocab.MethodModel || res.Feedback != "synonym accepted" {
		t.Errorf("got %+v, want correct/model with propagated comment", res)
	}
}

func TestValidate_ModelFailureFallsBackConservatively(t *testing.T) {
	model := &fakeModel{err: errors.New("circuit open")}
	v := New(model)
	res, err := v.Validate(context.Background(), Request{UserAnswer: "zzz totally wrong", Expected: "correct answer"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Correct {
		t.Error("expected conservative rejection on gateway failure")
	}
	if res.Method != vocab.MethodExact {
		t.Errorf("Method = %v, want exact (conservative fallback)", res.Method)
	}
}

func TestValidate_NoModelConfiguredFallsBack(t *testing.T) {
	v := New(nil)
	res, err := v.Validate(context.Background(), Request{UserAnswer: "completely different", Expected: "something else"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Correct {
		t.Error("expected rejection with no model configured")
	}
}

func TestValidate_LevenshteinBoundary(t *testing.T) {
	// L2: |x| >= T+2, T-edit perturbation ("elefant", 2 edits) -> fuzzy;
	// T+1-edit ("elefantz", 3 edits) -> not fuzzy.
	v := New(&fakeModel{correct: false, comment: "no match"})
	expected := "elephant" // len 8 >= T(2)+2

	res, err := v.Validate(context.Background(), Request{UserAnswer: "elefant", Expected: expected})
	if err != nil {
		t.Fatal(err)
	}
	if res.Method != vocab.MethodFuzzy {
		t.Errorf("T-edit (2) perturbation: got method %v, want fuzzy", res.Method)
	}

	res2, err := v.Validate(context.Background(), Request{UserAnswer: "elefantz", Expected: expected})
	if err != nil {
		t.Fatal(err)
	}
	if res2.Method == vocab.MethodFuzzy {
		t.Errorf("3-edit perturbation should not be accepted as fuzzy, got %+v", res2)
	}
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"  House.  ":       "house",
		"Big   House!":     "big house",
		"déjà vu":          "déjà vu",
		"Hello, World?!":   "hello, world",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}
