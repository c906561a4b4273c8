package memo_test

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/n9te9/federation-benchmark/memo"
	"go.uber.org/atomic"
)

type document struct {
	source string
}

func countingParse(calls *atomic.Int64) memo.ParseFunc[*document] {
	return func(query string) (*document, error) {
		calls.Inc()
		if strings.HasPrefix(query, "{ invalid") {
			return nil, errors.New("syntax error")
		}
		return &document{source: query}, nil
	}
}

func TestParser_Parse(t *testing.T) {
	tests := []struct {
		name      string
		queries   []string
		wantCalls int64
		wantLen   int
	}{
		{
			name:      "same string is parsed once",
			queries:   []string{"{ me { id } }", "{ me { id } }", "{ me { id } }"},
			wantCalls: 1,
			wantLen:   1,
		},
		{
			name:      "distinct strings are parsed separately",
			queries:   []string{"{ me { id } }", "{ me { name } }"},
			wantCalls: 2,
			wantLen:   2,
		},
		{
			name:      "whitespace differences are distinct keys",
			queries:   []string{"{ me { id } }", "{me{id}}"},
			wantCalls: 2,
			wantLen:   2,
		},
		{
			name:      "failures are not cached",
			queries:   []string{"{ invalid", "{ invalid", "{ invalid"},
			wantCalls: 3,
			wantLen:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int64
			p, err := memo.New(countingParse(&calls), 0)
			if err != nil {
				t.Fatalf("New: %v", err)
			}

			for _, q := range tt.queries {
				doc, err := p.Parse(q)
				if strings.HasPrefix(q, "{ invalid") {
					if err == nil {
						t.Fatalf("Parse(%q) expected error", q)
					}
					continue
				}
				if err != nil {
					t.Fatalf("Parse(%q): %v", q, err)
				}
				if doc.source != q {
					t.Errorf("Parse(%q) returned document for %q", q, doc.source)
				}
			}

			if got := calls.Load(); got != tt.wantCalls {
				t.Errorf("parse calls = %d, want %d", got, tt.wantCalls)
			}
			if got := p.Len(); got != tt.wantLen {
				t.Errorf("Len() = %d, want %d", got, tt.wantLen)
			}
		})
	}
}

func TestParser_ReturnsSameDocument(t *testing.T) {
	var calls atomic.Int64
	p, err := memo.New(countingParse(&calls), 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	first, err := p.Parse("{ topProducts { upc } }")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	second, err := p.Parse("{ topProducts { upc } }")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if first != second {
		t.Error("expected the stored document to be returned")
	}
}

func TestParser_IndependentInstances(t *testing.T) {
	var federationCalls, monolithCalls atomic.Int64
	federation, _ := memo.New(countingParse(&federationCalls), 0)
	monolith, _ := memo.New(countingParse(&monolithCalls), 0)

	for i := 0; i < 3; i++ {
		if _, err := federation.Parse("{ me { id } }"); err != nil {
			t.Fatal(err)
		}
		if _, err := monolith.Parse("{ me { id } }"); err != nil {
			t.Fatal(err)
		}
	}

	if federationCalls.Load() != 1 || monolithCalls.Load() != 1 {
		t.Errorf("calls = (%d, %d), want (1, 1)", federationCalls.Load(), monolithCalls.Load())
	}
}

func TestParser_ConcurrentFirstCalls(t *testing.T) {
	var calls atomic.Int64
	release := make(chan struct{})
	p, err := memo.New(func(query string) (*document, error) {
		calls.Inc()
		<-release
		return &document{source: query}, nil
	}, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	const workers = 16
	var wg sync.WaitGroup
	docs := make([]*document, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			doc, err := p.Parse("{ users { id } }")
			if err != nil {
				t.Errorf("Parse: %v", err)
				return
			}
			docs[i] = doc
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("parse calls = %d, want 1", got)
	}
	for i := 1; i < workers; i++ {
		if docs[i] != docs[0] {
			t.Fatalf("worker %d received a different document", i)
		}
	}
}

func TestParser_Bounded(t *testing.T) {
	var calls atomic.Int64
	p, err := memo.New(countingParse(&calls), 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for _, q := range []string{"{ a }", "{ b }", "{ c }", "{ a }"} {
		if _, err := p.Parse(q); err != nil {
			t.Fatal(err)
		}
	}

	if got := p.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}
	// "{ a }" was evicted by "{ c }" and parsed again.
	if got := calls.Load(); got != 4 {
		t.Errorf("parse calls = %d, want 4", got)
	}
}

func TestNew_NilParse(t *testing.T) {
	if _, err := memo.New[*document](nil, 0); err == nil {
		t.Fatal("expected error for nil parse function")
	}
}
