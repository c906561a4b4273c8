package executor_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/n9te9/federation-benchmark/federation/executor"
)

func TestMerge(t *testing.T) {
	tests := []struct {
		name     string
		target   map[string]any
		source   any
		path     []string
		expected map[string]any
		wantErr  bool
	}{
		{
			name:   "Simple merge at root level",
			target: map[string]any{"product": map[string]any{"id": "1"}},
			source: map[string]any{"reviews": []any{map[string]any{"body": "Great product"}}},
			expected: map[string]any{
				"product": map[string]any{"id": "1"},
				"reviews": []any{map[string]any{"body": "Great product"}},
			},
		},
		{
			name:   "Root merge keeps fields of nested objects",
			target: map[string]any{"product": map[string]any{"id": "1", "name": "Table"}},
			source: map[string]any{"product": map[string]any{"id": "1", "inStock": true}},
			expected: map[string]any{
				"product": map[string]any{"id": "1", "name": "Table", "inStock": true},
			},
		},
		{
			name:     "Merge into nested object",
			target:   map[string]any{"product": map[string]any{"id": "1"}},
			source:   map[string]any{"name": "Product 1"},
			path:     []string{"product"},
			expected: map[string]any{"product": map[string]any{"id": "1", "name": "Product 1"}},
		},
		{
			name: "Merge into list elements",
			target: map[string]any{"products": []any{
				map[string]any{"upc": "1"},
				map[string]any{"upc": "2"},
			}},
			source: []any{
				map[string]any{"inStock": true},
				map[string]any{"inStock": false},
			},
			path: []string{"products"},
			expected: map[string]any{"products": []any{
				map[string]any{"upc": "1", "inStock": true},
				map[string]any{"upc": "2", "inStock": false},
			}},
		},
		{
			name:   "Null does not overwrite a value",
			target: map[string]any{"me": map[string]any{"id": "1"}},
			source: map[string]any{"me": nil},
			expected: map[string]any{
				"me": map[string]any{"id": "1"},
			},
		},
		{
			name:    "List length mismatch",
			target:  map[string]any{"products": []any{map[string]any{"upc": "1"}}},
			source:  []any{},
			path:    []string{"products"},
			wantErr: true,
		},
		{
			name:    "Missing intermediate value",
			target:  map[string]any{},
			source:  map[string]any{"name": "x"},
			path:    []string{"product", "owner"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := executor.Merge(tt.target, tt.source, tt.path)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Merge: %v", err)
			}
			if diff := cmp.Diff(tt.expected, tt.target); diff != "" {
				t.Errorf("merged mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
