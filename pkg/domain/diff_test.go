package domain

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestDiff(t *testing.T) {
	tests := []struct {
		name      string
		old       map[string]any
		new       map[string]any
		wantDelta Delta // nil means no change
	}{
		{
			name:      "Initial Load (Old is Nil)",
			old:       nil,
			new:       map[string]any{"a": 1},
			wantDelta: Delta{"a": 1},
		},
		{
			name:      "No Changes",
			old:       map[string]any{"a": 1},
			new:       map[string]any{"a": 1},
			wantDelta: nil,
		},
		{
			name:      "Added & Modified",
			old:       map[string]any{"a": 1, "b": "old"},
			new:       map[string]any{"a": 1, "b": "new", "c": true},
			wantDelta: Delta{"b": "new", "c": true},
		},
		{
			name:      "Deletion",
			old:       map[string]any{"a": 1, "b": 2},
			new:       map[string]any{"a": 1},
			wantDelta: Delta{"b": nil},
		},
		{
			name:      "Nested Map Change",
			old:       map[string]any{"sharedState": map[string]any{"username": "bob"}},
			new:       map[string]any{"sharedState": map[string]any{"username": "alice"}},
			wantDelta: Delta{"sharedState": map[string]any{"username": "alice"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.old, tt.new)
			if !reflect.DeepEqual(got, tt.wantDelta) {
				t.Errorf("Diff() = %v, want %v", got, tt.wantDelta)
			}
		})
	}
}

func TestApply_RoundTrip(t *testing.T) {
	old := map[string]any{"a": 1, "b": 2, "nested": map[string]any{"x": "y"}}
	want := map[string]any{"a": 1, "c": 3, "nested": map[string]any{"x": "z"}}

	delta := Diff(old, want)
	got := Apply(cloneMap(old), delta)

	if !reflect.DeepEqual(got, want) {
		t.Errorf("Apply(Diff()) = %v, want %v", got, want)
	}
}

func TestApply_DoesNotAliasDelta(t *testing.T) {
	inner := map[string]any{"k": "v"}
	dst := Apply(nil, Delta{"m": inner})
	inner["k"] = "mutated"

	if dst["m"].(map[string]any)["k"] != "v" {
		t.Errorf("Apply should copy nested maps, got %v", dst["m"])
	}
}

func TestDeltaJSONSerialization(t *testing.T) {
	t.Run("Deletions as Null", func(t *testing.T) {
		delta := Diff(map[string]any{"a": 1, "b": 2}, map[string]any{"a": 1})
		if delta == nil {
			t.Fatal("Expected delta, got nil")
		}

		bytes, _ := json.Marshal(delta)
		if !strings.Contains(string(bytes), `"b":null`) {
			t.Errorf("JSON should contain 'b':null for deletion, got: %s", string(bytes))
		}
	})
}
