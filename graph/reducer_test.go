package graph

import (
	"math"
	"reflect"
	"testing"
)

func TestAppend(t *testing.T) {
	tests := []struct {
		name     string
		current  any
		incoming any
		want     any
		wantErr  bool
	}{
		{"slice onto slice", []string{"a"}, []string{"b", "c"}, []string{"a", "b", "c"}, false},
		{"single value", []string{"a"}, "b", []string{"a", "b"}, false},
		{"nil current takes slice", nil, []int{1, 2}, []int{1, 2}, false},
		{"nil current wraps value", nil, 5, []int{5}, false},
		{"nil incoming is a no-op", []int{1}, nil, []int{1}, false},
		{"interface elements", []any{"a"}, []any{1, true}, []any{"a", 1, true}, false},
		{"any slice unwraps", []string{"a"}, []any{"b"}, []string{"a", "b"}, false},
		{"type mismatch", []string{"a"}, 3, nil, true},
		{"current not a slice", "a", "b", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Append(tt.current, tt.incoming)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Append() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Append() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestAppend_DoesNotAliasInputs(t *testing.T) {
	current := make([]string, 1, 10)
	current[0] = "a"

	got, err := Append(current, "b")
	if err != nil {
		t.Fatal(err)
	}
	got.([]string)[0] = "changed"
	if current[0] != "a" {
		t.Error("Append result aliases current slice")
	}

	incoming := []int{1}
	got, _ = Append(nil, incoming)
	got.([]int)[0] = 2
	if incoming[0] != 1 {
		t.Error("Append result aliases incoming slice")
	}
}

func TestSum(t *testing.T) {
	tests := []struct {
		name     string
		current  any
		incoming any
		want     any
		wantErr  bool
	}{
		{"ints", 2, 3, 5, false},
		{"int64", int64(2), int64(-5), int64(-3), false},
		{"floats", 1.5, 2.25, 3.75, false},
		{"int plus float", 1, 0.5, 1.5, false},
		{"uints", uint(2), uint(3), uint(5), false},
		{"nil current", nil, 4, 4, false},
		{"nil incoming", 4, nil, 4, false},
		{"uint underflow", uint(1), -2, nil, true},
		{"uint minus int", uint(5), -2, uint(3), false},
		{"int64 overflow", int64(math.MaxInt64), int64(1), nil, true},
		{"int64 underflow", int64(math.MinInt64), int64(-1), nil, true},
		{"int plus large uint", 1, uint64(math.MaxUint64), nil, true},
		{"int8 overflow", int8(127), 1, nil, true},
		{"uint64 overflow", uint64(math.MaxUint64), uint64(1), nil, true},
		{"uint8 overflow", uint8(250), 10, nil, true},
		{"uint64 plus max int", uint64(1), math.MaxInt64, uint64(1 << 63), false},
		{"not a number", 1, "2", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Sum(tt.current, tt.incoming)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Sum() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Sum() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestReplace(t *testing.T) {
	got, err := Replace("old", "new")
	if err != nil || got != "new" {
		t.Errorf("Replace() = %v, %v", got, err)
	}
}
