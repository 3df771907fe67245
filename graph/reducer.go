package graph

import (
	"fmt"
	"math"
	"math/bits"
	"reflect"
)

// Reducer merges an incoming partial value into the current value of one
// state field.
//
// Reducers must be pure: they must not mutate current or incoming and must
// not have side effects. current is nil when the field has no value yet.
// A returned error aborts the invocation with a StateError.
//
// Common patterns:
//   - Replace: last write wins (the default).
//   - Append: ordered history such as conversation messages.
//   - Sum: counters accumulated across nodes.
//   - Custom: any func(current, incoming any) (any, error).
type Reducer func(current, incoming any) (any, error)

// Replace is the default reducer: the incoming value overwrites the current
// one.
func Replace(_, incoming any) (any, error) {
	return incoming, nil
}

// Append concatenates incoming items onto the current ordered sequence.
//
// current must be a slice (or nil). incoming may be a slice, whose elements
// are appended in order, or a single value, which is appended as one
// element. The result has the type of current; when current is nil the
// result takes the type of incoming (a single value becomes a one-element
// slice of its type). A new slice is always returned.
//
// Example:
//
//	v, _ := graph.Append([]string{"a"}, []string{"b"}) // []string{"a", "b"}
//	v, _ = graph.Append(v, "c")                         // []string{"a", "b", "c"}
func Append(current, incoming any) (any, error) {
	if incoming == nil {
		return current, nil
	}
	in := reflect.ValueOf(incoming)

	if current == nil {
		if in.Kind() == reflect.Slice {
			return deepCopyValue(incoming), nil
		}
		out := reflect.MakeSlice(reflect.SliceOf(in.Type()), 0, 1)
		return reflect.Append(out, in).Interface(), nil
	}

	cur := reflect.ValueOf(current)
	if cur.Kind() != reflect.Slice {
		return nil, fmt.Errorf("append: current value is %T, not a slice", current)
	}
	elemType := cur.Type().Elem()

	items := []reflect.Value{in}
	if in.Kind() == reflect.Slice {
		items = make([]reflect.Value, in.Len())
		for i := range items {
			items[i] = in.Index(i)
		}
	}

	out := reflect.MakeSlice(cur.Type(), 0, cur.Len()+len(items))
	out = reflect.AppendSlice(out, cur)
	for _, item := range items {
		elem, ok := coerce(item, elemType)
		if !ok {
			return nil, fmt.Errorf("append: cannot add %s to %s", item.Type(), cur.Type())
		}
		out = reflect.Append(out, elem)
	}
	return out.Interface(), nil
}

// coerce unwraps interface values and checks assignability to the target
// element type.
func coerce(v reflect.Value, to reflect.Type) (reflect.Value, bool) {
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Zero(to), true
		}
		v = v.Elem()
	}
	if v.Type().AssignableTo(to) {
		return v, true
	}
	return reflect.Value{}, false
}

// Sum adds a numeric incoming value to the current value.
//
// Integers, unsigned integers and floats are supported. The result keeps
// the type of current, except that adding a float to an integer yields the
// incoming float type. nil current takes the incoming value. Integer
// results that do not fit the result type are an error.
func Sum(current, incoming any) (any, error) {
	if incoming == nil {
		return current, nil
	}
	if current == nil {
		return incoming, nil
	}

	cur := reflect.ValueOf(current)
	in := reflect.ValueOf(incoming)
	if !isNumber(cur) || !isNumber(in) {
		return nil, fmt.Errorf("sum: cannot add %T to %T", incoming, current)
	}

	switch {
	case isFloat(cur):
		out := reflect.New(cur.Type()).Elem()
		out.SetFloat(cur.Float() + asFloat(in))
		return out.Interface(), nil
	case isFloat(in):
		out := reflect.New(in.Type()).Elem()
		out.SetFloat(asFloat(cur) + in.Float())
		return out.Interface(), nil
	case isUint(cur):
		out := reflect.New(cur.Type()).Elem()
		var sum uint64
		var ok bool
		if isUint(in) {
			sum, ok = addUint(cur.Uint(), in.Uint())
			if !ok || out.OverflowUint(sum) {
				return nil, fmt.Errorf("sum: %v + %v overflows %T", current, incoming, current)
			}
		} else {
			sum, ok = addUintInt(cur.Uint(), in.Int())
			if !ok {
				if in.Int() < 0 {
					return nil, fmt.Errorf("sum: %v + %v underflows %T", current, incoming, current)
				}
				return nil, fmt.Errorf("sum: %v + %v overflows %T", current, incoming, current)
			}
			if out.OverflowUint(sum) {
				return nil, fmt.Errorf("sum: %v + %v overflows %T", current, incoming, current)
			}
		}
		out.SetUint(sum)
		return out.Interface(), nil
	default:
		out := reflect.New(cur.Type()).Elem()
		var sum int64
		ok := true
		if isUint(in) {
			if in.Uint() > math.MaxInt64 {
				ok = false
			} else {
				sum, ok = addInt(cur.Int(), int64(in.Uint()))
			}
		} else {
			sum, ok = addInt(cur.Int(), in.Int())
		}
		if !ok || out.OverflowInt(sum) {
			return nil, fmt.Errorf("sum: %v + %v overflows %T", current, incoming, current)
		}
		out.SetInt(sum)
		return out.Interface(), nil
	}
}

// addInt reports false when a+b does not fit in an int64.
func addInt(a, b int64) (int64, bool) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, false
	}
	return sum, true
}

// addUint reports false when a+b does not fit in a uint64.
func addUint(a, b uint64) (uint64, bool) {
	sum, carry := bits.Add64(a, b, 0)
	return sum, carry == 0
}

// addUintInt adds a signed delta to a uint64, reporting false when the
// result is negative or does not fit.
func addUintInt(a uint64, b int64) (uint64, bool) {
	if b >= 0 {
		return addUint(a, uint64(b))
	}
	neg := uint64(-(b + 1)) + 1
	if neg > a {
		return 0, false
	}
	return a - neg, true
}

func isNumber(v reflect.Value) bool {
	return isInt(v) || isUint(v) || isFloat(v)
}

func isInt(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}

func isUint(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func isFloat(v reflect.Value) bool {
	return v.Kind() == reflect.Float32 || v.Kind() == reflect.Float64
}

func asFloat(v reflect.Value) float64 {
	switch {
	case isInt(v):
		return float64(v.Int())
	case isUint(v):
		return float64(v.Uint())
	default:
		return v.Float()
	}
}
