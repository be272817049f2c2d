package pglock

import (
	"encoding/json"
	"fmt"
	"hash/crc32"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Key identifies an advisory lock. It is one of Int, Pair or Text.
type Key interface {
	// args renders the function arguments, e.g. "42" or "1, 2".
	args() string
	// comment is the human readable form appended to the acquire statement.
	comment() string
	String() string
}

// Int is a single bigint key, passed to the one-argument lock functions unchanged.
type Int int64

func (k Int) args() string    { return strconv.FormatInt(int64(k), 10) }
func (k Int) comment() string { return "" }
func (k Int) String() string  { return k.args() }

// Pair selects the two-argument (int4, int4) variant of the lock functions.
type Pair [2]int32

func (k Pair) args() string {
	return fmt.Sprintf("%d, %d", k[0], k[1])
}
func (k Pair) comment() string { return "(" + k.args() + ")" }
func (k Pair) String() string  { return k.comment() }

// Text is folded into a signed 32-bit key with Fold.
type Text string

func (k Text) args() string    { return strconv.FormatInt(int64(Fold(string(k))), 10) }
func (k Text) comment() string { return string(k) }
func (k Text) String() string  { return string(k) }

// Fold maps s onto the int4 range: CRC-32 (IEEE) of the UTF-8 bytes, masked to 31 bits,
// minus 2^31 when the top checksum bit is set.
func Fold(s string) int32 {
	sum := crc32.ChecksumIEEE([]byte(s))
	v := int64(sum & math.MaxInt32)
	if sum&(1<<31) != 0 {
		v -= 1 << 31
	}
	return int32(v)
}

// ParseKey converts loosely typed input (config values, decoded JSON) into a Key.
// Integers, and floats holding whole numbers as encoding/json produces them, become Int;
// strings become Text and two-element sequences of integers become Pair. Byte slices are
// rejected rather than read as a pair of bytes.
func ParseKey(v any) (Key, error) {
	switch k := v.(type) {
	case Key:
		return k, nil
	case string:
		return Text(k), nil
	case json.Number:
		i, err := k.Int64()
		if err != nil {
			return nil, invalidKey(v, "json number is not an integer")
		}
		return Int(i), nil
	case nil:
		return nil, invalidKey(v, "nil key")
	}

	if i, ok := asInt(v); ok {
		return Int(i), nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, invalidKey(v, fmt.Sprintf("cannot use %T as a lock id", v))
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, invalidKey(v, "byte strings are not lock ids")
	}
	if rv.Len() != 2 {
		return nil, invalidKey(v, "pair lock ids must have exactly two entries")
	}
	var pair Pair
	for i := 0; i < 2; i++ {
		n, ok := asInt(rv.Index(i).Interface())
		if !ok {
			return nil, invalidKey(v, "both members of a pair lock id must be integers")
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, invalidKey(v, "pair members must fit in int32")
		}
		pair[i] = int32(n)
	}
	return pair, nil
}

// ParseKeyString reads a key from the command line: "42" is an Int, "1,2" a Pair and
// anything else a Text.
func ParseKeyString(s string) (Key, error) {
	if s == "" {
		return nil, invalidKey(s, "empty key")
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int(i), nil
	}
	parts := strings.Split(s, ",")
	if len(parts) == 2 {
		a, errA := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
		b, errB := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
		if errA == nil && errB == nil {
			return ParseKey([]int64{a, b})
		}
	}
	return Text(s), nil
}

func asInt(v any) (int64, bool) {
	if v == nil {
		return 0, false
	}
	if n, ok := v.(json.Number); ok {
		i, err := n.Int64()
		return i, err == nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, false
		}
		return int64(u), true
	case reflect.Float32, reflect.Float64:
		// 2^63 is exact as a float64; anything at or above it overflows int64
		f := rv.Float()
		if f != math.Trunc(f) || f < math.MinInt64 || f >= 1<<63 {
			return 0, false
		}
		return int64(f), true
	}
	return 0, false
}
