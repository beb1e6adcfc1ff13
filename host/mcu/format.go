package mcu

import (
	"fmt"
	"strconv"
	"strings"

	"gopcnt/protocol"
)

// param is one "name=%x" field of a message format.
type param struct {
	name  string
	bytes bool
}

// msgFormat is a parsed dictionary entry such as
// "counter_state oid=%c next_clock=%u count=%u count_clock=%u".
type msgFormat struct {
	id     int
	name   string
	params []param
}

func parseFormat(id int, signature string) (msgFormat, error) {
	fields := strings.Fields(signature)
	if len(fields) == 0 {
		return msgFormat{}, fmt.Errorf("empty message format")
	}
	f := msgFormat{id: id, name: fields[0]}
	for _, field := range fields[1:] {
		name, kind, ok := strings.Cut(field, "=")
		if !ok {
			return msgFormat{}, fmt.Errorf("%s: malformed field %q", f.name, field)
		}
		switch kind {
		case "%c", "%u", "%i", "%hu", "%hi":
			f.params = append(f.params, param{name: name})
		case "%*s", "%.*s", "%s":
			f.params = append(f.params, param{name: name, bytes: true})
		default:
			return msgFormat{}, fmt.Errorf("%s: unknown type %q", f.name, kind)
		}
	}
	return f, nil
}

// encode writes numeric args in declaration order. Byte-string fields are
// not supported from the console and are sent empty.
func (f msgFormat) encode(args []uint32) (func(protocol.OutputBuffer), error) {
	want := 0
	for _, p := range f.params {
		if !p.bytes {
			want++
		}
	}
	if len(args) != want {
		return nil, fmt.Errorf("%s takes %d arguments, got %d", f.name, want, len(args))
	}
	return func(out protocol.OutputBuffer) {
		i := 0
		for _, p := range f.params {
			if p.bytes {
				protocol.EncodeVLQBytes(out, nil)
				continue
			}
			protocol.EncodeVLQUint(out, args[i])
			i++
		}
	}, nil
}

// decode reads the numeric fields of a response. Byte strings are skipped.
func (f msgFormat) decode(data *[]byte) ([]uint32, error) {
	vals := make([]uint32, 0, len(f.params))
	for _, p := range f.params {
		if p.bytes {
			if _, err := protocol.DecodeVLQBytes(data); err != nil {
				return nil, fmt.Errorf("%s.%s: %w", f.name, p.name, err)
			}
			continue
		}
		v, err := protocol.DecodeVLQUint(data)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", f.name, p.name, err)
		}
		vals = append(vals, v)
	}
	return vals, nil
}

// parseArgs converts console arguments. Both "oid=3" and "3" are accepted;
// named arguments must follow the format order.
func (f msgFormat) parseArgs(tokens []string) ([]uint32, error) {
	out := make([]uint32, 0, len(tokens))
	i := 0
	for _, tok := range tokens {
		for i < len(f.params) && f.params[i].bytes {
			i++
		}
		if i >= len(f.params) {
			return nil, fmt.Errorf("%s: too many arguments", f.name)
		}
		val := tok
		if name, v, ok := strings.Cut(tok, "="); ok {
			if name != f.params[i].name {
				return nil, fmt.Errorf("%s: expected %s, got %s", f.name, f.params[i].name, name)
			}
			val = v
		}
		n, err := strconv.ParseInt(val, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", f.name, f.params[i].name, err)
		}
		out = append(out, uint32(n))
		i++
	}
	return out, nil
}
