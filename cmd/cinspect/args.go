package main

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/cbinding/ctype"
	"github.com/wippyai/cbinding/value"
)

// splitArgs splits a comma-separated argument list, keeping commas inside
// braces, brackets and quotes.
func splitArgs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	var quote byte
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '{' || c == '[':
			depth++
		case c == '}' || c == ']':
			depth--
		case c == ',' && depth == 0:
			out = append(out, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	return append(out, strings.TrimSpace(s[start:]))
}

func parseArgs(fn *ctype.Function, raw []string) ([]any, error) {
	if len(raw) < len(fn.Params) || (!fn.Variadic && len(raw) > len(fn.Params)) {
		return nil, fmt.Errorf("%s takes %d arguments, got %d", fn, len(fn.Params), len(raw))
	}
	args := make([]any, len(raw))
	for i, s := range raw {
		if i >= len(fn.Params) {
			args[i] = guessArg(s)
			continue
		}
		a, err := parseArg(s, fn.Params[i].Type)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		args[i] = a
	}
	return args, nil
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		if u, err := strconv.Unquote(`"` + s[1:len(s)-1] + `"`); err == nil {
			return u
		}
		return s[1 : len(s)-1]
	}
	return s
}

// parseArg reads s as a value of the C type t.
func parseArg(s string, t ctype.Type) (any, error) {
	u, _ := ctype.Unqualify(t)
	switch tt := u.(type) {
	case *ctype.Primitive:
		switch tt.Kind() {
		case ctype.KindBool:
			return strconv.ParseBool(s)
		case ctype.KindInt:
			if tt.Size == 1 && len(s) == 3 && s[0] == '\'' && s[2] == '\'' {
				return int64(s[1]), nil
			}
			if tt.Signed {
				return strconv.ParseInt(s, 0, 64)
			}
			return strconv.ParseUint(s, 0, 64)
		case ctype.KindFloat:
			if tt.Size == 4 {
				f, err := strconv.ParseFloat(s, 32)
				return float32(f), err
			}
			return strconv.ParseFloat(s, 64)
		}
	case *ctype.Enum:
		if v, err := strconv.ParseInt(s, 0, 64); err == nil {
			return v, nil
		}
		return s, nil
	case *ctype.Pointer:
		switch {
		case s == "null" || s == "NULL" || s == "nil":
			return nil, nil
		case len(s) > 0 && (s[0] == '"' || s[0] == '\''):
			return unquote(s), nil
		}
		if addr, err := strconv.ParseUint(s, 0, 64); err == nil {
			return uintptr(addr), nil
		}
		return s, nil
	case *ctype.Array:
		return parseArg(s, ctype.PointerTo(tt.Elem))
	case *ctype.Struct, *ctype.Union:
		var init any
		if err := yaml.Unmarshal([]byte(s), &init); err != nil {
			return nil, fmt.Errorf("%s initializer: %w", t, err)
		}
		return init, nil
	}
	return nil, fmt.Errorf("cannot pass %s from the command line", t)
}

// guessArg picks a Go type for a variadic argument from its spelling.
func guessArg(s string) any {
	if len(s) > 0 && (s[0] == '"' || s[0] == '\'') {
		return unquote(s)
	}
	if v, err := strconv.ParseInt(s, 0, 64); err == nil {
		return int(v)
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	return s
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "void"
	case *value.Value:
		out, err := x.Export()
		if err != nil {
			return fmt.Sprintf("<%s: %v>", x.Type(), err)
		}
		return fmt.Sprintf("%s %v", x.Type(), out)
	case value.Pointer:
		return x.String()
	case float32, float64:
		return fmt.Sprintf("%g", x)
	}
	return fmt.Sprintf("%v", v)
}
