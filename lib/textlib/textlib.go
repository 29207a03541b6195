// Package textlib provides the text module: rune-aware string helpers
// for embedded code. Positions are 1-based and count runes, not bytes.
package textlib

import (
	"strings"
	"unicode/utf8"

	"github.com/chazu/deneb/bridge"
	"github.com/chazu/deneb/vm"
)

// Module is the text module. Installing it defines a global "text"
// table.
var Module = bridge.Module{
	Name: "text",
	Doc:  "rune-aware text helpers",
	Funcs: []bridge.Fn{
		{Name: "upper", Doc: "upper(s) - uppercase s", F: upper},
		{Name: "lower", Doc: "lower(s) - lowercase s", F: lower},
		{Name: "len", Doc: "len(s) - number of runes in s", F: length},
		{Name: "sub", Doc: "sub(s, i, j) - runes i through j, 1-based; negative positions count from the end", F: sub},
		{Name: "reverse", Doc: "reverse(s) - s with its runes reversed", F: reverse},
		{Name: "trim", Doc: "trim(s) - s without surrounding whitespace", F: trim},
	},
}

func upper(ctx *bridge.Context) (int, error) {
	s, err := bridge.PeekText(ctx, 1)
	if err != nil {
		return 0, err
	}
	bridge.PushText(ctx, strings.ToUpper(s))
	return 1, nil
}

func lower(ctx *bridge.Context) (int, error) {
	s, err := bridge.PeekText(ctx, 1)
	if err != nil {
		return 0, err
	}
	bridge.PushText(ctx, strings.ToLower(s))
	return 1, nil
}

func length(ctx *bridge.Context) (int, error) {
	s, err := bridge.PeekText(ctx, 1)
	if err != nil {
		return 0, err
	}
	bridge.PushInteger(ctx, int64(utf8.RuneCountInString(s)))
	return 1, nil
}

// sub clamps out-of-range positions instead of failing; an inverted
// range yields the empty string.
func sub(ctx *bridge.Context) (int, error) {
	s, err := bridge.PeekText(ctx, 1)
	if err != nil {
		return 0, err
	}
	i, err := bridge.PeekInteger(ctx, 2)
	if err != nil {
		return 0, err
	}
	j := int64(-1)
	if t := ctx.S.TypeOf(3); t != vm.TypeNone && t != vm.TypeNil {
		if j, err = bridge.PeekInteger(ctx, 3); err != nil {
			return 0, err
		}
	}

	runes := []rune(s)
	n := int64(len(runes))
	if i < 0 {
		i = n + i + 1
	}
	if j < 0 {
		j = n + j + 1
	}
	if i < 1 {
		i = 1
	}
	if j > n {
		j = n
	}
	if i > j {
		bridge.PushText(ctx, "")
		return 1, nil
	}
	bridge.PushText(ctx, string(runes[i-1:j]))
	return 1, nil
}

func reverse(ctx *bridge.Context) (int, error) {
	s, err := bridge.PeekText(ctx, 1)
	if err != nil {
		return 0, err
	}
	runes := []rune(s)
	for lo, hi := 0, len(runes)-1; lo < hi; lo, hi = lo+1, hi-1 {
		runes[lo], runes[hi] = runes[hi], runes[lo]
	}
	bridge.PushText(ctx, string(runes))
	return 1, nil
}

func trim(ctx *bridge.Context) (int, error) {
	s, err := bridge.PeekText(ctx, 1)
	if err != nil {
		return 0, err
	}
	bridge.PushText(ctx, strings.TrimSpace(s))
	return 1, nil
}
