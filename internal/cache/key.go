package cache

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// CallKey identifies one memoized call: the function name plus its ordered
// positional arguments and its keyword arguments.
type CallKey struct {
	Function string
	Args     []any
	Kwargs   map[string]any
}

// NewCallKey builds a CallKey. Args and kwargs must be JSON-encodable.
func NewCallKey(function string, args []any, kwargs map[string]any) CallKey {
	return CallKey{Function: function, Args: args, Kwargs: kwargs}
}

// ArgsJSON returns the positional arguments encoded in call order.
func (k CallKey) ArgsJSON() string {
	args := k.Args
	if args == nil {
		args = []any{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("%v", args)
	}
	return string(data)
}

// KwargsJSON returns the keyword arguments as name-sorted [name, value] pairs.
func (k CallKey) KwargsJSON() string {
	names := make([]string, 0, len(k.Kwargs))
	for name := range k.Kwargs {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([][2]any, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, [2]any{name, k.Kwargs[name]})
	}
	data, err := json.Marshal(pairs)
	if err != nil {
		return fmt.Sprintf("%v", pairs)
	}
	return string(data)
}

// Canonical returns the stable textual form used for hashing.
// Keyword order never matters; positional order always does.
func (k CallKey) Canonical() string {
	fn, _ := json.Marshal(k.Function)
	return "[" + string(fn) + "," + k.ArgsJSON() + "," + k.KwargsJSON() + "]"
}

// ID returns the digest of the canonical form, used as the storage key.
func (k CallKey) ID() string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(k.Canonical()))
}
