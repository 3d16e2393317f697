package protocol

import (
	"fmt"
	"sort"

	"github.com/automoto/netcode/shared/netmsg"
)

// ComponentTag is the stable wire identifier for a replicated component
// type. Tags below 10 are reserved for future protocol use, mirroring the
// sync-ID convention of the sibling projects.
type ComponentTag uint16

// ComponentCodec serializes one component type. Diff and Apply default to
// the run-based byte diff from netmsg when nil.
type ComponentCodec struct {
	Name   string
	Encode func(v any) ([]byte, error)
	Decode func(data []byte) (any, error)
	Diff   func(old, new []byte) []byte
	Apply  func(old, diff []byte) ([]byte, error)
}

// Registry maps component tags to codecs. It is built once at startup and
// read-only afterwards, so lookups are safe from the tick loop and the send
// pool without locking.
type Registry struct {
	codecs map[ComponentTag]ComponentCodec
	sealed bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{codecs: make(map[ComponentTag]ComponentCodec)}
}

var ErrUnknownComponent = fmt.Errorf("unknown component tag")

// Register adds a codec under tag. Registering after Seal or reusing a tag
// is a programming error and fails loudly.
func (r *Registry) Register(tag ComponentTag, c ComponentCodec) error {
	if r.sealed {
		return fmt.Errorf("register component %d (%s): registry sealed", tag, c.Name)
	}
	if _, dup := r.codecs[tag]; dup {
		return fmt.Errorf("register component %d (%s): tag already registered", tag, c.Name)
	}
	if c.Encode == nil || c.Decode == nil {
		return fmt.Errorf("register component %d (%s): nil encode/decode", tag, c.Name)
	}
	if c.Diff == nil {
		c.Diff = netmsg.Diff
	}
	if c.Apply == nil {
		c.Apply = netmsg.ApplyDiff
	}
	r.codecs[tag] = c
	return nil
}

// Seal freezes the registry. Call after both ends finish registration,
// before any network traffic.
func (r *Registry) Seal() { r.sealed = true }

// Lookup returns the codec for tag.
func (r *Registry) Lookup(tag ComponentTag) (ComponentCodec, error) {
	c, ok := r.codecs[tag]
	if !ok {
		return ComponentCodec{}, fmt.Errorf("component tag %d: %w", tag, ErrUnknownComponent)
	}
	return c, nil
}

// Tags returns all registered tags in ascending order.
func (r *Registry) Tags() []ComponentTag {
	out := make([]ComponentTag, 0, len(r.codecs))
	for tag := range r.codecs {
		out = append(out, tag)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
