package lintas

import (
	"reflect"
)

// ConfigBag is the layered, typed configuration store feeding every runtime
// component for one invocation. It holds a stack of frozen layers plus one
// mutable top layer. Lookup walks layers top-down; the first layer with a
// value for the key wins for replace-mode keys, while append-mode keys
// accumulate across all layers in insertion order.
//
// Keys are Go types chosen by the storing component, so collisions across
// components are impossible. A ConfigBag belongs to a single invocation and
// must not be mutated concurrently.
type ConfigBag struct {
	frozen []*Layer
	top    *Layer
}

// Layer is one named stratum of a ConfigBag. Plugins build layers; the
// orchestrator freezes them onto the bag.
type Layer struct {
	name    string
	entries map[reflect.Type]*bagEntry
}

type bagEntry struct {
	appendMode bool
	value      interface{}
	values     []interface{}
}

// NewConfigBag creates an empty bag with a fresh mutable top layer.
func NewConfigBag() *ConfigBag {
	return &ConfigBag{top: NewLayer("top")}
}

// NewLayer creates an empty named layer.
func NewLayer(name string) *Layer {
	return &Layer{name: name, entries: make(map[reflect.Type]*bagEntry)}
}

// Name returns the layer's diagnostic name.
func (l *Layer) Name() string { return l.name }

// AddLayer pushes an already-built layer beneath the mutable top layer.
// Later-added layers shadow earlier ones.
func (b *ConfigBag) AddLayer(l *Layer) {
	if l == nil {
		return
	}
	b.frozen = append(b.frozen, l)
}

// Freeze converts the mutable top layer into a frozen one under the given
// name and pushes a fresh mutable layer on top.
func (b *ConfigBag) Freeze(name string) {
	if len(b.top.entries) > 0 {
		b.top.name = name
		b.frozen = append(b.frozen, b.top)
	}
	b.top = NewLayer("top")
}

// Layers returns the number of layers currently stacked, counting the
// mutable top layer.
func (b *ConfigBag) Layers() int { return len(b.frozen) + 1 }

func typeKey[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// LayerPut stores v in the layer under its type key, replacing any prior
// value in the same layer.
func LayerPut[T any](l *Layer, v T) {
	l.entries[typeKey[T]()] = &bagEntry{value: v}
}

// LayerAppend accumulates v under its type key within the layer.
func LayerAppend[T any](l *Layer, v T) {
	k := typeKey[T]()
	e, ok := l.entries[k]
	if !ok || !e.appendMode {
		e = &bagEntry{appendMode: true}
		l.entries[k] = e
	}
	e.values = append(e.values, v)
}

// StorePut stores v on the bag's mutable top layer, shadowing any value for
// the same key in deeper layers.
func StorePut[T any](b *ConfigBag, v T) {
	LayerPut(b.top, v)
}

// StoreAppend accumulates v on the bag's mutable top layer. LoadAppend
// returns values from all layers, deepest first.
func StoreAppend[T any](b *ConfigBag, v T) {
	LayerAppend(b.top, v)
}

// Load returns the top-most value stored for type T, searching the mutable
// top layer first and then frozen layers newest to oldest.
func Load[T any](b *ConfigBag) (T, bool) {
	k := typeKey[T]()
	if v, ok := loadLayer[T](b.top, k); ok {
		return v, true
	}
	for i := len(b.frozen) - 1; i >= 0; i-- {
		if v, ok := loadLayer[T](b.frozen[i], k); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// LoadOr returns the stored value for T or the given default.
func LoadOr[T any](b *ConfigBag, def T) T {
	if v, ok := Load[T](b); ok {
		return v
	}
	return def
}

// LoadAppend returns every appended value of type T across all layers,
// deepest-first insertion order.
func LoadAppend[T any](b *ConfigBag) []T {
	k := typeKey[T]()
	var out []T
	collect := func(l *Layer) {
		e, ok := l.entries[k]
		if !ok || !e.appendMode {
			return
		}
		for _, v := range e.values {
			if tv, ok := v.(T); ok {
				out = append(out, tv)
			}
		}
	}
	for _, l := range b.frozen {
		collect(l)
	}
	collect(b.top)
	return out
}

func loadLayer[T any](l *Layer, k reflect.Type) (T, bool) {
	var zero T
	e, ok := l.entries[k]
	if !ok || e.appendMode {
		return zero, false
	}
	v, ok := e.value.(T)
	if !ok {
		return zero, false
	}
	return v, true
}
