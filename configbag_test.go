package lintas

import (
	"testing"
)

type bagString struct{ V string }
type bagInt struct{ V int }
type bagTag struct{ V string }

func TestConfigBagStoreAndLoad(t *testing.T) {
	bag := NewConfigBag()

	if _, ok := Load[bagString](bag); ok {
		t.Fatal("Load on empty bag reported a value")
	}

	StorePut(bag, bagString{V: "a"})
	got, ok := Load[bagString](bag)
	if !ok || got.V != "a" {
		t.Fatalf("Load = %+v, %v, want {a}, true", got, ok)
	}

	// Replace mode: later stores shadow earlier ones.
	StorePut(bag, bagString{V: "b"})
	got, _ = Load[bagString](bag)
	if got.V != "b" {
		t.Errorf("after second StorePut, Load = %q, want b", got.V)
	}
}

func TestConfigBagLoadOr(t *testing.T) {
	bag := NewConfigBag()
	if got := LoadOr(bag, bagInt{V: 42}); got.V != 42 {
		t.Errorf("LoadOr default = %d, want 42", got.V)
	}
	StorePut(bag, bagInt{V: 7})
	if got := LoadOr(bag, bagInt{V: 42}); got.V != 7 {
		t.Errorf("LoadOr stored = %d, want 7", got.V)
	}
}

func TestConfigBagFreezeLayering(t *testing.T) {
	bag := NewConfigBag()
	StorePut(bag, bagString{V: "client"})
	bag.Freeze("client")

	// Values in frozen layers stay visible.
	got, ok := Load[bagString](bag)
	if !ok || got.V != "client" {
		t.Fatalf("after freeze, Load = %+v, %v", got, ok)
	}

	// The mutable top shadows frozen layers without mutating them.
	StorePut(bag, bagString{V: "operation"})
	got, _ = Load[bagString](bag)
	if got.V != "operation" {
		t.Errorf("top layer value = %q, want operation", got.V)
	}

	if bag.Layers() != 2 {
		t.Errorf("Layers() = %d, want 2", bag.Layers())
	}
}

func TestConfigBagSeparateTypesDoNotCollide(t *testing.T) {
	bag := NewConfigBag()
	StorePut(bag, bagString{V: "s"})
	StorePut(bag, bagTag{V: "t"})
	s, _ := Load[bagString](bag)
	tag, _ := Load[bagTag](bag)
	if s.V != "s" || tag.V != "t" {
		t.Errorf("cross-type collision: %q, %q", s.V, tag.V)
	}
}

func TestConfigBagAppendMode(t *testing.T) {
	bag := NewConfigBag()
	StoreAppend(bag, bagString{V: "one"})
	StoreAppend(bag, bagString{V: "two"})
	bag.Freeze("first")
	StoreAppend(bag, bagString{V: "three"})

	all := LoadAppend[bagString](bag)
	if len(all) != 3 {
		t.Fatalf("LoadAppend returned %d values, want 3", len(all))
	}
	// Deepest layer first, then insertion order within a layer.
	want := []string{"one", "two", "three"}
	for i, v := range all {
		if v.V != want[i] {
			t.Errorf("LoadAppend[%d] = %q, want %q", i, v.V, want[i])
		}
	}
}

func TestConfigBagAddLayer(t *testing.T) {
	layer := NewLayer("plugin")
	LayerPut(layer, bagInt{V: 9})

	bag := NewConfigBag()
	bag.AddLayer(layer)

	got, ok := Load[bagInt](bag)
	if !ok || got.V != 9 {
		t.Fatalf("value from added layer = %+v, %v", got, ok)
	}

	// Top-level stores shadow the contributed layer.
	StorePut(bag, bagInt{V: 10})
	got, _ = Load[bagInt](bag)
	if got.V != 10 {
		t.Errorf("shadowed value = %d, want 10", got.V)
	}
}

func TestConfigBagLayerAppendMergesAcrossLayers(t *testing.T) {
	l1 := NewLayer("a")
	LayerAppend(l1, bagTag{V: "from-a"})
	l2 := NewLayer("b")
	LayerAppend(l2, bagTag{V: "from-b"})

	bag := NewConfigBag()
	bag.AddLayer(l1)
	bag.AddLayer(l2)

	all := LoadAppend[bagTag](bag)
	if len(all) != 2 || all[0].V != "from-a" || all[1].V != "from-b" {
		t.Errorf("LoadAppend across layers = %+v", all)
	}
}

func BenchmarkConfigBagLoad(b *testing.B) {
	bag := NewConfigBag()
	StorePut(bag, bagString{V: "client"})
	bag.Freeze("client")
	StorePut(bag, bagInt{V: 1})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Load[bagString](bag)
	}
}
