package lintas

// RuntimePlugin contributes configuration and component overrides to an
// invocation. Plugins are the only place components may be replaced;
// interceptors can only mutate config and the transient context. Client
// plugins run once at client construction; operation plugins run per
// invocation, after client plugins, so later plugins win.
type RuntimePlugin interface {
	// Name labels the config layer this plugin produces.
	Name() string
	// Apply writes configuration into layer and overrides components on
	// rc, including registering interceptors.
	Apply(layer *Layer, rc *RuntimeComponents)
}

type pluginFunc struct {
	name string
	fn   func(layer *Layer, rc *RuntimeComponents)
}

func (p pluginFunc) Name() string { return p.name }

func (p pluginFunc) Apply(layer *Layer, rc *RuntimeComponents) { p.fn(layer, rc) }

// PluginFunc builds a RuntimePlugin from a name and a function.
func PluginFunc(name string, fn func(layer *Layer, rc *RuntimeComponents)) RuntimePlugin {
	return pluginFunc{name: name, fn: fn}
}

// applyPlugins runs each plugin in order, freezing one config layer per
// plugin onto the bag.
func applyPlugins(bag *ConfigBag, rc *RuntimeComponents, plugins []RuntimePlugin) {
	for _, p := range plugins {
		layer := NewLayer(p.Name())
		p.Apply(layer, rc)
		bag.AddLayer(layer)
	}
}
