package lintas

import (
	"context"
	"errors"
	"net/http"
)

// Serializer turns a typed input into an HTTP request. The request path and
// query are relative; the endpoint stage supplies scheme and authority.
// Serializers install bodies with SetByteBody or SetStreamingBody so the
// replay contract is wired correctly.
type Serializer interface {
	SerializeInput(ctx context.Context, input interface{}, cfg *ConfigBag) (*http.Request, error)
}

// SerializerFunc adapts a function to the Serializer interface.
type SerializerFunc func(ctx context.Context, input interface{}, cfg *ConfigBag) (*http.Request, error)

// SerializeInput implements Serializer.
func (f SerializerFunc) SerializeInput(ctx context.Context, input interface{}, cfg *ConfigBag) (*http.Request, error) {
	return f(ctx, input, cfg)
}

// Operation describes one service operation: identity, codec, and the
// plugins applied per invocation. Immutable once constructed; generated
// clients build one per operation at construction time and reference it for
// the life of the process.
type Operation struct {
	// ServiceID and OperationID identify the operation for telemetry,
	// endpoint parameters, and auth parameters.
	ServiceID   string
	OperationID string

	Serializer   Serializer
	Deserializer Deserializer

	// Plugins run at invocation time, after client plugins, and may
	// contribute config layers, component overrides, and interceptors.
	Plugins []RuntimePlugin
}

func (o *Operation) validate() error {
	if o == nil {
		return errors.New("operation is nil")
	}
	if o.OperationID == "" {
		return errors.New("operation id is required")
	}
	if o.Serializer == nil {
		return errors.New("operation " + o.OperationID + " has no serializer")
	}
	if o.Deserializer == nil {
		return errors.New("operation " + o.OperationID + " has no deserializer")
	}
	return nil
}
