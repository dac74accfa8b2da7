package lintas

import (
	"bytes"
	"io"
	"net/http"
	"strings"
)

// Header names the runtime recognizes on responses.
const (
	requestIDHeader         = "x-amzn-requestid"
	altRequestIDHeader      = "x-amz-request-id"
	extendedRequestIDHeader = "x-amz-id-2"
	queryErrorHeader        = "x-amzn-query-error"
)

// Deserializer turns a response into a typed output or a modeled error. The
// orchestrator buffers the response body before calling it, so the body can
// be read fully without blocking on the network.
type Deserializer interface {
	DeserializeResponse(resp *http.Response) (interface{}, error)
}

// DeserializerFunc adapts a function to the Deserializer interface.
type DeserializerFunc func(resp *http.Response) (interface{}, error)

// DeserializeResponse implements Deserializer.
func (f DeserializerFunc) DeserializeResponse(resp *http.Response) (interface{}, error) {
	return f(resp)
}

// StreamingDeserializer is implemented by deserializers of streaming
// operations. DeserializeStreaming is called at first byte with the live
// body; the body is handed to the output and must be closed by the caller
// of the operation. Error responses still take the buffered path.
type StreamingDeserializer interface {
	Deserializer
	DeserializeStreaming(resp *http.Response) (interface{}, error)
}

// ResponseMetadata is extracted from every response and attached to outputs
// and modeled errors that can carry it.
type ResponseMetadata struct {
	RequestID         string
	ExtendedRequestID string
	StatusCode        int
	QueryErrorCode    string
	QueryErrorType    string
}

// MetadataCarrier holds response metadata. Embed it in outputs and modeled
// error types to receive request ids automatically.
type MetadataCarrier struct {
	meta ResponseMetadata
	set  bool
}

// SetResponseMetadata stores the metadata. Called by the orchestrator.
func (m *MetadataCarrier) SetResponseMetadata(md ResponseMetadata) {
	m.meta = md
	m.set = true
}

// ResponseMetadata returns the stored metadata.
func (m *MetadataCarrier) ResponseMetadata() ResponseMetadata { return m.meta }

// RequestID returns the service request id, if the response carried one.
func (m *MetadataCarrier) RequestID() (string, bool) {
	if !m.set || m.meta.RequestID == "" {
		return "", false
	}
	return m.meta.RequestID, true
}

// ExtendedRequestID returns the extended request id, if present.
func (m *MetadataCarrier) ExtendedRequestID() (string, bool) {
	if !m.set || m.meta.ExtendedRequestID == "" {
		return "", false
	}
	return m.meta.ExtendedRequestID, true
}

// metadataSetter is satisfied by anything embedding MetadataCarrier.
type metadataSetter interface {
	SetResponseMetadata(ResponseMetadata)
}

// extractResponseMetadata reads the request-id and query-error headers.
func extractResponseMetadata(resp *http.Response) ResponseMetadata {
	md := ResponseMetadata{StatusCode: resp.StatusCode}
	if id := resp.Header.Get(requestIDHeader); id != "" {
		md.RequestID = id
	} else {
		md.RequestID = resp.Header.Get(altRequestIDHeader)
	}
	md.ExtendedRequestID = resp.Header.Get(extendedRequestIDHeader)

	if qe := resp.Header.Get(queryErrorHeader); qe != "" {
		if code, typ, ok := strings.Cut(qe, ";"); ok {
			md.QueryErrorCode = code
			md.QueryErrorType = typ
		} else {
			md.QueryErrorCode = qe
		}
	}
	return md
}

// attachMetadata delivers metadata to any value that can carry it.
func attachMetadata(v interface{}, md ResponseMetadata) {
	if setter, ok := v.(metadataSetter); ok {
		setter.SetResponseMetadata(md)
	}
}

// bufferResponseBody replaces the response body with a fully buffered copy
// so deserializers can read it without touching the network.
func bufferResponseBody(resp *http.Response) error {
	if resp.Body == nil {
		resp.Body = http.NoBody
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	closeErr := resp.Body.Close()
	if err != nil {
		return err
	}
	if closeErr != nil {
		return closeErr
	}
	resp.Body = io.NopCloser(bytes.NewReader(data))
	return nil
}

// ServiceError is a generic modeled error for services without generated
// error types. It satisfies the classification interfaces so the retry
// strategy can inspect it.
type ServiceError struct {
	MetadataCarrier
	Code      string
	Type      string
	Message   string
	RetryKind RetryErrorKind
	RetryHint bool
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// ErrorCode implements CodedError.
func (e *ServiceError) ErrorCode() string { return e.Code }

// RetryableErrorKind implements RetryableError when a retry hint was
// modeled.
func (e *ServiceError) RetryableErrorKind() (RetryErrorKind, bool) {
	return e.RetryKind, e.RetryHint
}
