package lintas

import (
	"bytes"
	"io"
	"net/http"
)

// SetByteBody installs a replayable byte-slice body on the request, wiring
// GetBody so retries can rewind it.
func SetByteBody(req *http.Request, p []byte) {
	req.Body = io.NopCloser(bytes.NewReader(p))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(p)), nil
	}
	req.ContentLength = int64(len(p))
}

// SetStreamingBody installs a one-shot streaming body. The request is not
// replayable: any classification that would retry it is forced terminal.
func SetStreamingBody(req *http.Request, r io.Reader) {
	rc, ok := r.(io.ReadCloser)
	if !ok {
		rc = io.NopCloser(r)
	}
	req.Body = rc
	req.GetBody = nil
	req.ContentLength = -1
}

// isReplayable reports whether the request body can be rewound for another
// attempt. GetBody is the replay contract; an absent body is trivially
// replayable.
func isReplayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

// rewindBody resets the request body to its start using GetBody.
func rewindBody(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody {
		return nil
	}
	if req.GetBody == nil {
		return ErrBodyNotReplayable
	}
	body, err := req.GetBody()
	if err != nil {
		return err
	}
	req.Body = body
	return nil
}

// closeNotifyBody invokes fn after the underlying body is closed. Used to
// release per-attempt resources owned by streaming responses.
type closeNotifyBody struct {
	io.ReadCloser
	fn func()
}

func (b *closeNotifyBody) Close() error {
	err := b.ReadCloser.Close()
	if b.fn != nil {
		b.fn()
		b.fn = nil
	}
	return err
}
