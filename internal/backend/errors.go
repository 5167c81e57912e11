package backend

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// Kind classifies a backend error status for the flows that branch on it.
type Kind int

const (
	KindOther Kind = iota
	KindUnauthorized
	KindCaptcha
	KindForbidden
	KindNotFound
	KindConflict
	KindGone
	KindTooManyRequests
	KindServer
)

// StatusError is a non-2xx backend response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	// Message is the backend's message, title or detail field, if any.
	Message string
	// RemainingSeconds is the cooldown carried by 429 responses.
	RemainingSeconds int
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Message)
}

// Kind classifies the error.
func (e *StatusError) Kind() Kind {
	switch e.Code {
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusForbidden:
		if strings.Contains(strings.ToLower(e.Message), "captcha") {
			return KindCaptcha
		}
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusConflict:
		return KindConflict
	case http.StatusGone:
		return KindGone
	case http.StatusTooManyRequests:
		return KindTooManyRequests
	}
	if e.Code >= http.StatusInternalServerError {
		return KindServer
	}
	return KindOther
}

// AsStatus unwraps a *StatusError from err.
func AsStatus(err error) (*StatusError, bool) {
	var serr *StatusError
	if errors.As(err, &serr) {
		return serr, true
	}
	return nil, false
}

// IsKind reports whether err is a backend error of kind k.
func IsKind(err error, k Kind) bool {
	serr, ok := AsStatus(err)
	return ok && serr.Kind() == k
}

func newStatusError(method, path string, code int, body []byte) *StatusError {
	e := &StatusError{Method: method, Path: path, Code: code}
	decodeErrorBody(e, body)
	return e
}

// decodeErrorBody extracts known fields from an error body. Bodies that are
// not JSON objects, such as proxy HTML pages, are ignored.
func decodeErrorBody(e *StatusError, body []byte) {
	d := jx.DecodeBytes(body)
	if d.Next() != jx.Object {
		return
	}

	var title, detail string
	_ = d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "message":
			return decodeString(d, &e.Message)
		case "title":
			return decodeString(d, &title)
		case "detail":
			return decodeString(d, &detail)
		case "remainingSeconds":
			if d.Next() != jx.Number {
				return d.Skip()
			}
			f, err := d.Float64()
			if err != nil {
				return err
			}
			e.RemainingSeconds = int(f)
			return nil
		default:
			return d.Skip()
		}
	})

	if e.Message == "" {
		e.Message = detail
	}
	if e.Message == "" {
		e.Message = title
	}
}

func decodeString(d *jx.Decoder, out *string) error {
	if d.Next() != jx.String {
		return d.Skip()
	}
	s, err := d.Str()
	if err != nil {
		return err
	}
	*out = s
	return nil
}

// IsUnavailable reports whether err is a transport failure, meaning the
// backend was never reached or the connection broke.
func IsUnavailable(err error) bool {
	var uerr *url.Error
	return errors.As(err, &uerr)
}
