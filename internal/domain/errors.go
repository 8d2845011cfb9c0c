package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrHTMLRequired signals a PDF request without any HTML content.
	ErrHTMLRequired = errors.New("HTML content is required")
	// ErrRouteNotFound signals that no route matched the request.
	ErrRouteNotFound = errors.New("Not found")
	// ErrInvalidAPIKey signals that the provided API key is not known.
	ErrInvalidAPIKey = errors.New("invalid api key")
	// ErrTokenStoreNotReady signals that the token store has not been loaded yet.
	// This can happen during startup when the DB isn't ready.
	ErrTokenStoreNotReady = errors.New("token store not ready")
	// ErrSessionReleased is returned by sessions used after Release.
	ErrSessionReleased = errors.New("render session already released")
)

// RenderError wraps any failure that happened while a render session was
// being acquired, loaded or exported.
type RenderError struct {
	Err error
}

func (e *RenderError) Error() string {
	if e.Err == nil {
		return "render failed"
	}
	return e.Err.Error()
}

func (e *RenderError) Unwrap() error { return e.Err }

// NewRenderError wraps err unless it already is a *RenderError.
func NewRenderError(err error) error {
	if err == nil {
		return nil
	}
	var re *RenderError
	if errors.As(err, &re) {
		return err
	}
	return &RenderError{Err: err}
}

// PanicError carries a recovered panic value out of a render session.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic during render: %v", e.Value)
}
