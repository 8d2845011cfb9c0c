package domain

import (
	"context"
	"errors"
)

// Engine hands out isolated rendering sessions. Implementations typically
// start one browser process per session.
type Engine interface {
	Acquire(ctx context.Context) (Session, error)
}

// Session is a single rendering engine instance owned by one request.
type Session interface {
	// Load sets the document content and returns once the network is quiescent.
	Load(ctx context.Context, html string) error
	// ExportPDF prints the loaded document.
	ExportPDF(ctx context.Context, opts PrintOptions) ([]byte, error)
	// Release tears the instance down. Only the first call has an effect.
	Release() error
}

// WithSession acquires a session, runs fn and releases the session on every
// exit path, panics included. A release failure is only reported when fn
// itself succeeded. All failures come back as *RenderError.
func WithSession(ctx context.Context, engine Engine, fn func(Session) error) (err error) {
	if engine == nil {
		return NewRenderError(errors.New("rendering engine not configured"))
	}
	session, err := engine.Acquire(ctx)
	if err != nil {
		return NewRenderError(err)
	}
	defer func() {
		if r := recover(); r != nil {
			err = NewRenderError(&PanicError{Value: r})
		}
		if relErr := session.Release(); relErr != nil && err == nil {
			err = NewRenderError(relErr)
		}
	}()

	if err := fn(session); err != nil {
		return NewRenderError(err)
	}
	return nil
}

// Render runs one load-and-export cycle in its own session.
func Render(ctx context.Context, engine Engine, html string, opts PrintOptions) ([]byte, error) {
	var pdf []byte
	err := WithSession(ctx, engine, func(s Session) error {
		if err := s.Load(ctx, html); err != nil {
			return err
		}
		buf, err := s.ExportPDF(ctx, opts)
		if err != nil {
			return err
		}
		pdf = buf
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pdf, nil
}
