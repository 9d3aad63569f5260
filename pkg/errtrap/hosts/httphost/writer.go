package httphost

import (
	"bytes"
	"net/http"
)

// responseWriter is the writer handed to the wrapped handler. When buffered,
// nothing reaches the client until the request completes, so a report page
// can replace partial output.
type responseWriter interface {
	http.ResponseWriter

	// headerSent reports whether the status line reached the client.
	headerSent() bool

	// commit sends buffered output to the client.
	commit()
}

type bufferedWriter struct {
	w      http.ResponseWriter
	header http.Header
	status int
	body   bytes.Buffer
}

func newBufferedWriter(w http.ResponseWriter) *bufferedWriter {
	return &bufferedWriter{w: w, header: make(http.Header)}
}

func (b *bufferedWriter) Header() http.Header {
	return b.header
}

func (b *bufferedWriter) WriteHeader(code int) {
	if b.status == 0 {
		b.status = code
	}
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

func (b *bufferedWriter) headerSent() bool {
	return false
}

func (b *bufferedWriter) commit() {
	dst := b.w.Header()
	for k, v := range b.header {
		dst[k] = v
	}
	status := b.status
	if status == 0 {
		status = http.StatusOK
	}
	b.w.WriteHeader(status)
	_, _ = b.w.Write(b.body.Bytes())
}

type passthroughWriter struct {
	http.ResponseWriter
	wrote bool
}

func (p *passthroughWriter) WriteHeader(code int) {
	p.wrote = true
	p.ResponseWriter.WriteHeader(code)
}

func (p *passthroughWriter) Write(b []byte) (int, error) {
	p.wrote = true
	return p.ResponseWriter.Write(b)
}

// Flush lets streaming handlers flush when buffering is disabled.
func (p *passthroughWriter) Flush() {
	if f, ok := p.ResponseWriter.(http.Flusher); ok {
		p.wrote = true
		f.Flush()
	}
}

func (p *passthroughWriter) headerSent() bool {
	return p.wrote
}

func (p *passthroughWriter) commit() {}
