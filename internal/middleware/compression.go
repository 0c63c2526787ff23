package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

// minCompressSize is the smallest body worth compressing.
const minCompressSize = 1024

var gzipPool = sync.Pool{
	New: func() any {
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.DefaultCompression)
		return w
	},
}

var brotliPool = sync.Pool{
	New: func() any {
		return brotli.NewWriterLevel(io.Discard, 4)
	},
}

type resettableWriter interface {
	io.WriteCloser
	Reset(io.Writer)
}

// compressWriter buffers up to minCompressSize bytes before deciding whether
// to compress.
type compressWriter struct {
	http.ResponseWriter
	encoding    string
	enc         resettableWriter
	buf         []byte
	status      int
	wroteHeader bool
	passthrough bool
}

func (w *compressWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
}

func (w *compressWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	if w.passthrough {
		return w.ResponseWriter.Write(b)
	}
	if w.enc != nil {
		return w.enc.Write(b)
	}
	w.buf = append(w.buf, b...)
	if len(w.buf) >= minCompressSize {
		if err := w.start(); err != nil {
			return 0, err
		}
	}
	return len(b), nil
}

// start commits to compressing and flushes the buffered bytes.
func (w *compressWriter) start() error {
	h := w.Header()
	if h.Get("Content-Encoding") != "" || !compressible(w.status) {
		return w.pass()
	}
	h.Del("Content-Length")
	h.Set("Content-Encoding", w.encoding)
	h.Add("Vary", "Accept-Encoding")
	w.ResponseWriter.WriteHeader(w.status)
	w.wroteHeader = true

	if w.encoding == "br" {
		w.enc = brotliPool.Get().(*brotli.Writer)
	} else {
		w.enc = gzipPool.Get().(*gzip.Writer)
	}
	w.enc.Reset(w.ResponseWriter)
	_, err := w.enc.Write(w.buf)
	w.buf = nil
	return err
}

func (w *compressWriter) pass() error {
	w.passthrough = true
	if !w.wroteHeader {
		w.ResponseWriter.WriteHeader(w.status)
		w.wroteHeader = true
	}
	if len(w.buf) == 0 {
		return nil
	}
	_, err := w.ResponseWriter.Write(w.buf)
	w.buf = nil
	return err
}

func (w *compressWriter) finish() {
	switch {
	case w.enc != nil:
		w.enc.Close()
		switch enc := w.enc.(type) {
		case *gzip.Writer:
			gzipPool.Put(enc)
		case *brotli.Writer:
			brotliPool.Put(enc)
		}
		w.enc = nil
	case w.status != 0:
		w.pass()
	}
}

func compressible(status int) bool {
	return status != http.StatusNoContent && status != http.StatusNotModified && status >= 200
}

// negotiate picks br over gzip when the client accepts both.
func negotiate(accept string) string {
	var gz bool
	for _, part := range strings.Split(accept, ",") {
		name, params, _ := strings.Cut(part, ";")
		if q, ok := strings.CutPrefix(strings.TrimSpace(params), "q="); ok {
			if v, err := strconv.ParseFloat(q, 64); err == nil && v == 0 {
				continue
			}
		}
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "br":
			return "br"
		case "gzip":
			gz = true
		}
	}
	if gz {
		return "gzip"
	}
	return ""
}

// Compress encodes responses with brotli or gzip based on Accept-Encoding.
// Websocket upgrades and small bodies pass through untouched.
func Compress(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		encoding := negotiate(r.Header.Get("Accept-Encoding"))
		if encoding == "" || r.Method == http.MethodHead ||
			strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			next.ServeHTTP(w, r)
			return
		}

		cw := &compressWriter{ResponseWriter: w, encoding: encoding}
		defer cw.finish()
		next.ServeHTTP(cw, r)
	})
}
