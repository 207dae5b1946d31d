// compression.go - gzip compression for JSON responses.
//
// File bytes are never recompressed: uploads stream in and downloads
// stream out untouched.
package server

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
)

type compressionResponseWriter struct {
	http.ResponseWriter
	writer io.Writer
}

func (crw *compressionResponseWriter) Write(b []byte) (int, error) {
	return crw.writer.Write(b)
}

// compressionMiddleware gzips responses for clients that accept it,
// skipping the file transfer paths.
func compressionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") || skipCompression(r) {
			next.ServeHTTP(w, r)
			return
		}

		gz := gzip.NewWriter(w)
		defer gz.Close()

		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Del("Content-Length")

		next.ServeHTTP(&compressionResponseWriter{ResponseWriter: w, writer: gz}, r)
	})
}

func skipCompression(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/files/") {
		return true
	}
	if r.URL.Path == "/upload" && r.Method == http.MethodPost {
		return true
	}
	return false
}
