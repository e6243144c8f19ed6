package server

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strconv"

	"github.com/pessolato/randmicroservice/pkg/logging"
)

// RandomByte returns a byte sampled uniformly from [0, 255].
//
// crypto/rand is safe for concurrent use and its Read never fails.
func RandomByte() byte {
	var b [1]byte
	_, _ = rand.Read(b[:])
	return b[0]
}

// NewRandHandler returns a handler that responds to any request with a
// random byte written as a decimal string.
//
// Method, path, headers and body are ignored and no header is set
// explicitly.
func NewRandHandler(logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Log(r.Context(), logging.LevelTrace, "incoming request",
			"method", r.Method,
			"uri", r.RequestURI,
			"proto", r.Proto,
			"remote_addr", r.RemoteAddr,
			"header", r.Header,
		)

		v := RandomByte()
		logger.Debug("generated value", "value", v)

		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(strconv.Itoa(int(v)))); err != nil {
			logger.Debug("failed to write response", "error", err)
		}
	})
}

// ListenAndServeRand starts a server on addr which responds with a
// random byte to every request.
//
// It only returns on a listener or transport error.
func ListenAndServeRand(addr netip.AddrPort, logger *slog.Logger) error {
	logger.Debug("trying to bind", "address", addr)

	ln, err := net.Listen("tcp", addr.String())
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", addr, err)
	}
	logger.Info("Listening on http://" + addr.String())

	// Cleartext HTTP/2 is accepted for clients with prior knowledge.
	protos := &http.Protocols{}
	protos.SetHTTP1(true)
	protos.SetUnencryptedHTTP2(true)

	srv := &http.Server{
		Handler:   NewRandHandler(logger),
		Protocols: protos,
		ErrorLog:  slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}
	if err := srv.Serve(ln); err != nil {
		return fmt.Errorf("failed to serve on %s: %w", addr, err)
	}
	return nil
}
