// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package predictor

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const jsonContentType = "application/json"

// HTTPHandler serves the prediction pipeline over HTTP. The request body is
// the same JSON a framed request carries and the response body the same
// JSON a framed reply carries.
type HTTPHandler struct {
	server *Server
	prefix string
	mux    *http.ServeMux
}

// NewHTTPHandler mounts POST {prefix}/predict and GET {prefix}/help.
func NewHTTPHandler(server *Server, prefix string) *HTTPHandler {
	prefix = strings.TrimRight(prefix, "/")
	h := &HTTPHandler{server: server, prefix: prefix, mux: http.NewServeMux()}
	h.mux.HandleFunc(fmt.Sprintf("POST %s/predict", prefix), h.handlePredict)
	h.mux.HandleFunc(fmt.Sprintf("GET %s/help", prefix), h.handleHelp)
	return h
}

// Prefix returns the path prefix the handler is mounted under.
func (h *HTTPHandler) Prefix() string {
	return h.prefix
}

// ServeHTTP implements http.Handler.
func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *HTTPHandler) handlePredict(w http.ResponseWriter, r *http.Request) {
	body := r.Body
	if limit := h.server.limits.MaxPayloadBytes; limit > 0 {
		body = http.MaxBytesReader(w, r.Body, int64(limit))
	}
	payload, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, ErrFrameTooLarge.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	reply := h.server.Handle(r.Context(), payload, RequestInfo{
		RequestID:  r.Header.Get("X-Request-Id"),
		Transport:  TransportHTTP,
		RemoteAddr: r.RemoteAddr,
		TransportMetadata: map[string]string{
			"traceparent": r.Header.Get("traceparent"),
			"tracestate":  r.Header.Get("tracestate"),
			"remote_addr": r.RemoteAddr,
			"user_agent":  r.UserAgent(),
		},
	})

	w.Header().Set("Content-Type", jsonContentType)
	w.Header().Set("X-Predictor-Outcome", reply.Outcome.String())
	w.WriteHeader(statusFor(reply.Outcome))
	_, _ = w.Write(reply.Payload)
}

func (h *HTTPHandler) handleHelp(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", jsonContentType)
	_, _ = w.Write(h.server.Help())
}

// statusFor maps an outcome to an HTTP status: validation failures are the
// client's fault, model input and dispatch failures are unprocessable.
func statusFor(o Outcome) int {
	switch o {
	case OutcomeStructural, OutcomeSemantic:
		return http.StatusBadRequest
	case OutcomeModelInput, OutcomeDispatch:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusOK
	}
}
