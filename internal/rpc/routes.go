package rpc

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// setupRoutes binds the method Registry onto chi: a generic /rpc
// endpoint for any method by name, plus REST-shaped convenience routes
// mirroring the teacher's route-grouping style. Every route ends in the
// same dispatch call — there is no handler logic here, only request
// shaping.
func (s *Server) setupRoutes() {
	r := s.router

	r.Get("/health", s.dispatchHandler("health", queryParams))
	r.Route("/rpc", func(r chi.Router) {
		r.Get("/", s.listMethods)
		r.Post("/", s.dispatchGeneric)
	})

	r.Route("/session", func(r chi.Router) {
		r.Get("/", s.dispatchHandler("session.list", queryParams))
		r.Post("/", s.dispatchHandler("session.create", bodyParams))

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.dispatchHandler("session.resume", withSessionID(queryParams)))
			r.Delete("/", s.dispatchHandler("session.delete", withSessionID(queryParams)))
			r.Post("/archive", s.dispatchHandler("session.archive", withSessionID(queryParams)))
			r.Post("/unarchive", s.dispatchHandler("session.unarchive", withSessionID(queryParams)))
			r.Post("/fork", s.dispatchHandler("session.fork", withSessionID(bodyParams)))
			r.Get("/head", s.dispatchHandler("session.getHead", withSessionID(queryParams)))
			r.Get("/state", s.dispatchHandler("session.getState", withSessionID(queryParams)))
			r.Get("/history", s.dispatchHandler("session.getHistory", withSessionID(queryParams)))

			r.Post("/message", s.dispatchHandler("agent.message", withSessionID(bodyParams)))
			r.Post("/abort", s.dispatchHandler("agent.abort", withSessionID(queryParams)))
			r.Get("/agent-state", s.dispatchHandler("agent.state", withSessionID(queryParams)))

			r.Get("/events", s.dispatchHandler("events.list", withSessionID(queryParams)))
			r.Get("/events/sync", s.sessionEventsSSE)
		})
	})

	r.Get("/model", s.dispatchHandler("model.list", queryParams))
	r.Post("/model/switch", s.dispatchHandler("model.switch", bodyParams))
	r.Get("/skill", s.dispatchHandler("skill.list", queryParams))
}

// paramsBuilder turns an *http.Request into the JSON params blob a
// Handler expects.
type paramsBuilder func(r *http.Request) (json.RawMessage, error)

// queryParams folds every query string value (ints parsed where
// possible) into a flat JSON object.
func queryParams(r *http.Request) (json.RawMessage, error) {
	out := map[string]any{}
	for key, values := range r.URL.Query() {
		if len(values) == 0 {
			continue
		}
		v := values[0]
		if n, err := strconv.Atoi(v); err == nil {
			out[key] = n
		} else if b, err := strconv.ParseBool(v); err == nil {
			out[key] = b
		} else {
			out[key] = v
		}
	}
	return json.Marshal(out)
}

// bodyParams reads the JSON request body verbatim as params.
func bodyParams(r *http.Request) (json.RawMessage, error) {
	if r.Body == nil {
		return json.RawMessage("{}"), nil
	}
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// withSessionID wraps a paramsBuilder, injecting the {sessionID} chi
// path param as "sessionId" into whatever object the inner builder
// produces.
func withSessionID(inner paramsBuilder) paramsBuilder {
	return func(r *http.Request) (json.RawMessage, error) {
		raw, err := inner(r)
		if err != nil {
			return nil, err
		}
		var obj map[string]any
		if len(raw) == 0 {
			obj = map[string]any{}
		} else if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
			obj = map[string]any{}
		}
		obj["sessionId"] = chi.URLParam(r, "sessionID")
		return json.Marshal(obj)
	}
}

// dispatchHandler returns an http.HandlerFunc that builds params via
// build, dispatches method through the Registry, and writes the result
// or translated error.
func (s *Server) dispatchHandler(method string, build paramsBuilder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := build(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request: "+err.Error())
			return
		}
		result, err := s.registry.Dispatch(r.Context(), method, params)
		if err != nil {
			writeErrorFromErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

type rpcRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// dispatchGeneric answers POST /rpc {"method": "...", "params": {...}},
// the single entry point every REST route above is convenience sugar
// over.
func (s *Server) dispatchGeneric(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "method is required")
		return
	}
	result, err := s.registry.Dispatch(r.Context(), req.Method, req.Params)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// listMethods answers GET /rpc with every registered method name.
func (s *Server) listMethods(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"methods": s.registry.Methods()})
}
