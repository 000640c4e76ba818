package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/RevCBH/siren/internal/escalation"
)

// HealthHandler answers GET /healthz
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ListSessionsHandler answers GET /api/sessions[?active=true]
func ListSessionsHandler(b Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		active, _ := strconv.ParseBool(r.URL.Query().Get("active"))
		list, err := b.Sessions(active)
		if err != nil {
			writeError(w, err)
			return
		}
		if list == nil {
			list = []escalation.Snapshot{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// CreateSessionHandler answers POST /api/sessions
func CreateSessionHandler(b Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body CreateSessionBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON: " + err.Error()})
			return
		}

		req, err := body.sessionConfig()
		if err != nil {
			writeError(w, err)
			return
		}

		snap, warnings, err := b.CreateSession(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, CreateSessionReply{Session: snap, Warnings: warnings})
	}
}

// GetSessionHandler answers GET /api/sessions/{id}
func GetSessionHandler(b Backend) http.HandlerFunc {
	return sessionAction(b.Session)
}

// AckHandler answers POST /api/sessions/{id}/ack
func AckHandler(b Backend) http.HandlerFunc {
	return sessionAction(b.Acknowledge)
}

// CompleteHandler answers POST /api/sessions/{id}/complete
func CompleteHandler(b Backend) http.HandlerFunc {
	return sessionAction(b.Complete)
}

// CancelHandler answers POST /api/sessions/{id}/cancel
func CancelHandler(b Backend) http.HandlerFunc {
	return sessionAction(b.Cancel)
}

// TriggerHandler answers POST /api/sessions/{id}/trigger
func TriggerHandler(b Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body TriggerBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON: " + err.Error()})
			return
		}
		kind, err := escalation.ParseTriggerKind(body.Kind)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}

		snap, err := b.Trigger(r.PathValue("id"), kind, body.Value)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

// HistoryHandler answers GET /api/sessions/{id}/events[?since=N]
func HistoryHandler(b Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		since := 0
		if v := r.URL.Query().Get("since"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeJSON(w, http.StatusBadRequest, errorBody{Error: "since must be a non-negative integer"})
				return
			}
			since = n
		}

		if _, err := b.Session(id); err != nil {
			writeError(w, err)
			return
		}
		records, err := b.History(id, since)
		if err != nil {
			writeError(w, err)
			return
		}

		out := make([]HistoryEvent, 0, len(records))
		for _, rec := range records {
			he := HistoryEvent{Sequence: rec.Sequence, Type: rec.EventType, Time: rec.CreatedAt}
			if rec.Tier != nil {
				he.Tier = *rec.Tier
			}
			if rec.PayloadJSON != nil {
				he.Payload = json.RawMessage(*rec.PayloadJSON)
			}
			if rec.Error != nil {
				he.Error = *rec.Error
			}
			out = append(out, he)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// EventsHandler streams session events as Server-Sent Events.
// GET /api/events[?session=ID]
//
// Each event is written as "event: <type>" plus its JSON. A comment line
// reports events the stream missed while it was behind, and another keeps
// idle connections open through proxies.
func EventsHandler(feed *Feed, keepalive time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		sub, err := feed.Subscribe(uuid.NewString(), r.URL.Query().Get("session"))
		if err != nil {
			http.Error(w, "server shutting down", http.StatusServiceUnavailable)
			return
		}
		defer feed.Unsubscribe(sub)

		h := w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("Access-Control-Allow-Origin", "*")

		fmt.Fprint(w, ": connected\n\n")
		flusher.Flush()

		ping := time.NewTicker(keepalive)
		defer ping.Stop()

		var reported int64
		for {
			select {
			case <-r.Context().Done():
				return
			case <-ping.C:
				fmt.Fprint(w, ": ping\n\n")
			case e, ok := <-sub.C:
				if !ok {
					return
				}
				if missed := sub.Dropped(); missed > reported {
					fmt.Fprintf(w, ": dropped %d\n\n", missed-reported)
					reported = missed
				}
				data, err := json.Marshal(e)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data)
			}
			flusher.Flush()
		}
	}
}

func sessionAction(call func(string) (escalation.Snapshot, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := call(r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func (b CreateSessionBody) sessionConfig() (escalation.SessionConfig, error) {
	mode, err := escalation.ParseMode(b.Mode)
	if err != nil {
		return escalation.SessionConfig{}, fmt.Errorf("%w: %v", escalation.ErrInvalidConfig, err)
	}
	cfg := escalation.SessionConfig{
		Mode:             mode,
		Label:            b.Label,
		MessageThreshold: b.MessageThreshold,
		CallThreshold:    b.CallThreshold,
		Contacts:         b.Contacts,
	}
	if cfg.Interval, err = parseOptionalDuration("interval", b.Interval); err != nil {
		return cfg, err
	}
	if cfg.CheckInTimeout, err = parseOptionalDuration("timeout", b.Timeout); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func parseOptionalDuration(field, v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", escalation.ErrInvalidConfig, field, err)
	}
	return d, nil
}

// statusFor maps backend errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, escalation.ErrInvalidSession):
		return http.StatusNotFound
	case errors.Is(err, escalation.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, escalation.ErrUnsupportedInput):
		return http.StatusConflict
	case errors.Is(err, escalation.ErrEngineClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
