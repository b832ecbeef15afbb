package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goodtune/beacon/internal/session"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// OpenResponse is returned when a page is opened.
type OpenResponse struct {
	PageID string `json:"page_id"`
}

// SignalsRequest carries a batch of signals for one page.
type SignalsRequest struct {
	Signals []session.Signal `json:"signals"`
}

// SignalsResponse reports how many signals of a batch were accepted.
type SignalsResponse struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"open_pages": s.pages.Len(),
	})
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	var init session.PageInit
	if !s.decode(w, r, &init) {
		return
	}
	if init.Href == "" {
		WriteError(w, http.StatusBadRequest, "href is required")
		return
	}

	page, err := s.pages.Open(init)
	switch {
	case errors.Is(err, session.ErrAlreadyOpen):
		WriteError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.logger.Error().Err(err).Msg("Failed to open page")
		WriteError(w, http.StatusInternalServerError, "failed to open page")
		return
	}

	WriteJSON(w, http.StatusCreated, OpenResponse{PageID: page.ID()})
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	pageID := chi.URLParam(r, "pageID")

	var req SignalsRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Signals) == 0 {
		WriteError(w, http.StatusBadRequest, "no signals")
		return
	}
	if len(req.Signals) > maxSignals {
		WriteError(w, http.StatusRequestEntityTooLarge, "too many signals in one batch")
		return
	}

	accepted, err := s.pages.Dispatch(pageID, req.Signals)
	if errors.Is(err, session.ErrPageNotFound) {
		WriteError(w, http.StatusNotFound, "page not found")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("page", pageID).Msg("Failed to dispatch signals")
		WriteError(w, http.StatusInternalServerError, "failed to dispatch signals")
		return
	}

	WriteJSON(w, http.StatusAccepted, SignalsResponse{
		Accepted: accepted,
		Rejected: len(req.Signals) - accepted,
	})
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	pageID := chi.URLParam(r, "pageID")
	if err := s.pages.Close(pageID); err != nil {
		if errors.Is(err, session.ErrPageNotFound) {
			WriteError(w, http.StatusNotFound, "page not found")
			return
		}
		s.logger.Error().Err(err).Str("page", pageID).Msg("Failed to close page")
		WriteError(w, http.StatusInternalServerError, "failed to close page")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decode reads a JSON body into v, writing the error response itself when
// it fails.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		http.Error(w, `{"error":"Internal Server Error","message":"Failed to encode response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(buf.Bytes())
}

// WriteError writes an error response.
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}
