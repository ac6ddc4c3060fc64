package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zombor/billnote/internal/auth"
	"github.com/zombor/billnote/internal/candidate"
	"github.com/zombor/billnote/internal/extraction"
	"github.com/zombor/billnote/internal/note"
)

// writeJSON encodes v as the response body with the given status
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes {"error": message}
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// noteError maps service errors to responses
func noteError(w http.ResponseWriter, action string, err error) {
	switch {
	case errors.Is(err, note.ErrNotFound):
		writeError(w, http.StatusNotFound, "Note not found")
	case errors.Is(err, note.ErrInvalidInput), errors.Is(err, candidate.ErrInvalidCandidate):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("Error "+action, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// decode reads a JSON body bounded by the server's body limit
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body is too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func owner(r *http.Request) string {
	id, _ := auth.FromContext(r.Context())
	return id.UserID
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleExtract runs an extraction on a base64 image
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodySize)
	var req extraction.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		e := &extraction.Error{Code: extraction.CodeInvalidRequest, Message: "Invalid request body", Details: err.Error()}
		writeJSON(w, e.HTTPStatus(), extraction.ErrorResponse(e))
		return
	}
	s.extract(w, r, req)
}

// handleScan runs an extraction on a multipart upload in the "file" field.
// An optional "config" field holds the processing config as JSON.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodySize)
	if err := r.ParseMultipartForm(s.maxBodySize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		writeError(w, http.StatusBadRequest, "Error parsing form")
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file was selected. Please choose a file to upload.")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
		return
	}

	req := extraction.NewRequest(data, uploadContentType(header.Header.Get("Content-Type"), header.Filename))
	if raw := r.FormValue("config"); raw != "" {
		var cfg extraction.Config
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			e := &extraction.Error{Code: extraction.CodeInvalidRequest, Message: "Invalid config", Details: err.Error()}
			writeJSON(w, e.HTTPStatus(), extraction.ErrorResponse(e))
			return
		}
		req.Config = &cfg
	}
	s.extract(w, r, req)
}

// uploadContentType falls back to the file extension when the part has no
// content type
func uploadContentType(declared, filename string) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	}
	// let the extractor sniff it
	return ""
}

func (s *Server) extract(w http.ResponseWriter, r *http.Request, req extraction.Request) {
	id, _ := auth.FromContext(r.Context())
	result, err := s.extractor.Extract(r.Context(), id, req)
	if err != nil {
		resp := extraction.ErrorResponse(err)
		writeJSON(w, resp.Error.HTTPStatus(), resp)
		return
	}
	writeJSON(w, http.StatusOK, result.Response())
}

// handleReconcile replays edits on a candidate and returns the result
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	var body candidate.Reconciliation
	if !s.decode(w, r, &body) {
		return
	}
	c, err := body.Apply()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleCommit persists a reviewed receipt as a note with items
func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	var req note.CommitRequest
	if !s.decode(w, r, &req) {
		return
	}
	result, err := s.notes.Commit(owner(r), req)
	if err != nil {
		noteError(w, "committing receipt", err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// handleListNotes returns one page of the caller's notes
func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := note.ListQuery{
		Category: q.Get("category"),
		Search:   q.Get("search"),
		DateFrom: q.Get("dateFrom"),
		DateTo:   q.Get("dateTo"),
	}
	var err error
	if query.Page, err = queryInt(q.Get("page")); err != nil {
		writeError(w, http.StatusBadRequest, "page must be a number")
		return
	}
	if query.PageSize, err = queryInt(q.Get("pageSize")); err != nil {
		writeError(w, http.StatusBadRequest, "pageSize must be a number")
		return
	}

	result, err := s.notes.ListNotes(owner(r), query)
	if err != nil {
		noteError(w, "listing notes", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func queryInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

// handleCreateNote creates an empty note
func (s *Server) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	var in note.CreateNoteInput
	if !s.decode(w, r, &in) {
		return
	}
	n, err := s.notes.CreateNote(owner(r), in)
	if err != nil {
		noteError(w, "creating note", err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

// handleGetNote returns a note with its items
func (s *Server) handleGetNote(w http.ResponseWriter, r *http.Request) {
	n, err := s.notes.GetNote(owner(r), r.PathValue("id"))
	if err != nil {
		noteError(w, "getting note", err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// handleUpdateNote changes the fields present in the body
func (s *Server) handleUpdateNote(w http.ResponseWriter, r *http.Request) {
	var in note.UpdateNoteInput
	if !s.decode(w, r, &in) {
		return
	}
	n, err := s.notes.UpdateNote(owner(r), r.PathValue("id"), in)
	if err != nil {
		noteError(w, "updating note", err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// handleDeleteNote deletes a note and its items
func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	if err := s.notes.DeleteNote(owner(r), r.PathValue("id")); err != nil {
		noteError(w, "deleting note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAddItem appends an item to a note
func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var in note.ItemInput
	if !s.decode(w, r, &in) {
		return
	}
	item, err := s.notes.AddItem(owner(r), r.PathValue("id"), in)
	if err != nil {
		noteError(w, "adding item", err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// handleUpdateItem changes the fields present in the body
func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var in note.UpdateItemInput
	if !s.decode(w, r, &in) {
		return
	}
	item, err := s.notes.UpdateItem(owner(r), r.PathValue("id"), r.PathValue("itemId"), in)
	if err != nil {
		noteError(w, "updating item", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// handleDeleteItem removes an item
func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := s.notes.DeleteItem(owner(r), r.PathValue("id"), r.PathValue("itemId")); err != nil {
		noteError(w, "deleting item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSummary returns spend per category and month
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	summary, err := s.notes.Summary(owner(r), note.SummaryQuery{
		DateFrom: q.Get("dateFrom"),
		DateTo:   q.Get("dateTo"),
		Currency: q.Get("currency"),
	})
	if err != nil {
		noteError(w, "building summary", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleCategories lists the spending categories
func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, note.Categories)
}
