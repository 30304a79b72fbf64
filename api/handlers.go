package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/c360studio/semplan/document"
	"github.com/c360studio/semplan/export"
	"github.com/c360studio/semplan/intent"
	"github.com/c360studio/semplan/orchestrator"
	"github.com/c360studio/semplan/service"
	"github.com/c360studio/semplan/storage"
)

// GenerateRequest is the body of POST /api/v1/documents.
type GenerateRequest struct {
	Topic           string         `json:"topic"`
	Grade           string         `json:"grade,omitempty"`
	Subject         string         `json:"subject,omitempty"`
	ProfileID       string         `json:"profileId,omitempty"`
	Profile         map[string]any `json:"profile,omitempty"`
	Goals           string         `json:"goals,omitempty"`
	ExperienceLevel string         `json:"experienceLevel,omitempty"`
	AvailableDays   string         `json:"availableDays,omitempty"`
	Components      []string       `json:"components,omitempty"`
}

// ChatRequest is the body of POST /api/v1/documents/{id}/chat. Analysis is
// optional; without it the message is classified first.
type ChatRequest struct {
	Message  string         `json:"message"`
	Analysis *intent.Intent `json:"analysis,omitempty"`
}

// RegenerateRequest is the body of the component regenerate route.
type RegenerateRequest struct {
	Directive string `json:"directive"`
}

// ComponentInfo describes one catalog component.
type ComponentInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Tier        string          `json:"tier"`
	Template    string          `json:"template"`
	Schema      json.RawMessage `json:"schema"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	cat := s.svc.Catalog()
	out := make([]ComponentInfo, 0, len(cat.Components()))
	for _, name := range cat.Components() {
		spec, err := cat.SpecFor(name)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		out = append(out, ComponentInfo{
			Name:        spec.Name,
			Description: spec.Description,
			Tier:        string(spec.Tier),
			Template:    spec.TemplateID,
			Schema:      spec.Schema.JSON(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"domain":     cat.Domain(),
		"components": out,
	})
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	doc, err := BuildOpenAPI(s.svc.Catalog(), s.version)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	data, err := MarshalOpenAPI(doc)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	doc, err := s.svc.GenerateDocument(r.Context(), owner(r), req.Topic, orchestrator.BaseContext{
		Grade:           req.Grade,
		Subject:         req.Subject,
		ProfileID:       req.ProfileID,
		Profile:         req.Profile,
		Goals:           req.Goals,
		ExperienceLevel: req.ExperienceLevel,
		AvailableDays:   req.AvailableDays,
		Components:      req.Components,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.ListDocuments(r.Context(), owner(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": list})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.svc.GetDocument(r.Context(), owner(r), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleSaveDocument stores an edited document. The body is the flat
// document form; components it leaves out keep their stored values.
func (s *Server) handleSaveDocument(w http.ResponseWriter, r *http.Request) {
	var edited document.Document
	if !decodeBody(w, r, &edited) {
		return
	}
	doc, err := s.svc.SaveDocument(r.Context(), owner(r), chi.URLParam(r, "id"), &edited)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleExportDocument(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	doc, err := s.svc.GetDocument(r.Context(), owner(r), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, doc, format); err != nil {
		s.respondError(w, r, err)
		return
	}
	info, _ := export.GetFormatInfo(format)
	w.Header().Set("Content-Type", info.MIMEType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", doc.Metadata.DocumentID+info.Extension))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteDocument(r.Context(), owner(r), chi.URLParam(r, "id")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	in, err := s.svc.AnalyzeMessage(r.Context(), owner(r), chi.URLParam(r, "id"), req.Message)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.svc.ApplyChatUpdate(r.Context(), owner(r), chi.URLParam(r, "id"), req.Message, req.Analysis)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListChat(w http.ResponseWriter, r *http.Request) {
	entries, err := s.svc.ListChat(r.Context(), owner(r), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	var req RegenerateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.svc.RegenerateComponent(r.Context(), owner(r),
		chi.URLParam(r, "id"), chi.URLParam(r, "component"), req.Directive)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.svc.ListVersions(r.Context(), owner(r), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

func (s *Server) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	version, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil || version < 1 {
		s.respondError(w, r, &document.ValidationError{Field: "version", Reason: "must be a positive integer"})
		return
	}
	snap, err := s.svc.GetVersion(r.Context(), owner(r), chi.URLParam(r, "id"), version)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var req storage.Profile
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := s.svc.CreateProfile(r.Context(), owner(r), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.ListProfiles(r.Context(), owner(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profiles": list})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.GetProfile(r.Context(), owner(r), chi.URLParam(r, "profileId"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req service.ProfileUpdate
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := s.svc.UpdateProfile(r.Context(), owner(r), chi.URLParam(r, "profileId"), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteProfile(r.Context(), owner(r), chi.URLParam(r, "profileId")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeBody reads a JSON body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		msg := "invalid request body"
		if errors.Is(err, io.EOF) {
			msg = "request body is required"
		}
		writeError(w, http.StatusBadRequest, "bad_request", msg)
		return false
	}
	return true
}
