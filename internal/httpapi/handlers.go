package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/kyleking/lyre/internal/errors"
	"github.com/kyleking/lyre/internal/query"
	"github.com/kyleking/lyre/internal/repository"
)

const maxBodyBytes = 1 << 20

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.Ping(r.Context()); err != nil {
			h.writeError(w, r, apperrors.Wrap(err, apperrors.ErrTypeDatabase, "store unreachable"))
			return
		}
	}

	body := map[string]any{"status": "ok"}
	if h.monitor != nil {
		body["runtime"] = h.monitor.GetStats()
	}

	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")

	repo, err := h.repos.For(entity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	fs, err := h.parser.Parse(r.Context(), entity, r.URL.Query())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := repo.All(r.Context(), fs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, h.serializer.Result(entity, result))
}

func (h *Handler) handleShow(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.repository(w, r)
	if !ok {
		return
	}

	var with []string
	if raw := r.URL.Query().Get(query.ParamWith); raw != "" {
		for _, path := range strings.Split(raw, ",") {
			if path = strings.TrimSpace(path); path != "" {
				with = append(with, path)
			}
		}
	}

	row, err := repo.Find(r.Context(), chi.URLParam(r, "id"), with...)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, h.serializer.Row(repo.Entity().Name, row))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.repository(w, r)
	if !ok {
		return
	}

	var payload map[string]any

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&payload); err != nil {
		h.writeError(w, r, apperrors.Wrap(err, apperrors.ErrTypeValidation, "request body must be a JSON object"))
		return
	}

	row, err := repo.Update(r.Context(), chi.URLParam(r, "id"), payload)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, h.serializer.Row(repo.Entity().Name, row))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.repository(w, r)
	if !ok {
		return
	}

	if err := repo.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRelationships(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")

	if _, err := h.resolver.Registry().Lookup(entity); err != nil {
		h.writeError(w, r, err)
		return
	}

	depth := h.relationDepth
	if raw := r.URL.Query().Get("depth"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.writeError(w, r, apperrors.Newf(apperrors.ErrTypeValidation, "depth must be a positive integer, got %q", raw))
			return
		}

		depth = n
	}

	paths, err := h.resolver.Relationships(entity, depth)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if paths == nil {
		paths = []string{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entity":        entity,
		"depth":         depth,
		"relationships": paths,
	})
}

func (h *Handler) repository(w http.ResponseWriter, r *http.Request) (*repository.Repository, bool) {
	repo, err := h.repos.For(chi.URLParam(r, "entity"))
	if err != nil {
		h.writeError(w, r, err)
		return nil, false
	}

	return repo, true
}
