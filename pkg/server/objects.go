package server

import (
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/causahq/causa/pkg/fault"
	"github.com/causahq/causa/pkg/objectstore"
)

// handleObject serves locally stored objects through their signed links.
// Cloud backends presign URLs pointing at the bucket itself, so only the
// local store routes downloads through this process.
func (s *Server) handleObject(w http.ResponseWriter, r *http.Request) {
	local, ok := s.objects.(*objectstore.LocalStore)
	if !ok {
		http.NotFound(w, r)
		return
	}

	objectPath, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil || objectPath == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid object path"})
		return
	}

	q := r.URL.Query()
	if err := local.VerifySignedPath(objectPath, q.Get("exp"), q.Get("sig")); err != nil {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "link expired or invalid"})
		return
	}

	data, err := local.Get(r.Context(), objectPath)
	if err != nil {
		kind := fault.KindOf(err)
		if kind != fault.NotFound {
			slog.Error("Object read failed", "path", objectPath, "error", err)
		}
		writeJSON(w, fault.HTTPStatus(kind), map[string]string{"error": "object not available"})
		return
	}

	contentType := mime.TypeByExtension(path.Ext(objectPath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", `attachment; filename="`+path.Base(objectPath)+`"`)
	if _, err := w.Write(data); err != nil {
		slog.Warn("Object write aborted", "path", objectPath, "error", err)
	}
}
