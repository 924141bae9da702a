package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/alula-collections/alula-go/internal/attachment"
	"github.com/alula-collections/alula-go/internal/logging"
	"github.com/alula-collections/alula-go/internal/response"
)

// maxUploadMemory is the multipart memory budget; larger parts spill to disk.
const maxUploadMemory = 8 << 20

// handleImage handles POST /api/image. The image arrives either as the
// multipart field "image" or as a JSON body {"url": ...} that is downloaded
// first. The response is the structured answer plus an image card.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ChatTimeout)
	defer cancel()
	start := time.Now()

	limit := s.fetcher.MaxBytes
	if limit <= 0 {
		limit = attachment.DefaultMaxBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+(1<<20))

	path, status, msg := s.receiveImage(ctx, r)
	if status != 0 {
		outcome := "bad_request"
		switch status {
		case http.StatusBadGateway:
			outcome = "download_failure"
		case http.StatusInternalServerError:
			outcome = "error"
		}
		s.metrics.observeImage(outcome, time.Since(start))
		writeJSON(w, status, errorResponse{Error: msg})
		return
	}
	defer func() {
		if err := os.Remove(path); err != nil {
			log.Warn("image: failed to remove attachment", slog.String("path", path), slog.Any("error", err))
		}
	}()

	ans, err := s.querier.ExplainImage(ctx, path)
	if err != nil {
		outcome := "error"
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			outcome = "timeout"
		}
		log.Error("image: explain failed", slog.Any("error", err), slog.String("outcome", outcome))
		s.metrics.observeImage(outcome, time.Since(start))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: GenericErrorMessage})
		return
	}

	artifacts := ans.Artifacts
	if artifacts == nil {
		artifacts = []any{}
	}
	s.metrics.observeImage("ok", time.Since(start))
	writeJSON(w, http.StatusOK, imageResponse{
		Response:  ans.Response,
		Card:      response.NewImageCard(ans.Response, s.cfg.PublicURL),
		Artifacts: artifacts,
	})
}

// receiveImage stores the request's image locally. A non-zero status means
// the request failed with msg as the user-facing error.
func (s *Server) receiveImage(ctx context.Context, r *http.Request) (path string, status int, msg string) {
	log := logging.FromContext(ctx)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
			return "", http.StatusBadRequest, "invalid multipart body"
		}
		file, hdr, err := r.FormFile("image")
		if err != nil {
			return "", http.StatusBadRequest, "image is required"
		}
		defer file.Close()
		p, err := s.fetcher.Save(file, filepath.Ext(hdr.Filename))
		if err != nil {
			log.Warn("image: failed to store upload", slog.Any("error", err))
			return "", http.StatusBadRequest, "image could not be stored"
		}
		return p, 0, ""
	}

	var req imageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", http.StatusBadRequest, "invalid request body"
	}
	if req.URL == "" {
		return "", http.StatusBadRequest, "url or image is required"
	}
	p, err := s.fetcher.Fetch(ctx, req.URL)
	if errors.Is(err, attachment.ErrDownloadFailure) {
		log.Warn("image: attachment download failed", slog.Any("error", err))
		return "", http.StatusBadGateway, attachment.DownloadFailureMessage
	}
	if err != nil {
		log.Error("image: attachment fetch error", slog.Any("error", err))
		return "", http.StatusInternalServerError, GenericErrorMessage
	}
	return p, 0, ""
}

// writeJSON writes v as the JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
