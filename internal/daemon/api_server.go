package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"subtrans/internal/api"
	"subtrans/internal/config"
	"subtrans/internal/language"
	"subtrans/internal/logging"
	"subtrans/internal/services"
	"subtrans/internal/tasks"
)

const maxUploadBytes = 4 << 30

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon
	cfg    *config.Config

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logger,
		daemon: d,
		cfg:    cfg,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", srv.handleStatus)
	mux.HandleFunc("GET /api/languages", srv.handleLanguages)
	mux.HandleFunc("POST /api/tasks", srv.handleSubmit)
	mux.HandleFunc("GET /api/tasks", srv.handleList)
	mux.HandleFunc("GET /api/tasks/{id}", srv.handleGet)
	mux.HandleFunc("POST /api/tasks/{id}/cancel", srv.handleCancel)
	mux.HandleFunc("DELETE /api/tasks/{id}", srv.handleDelete)
	mux.HandleFunc("GET /api/tasks/{id}/subtitles/{lang}", srv.handleDownload)

	srv.server = &http.Server{
		Handler:           srv.withRequestID(mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Minute,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// Addr returns the bound listener address, empty until start succeeds.
func (s *apiServer) addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.daemon.Status(r.Context())
	if err != nil {
		s.writeTaskError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *apiServer) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	infos := language.List()
	payload := api.LanguagesResponse{Languages: make([]api.LanguageInfo, 0, len(infos))}
	for _, info := range infos {
		payload.Languages = append(payload.Languages, api.LanguageInfo{
			Code:        info.Code,
			DisplayName: info.DisplayName,
		})
	}
	s.writeJSON(w, http.StatusOK, payload)
}

// handleSubmit accepts a multipart upload with a "video" file part plus
// "languages" and optional "format" fields, stores the upload, and enqueues
// the task.
func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("parse upload: %v", err))
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, header, err := r.FormFile("video")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "video file part is required")
		return
	}
	defer file.Close()

	langs := parseLanguagesField(r.MultipartForm.Value["languages"])
	if len(langs) == 0 {
		s.writeError(w, http.StatusBadRequest, "languages field is required")
		return
	}

	videoPath, err := s.saveUpload(file, header)
	if err != nil {
		s.log().Error("store upload failed", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, "store upload failed")
		return
	}

	task, err := s.daemon.Manager().Submit(r.Context(), tasks.Spec{
		VideoPath:       videoPath,
		TargetLanguages: langs,
		SubtitleFormat:  tasks.Format(r.FormValue("format")),
	})
	if err != nil {
		_ = os.Remove(videoPath)
		s.writeTaskError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.SubmitResponse{Item: api.FromTask(task)})
}

func (s *apiServer) handleList(w http.ResponseWriter, r *http.Request) {
	var statuses []tasks.Status
	for _, raw := range strings.Split(r.URL.Query().Get("status"), ",") {
		if raw = strings.TrimSpace(raw); raw == "" {
			continue
		}
		status, ok := tasks.ParseStatus(raw)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", raw))
			return
		}
		statuses = append(statuses, status)
	}

	items, err := s.daemon.Manager().List(r.Context(), statuses...)
	if err != nil {
		s.writeTaskError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.TaskListResponse{Items: api.FromTasks(items)})
}

func (s *apiServer) handleGet(w http.ResponseWriter, r *http.Request) {
	task, err := s.daemon.Manager().Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeTaskError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.TaskResponse{Item: api.FromTask(task)})
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.Manager().Cancel(r.Context(), r.PathValue("id")); err != nil {
		s.writeTaskError(w, r, err)
		return
	}
	task, err := s.daemon.Manager().Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeTaskError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.TaskResponse{Item: api.FromTask(task)})
}

func (s *apiServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.Manager().Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeTaskError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusNoContent, nil)
}

func (s *apiServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	path, err := s.daemon.Manager().SubtitlePath(r.Context(), r.PathValue("id"), r.PathValue("lang"))
	if err != nil {
		s.writeTaskError(w, r, err)
		return
	}
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	http.ServeFile(w, r, path)
}

// saveUpload copies the uploaded video into the upload directory under a
// unique name so repeated uploads of the same file never collide.
func (s *apiServer) saveUpload(file multipart.File, header *multipart.FileHeader) (string, error) {
	name := filepath.Base(header.Filename)
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "upload.mp4"
	}
	path := filepath.Join(s.cfg.Paths.UploadDir, uuid.NewString()[:8]+"_"+name)

	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(out, file); err != nil {
		_ = out.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write upload file: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close upload file: %w", err)
	}
	return path, nil
}

func parseLanguagesField(values []string) []string {
	var langs []string
	for _, value := range values {
		for _, code := range strings.Split(value, ",") {
			if code = strings.TrimSpace(code); code != "" {
				langs = append(langs, code)
			}
		}
	}
	return langs
}

// withRequestID stamps every request context with a correlation id so error
// logs can be tied back to a specific API call.
func (s *apiServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := services.WithRequestID(r.Context(), uuid.NewString()[:8])
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// writeTaskError maps service error markers onto HTTP status codes.
func (s *apiServer) writeTaskError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		s.writeError(w, http.StatusBadRequest, services.Message(err))
	case errors.Is(err, services.ErrNotFound):
		s.writeError(w, http.StatusNotFound, services.Message(err))
	default:
		logging.WithContext(r.Context(), s.log()).Error("request failed", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, services.Message(err))
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
