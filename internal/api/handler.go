package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nidhogg/embedpref/internal/embedding"
	"github.com/nidhogg/embedpref/internal/notify"
	"github.com/nidhogg/embedpref/internal/preference"
	"github.com/nidhogg/embedpref/internal/settings"
	"go.uber.org/zap"
)

const sessionCookie = "embedpref_session"

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	service  *settings.Service
	sessions *preference.Sessions
	registry *embedding.Registry
	logger   *zap.Logger
}

// NewHandler creates a new API handler. service and registry may be nil when
// this process only serves the page against a remote settings backend.
func NewHandler(
	service *settings.Service,
	sessions *preference.Sessions,
	registry *embedding.Registry,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		service:  service,
		sessions: sessions,
		registry: registry,
		logger:   logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
		}))

		r.Get("/health", h.healthCheck)

		// Settings backend
		r.Get("/system/keys", h.systemKeys)
		r.Post("/system/update-env", h.updateEnv)
		r.Get("/system/embedding", h.embeddingStatus)
	})

	// Settings page
	r.Get(preference.PagePath, h.showPage)
	r.Post(preference.PagePath, h.submitPage)
	r.Post(preference.ProviderPath, h.selectProvider)
	r.Post(preference.RetryPath, h.retryLoad)

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) systemKeys(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "settings backend not initialized"})
		return
	}
	snap, err := h.service.Fetch(r.Context())
	if err != nil {
		h.logger.Error("fetch settings failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) updateEnv(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "settings backend not initialized"})
		return
	}
	var payload map[string]string
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := h.service.Update(r.Context(), payload); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, settings.ErrUnknownKey) || errors.Is(err, settings.ErrInvalidValue) {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"error": nil})
}

func (h *Handler) embeddingStatus(w http.ResponseWriter, r *http.Request) {
	if h.registry == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "embedder not initialized"})
		return
	}
	writeJSON(w, http.StatusOK, h.registry.Status())
}

// session returns the visitor's mounted form, mounting one on first visit.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) *preference.Session {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if sess, ok := h.sessions.Get(c.Value); ok {
			return sess
		}
	}
	sess := h.sessions.Mount()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return sess
}

func (h *Handler) showPage(w http.ResponseWriter, r *http.Request) {
	sess := h.session(w, r)
	if err := sess.Form.Load(r.Context()); err != nil && !errors.Is(err, preference.ErrUnmounted) {
		h.logger.Warn("settings page load failed", zap.String("session", sess.ID), zap.Error(err))
	}
	h.render(w, http.StatusOK, sess)
}

func (h *Handler) retryLoad(w http.ResponseWriter, r *http.Request) {
	sess := h.session(w, r)
	if err := sess.Form.Load(r.Context()); err != nil && !errors.Is(err, preference.ErrUnmounted) {
		h.logger.Warn("settings page retry failed", zap.String("session", sess.ID), zap.Error(err))
	}
	redirect(w, r)
}

func (h *Handler) selectProvider(w http.ResponseWriter, r *http.Request) {
	sess := h.session(w, r)
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := sess.Form.Select(r.PostForm.Get("provider")); err != nil {
		if errors.Is(err, preference.ErrUnknownProvider) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Debug("provider select ignored", zap.Error(err))
	}
	redirect(w, r)
}

func (h *Handler) submitPage(w http.ResponseWriter, r *http.Request) {
	sess := h.session(w, r)
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	values := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		values[k] = r.PostForm.Get(k)
	}

	// The save belongs to the mounted form, not to this request.
	ctx := context.WithoutCancel(r.Context())
	err := sess.Form.Submit(ctx, values)
	if errors.Is(err, preference.ErrNotReady) {
		err = h.resubmit(ctx, sess, values)
	}
	switch {
	case err == nil:
	case errors.Is(err, preference.ErrInvalidField):
		h.render(w, http.StatusUnprocessableEntity, sess)
		return
	case errors.Is(err, preference.ErrNotReady), errors.Is(err, preference.ErrGated),
		errors.Is(err, preference.ErrNothingToSave), errors.Is(err, preference.ErrSaveInFlight):
		h.logger.Debug("submit ignored", zap.String("session", sess.ID), zap.Error(err))
	default:
		// Already surfaced to the visitor as a toast.
		h.logger.Info("settings page save failed", zap.String("session", sess.ID), zap.Error(err))
	}
	redirect(w, r)
}

// resubmit replays a submit against a form that was mounted after the
// visitor's previous session expired. The posted engine is restored first.
func (h *Handler) resubmit(ctx context.Context, sess *preference.Session, values map[string]string) error {
	if err := sess.Form.Load(ctx); err != nil {
		if !errors.Is(err, preference.ErrUnmounted) {
			sess.Flash.Notify(preference.SaveFailedMessage(err), notify.Error)
		}
		return err
	}
	if engine := values[settings.KeyEmbeddingEngine]; engine != "" && engine != sess.Form.View().Engine {
		if err := sess.Form.Select(engine); err != nil && !errors.Is(err, preference.ErrGated) {
			sess.Flash.Notify(preference.SaveFailedMessage(err), notify.Error)
			return err
		}
	}
	return sess.Form.Submit(ctx, values)
}

func (h *Handler) render(w http.ResponseWriter, status int, sess *preference.Session) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := preference.Render(w, sess.Form.View(), sess.Flash.Drain()); err != nil {
		h.logger.Error("render settings page", zap.Error(err))
	}
}

func redirect(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, preference.PagePath, http.StatusSeeOther)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
