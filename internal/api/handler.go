package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/community-broadcast/internal/broadcast"
	"github.com/example/community-broadcast/internal/common"
	"github.com/example/community-broadcast/internal/notification"
	"github.com/example/community-broadcast/internal/recipient"
)

var (
	reqCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "api_requests_total",
		Help: "Total number of API requests by route and status",
	}, []string{"route", "status"})
	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "api_request_duration_seconds",
		Help:    "Latency of API requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

// Broadcaster is satisfied by *broadcast.Orchestrator.
type Broadcaster interface {
	Broadcast(ctx context.Context, req broadcast.Request) (broadcast.Summary, error)
}

type Handler struct {
	repo        notification.Repository
	broadcaster Broadcaster
	tracer      trace.Tracer
	logger      zerolog.Logger
}

func NewHandler(repo notification.Repository, broadcaster Broadcaster, logger zerolog.Logger) *Handler {
	return &Handler{
		repo:        repo,
		broadcaster: broadcaster,
		tracer:      otel.Tracer("broadcast-api"),
		logger:      logger,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", h.healthz)
	r.Route("/v1/notifications", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Delete("/{id}", h.delete)
		r.Post("/{id}/read", h.markRead)
		r.Post("/{id}/broadcast", h.broadcast)
	})
	return r
}

type createRequest struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	Kind     string `json:"kind"`
	Audience string `json:"audience"`
}

type broadcastRequest struct {
	Subject  string   `json:"subject"`
	Body     string   `json:"body"`
	Audience string   `json:"audience"`
	Emails   []string `json:"emails"`
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	const route = "create"
	ctx, span := h.tracer.Start(r.Context(), "notification.create")
	defer span.End()
	start := time.Now()

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondErr(ctx, w, route, http.StatusBadRequest, err)
		return
	}
	if err := validateCreate(req); err != nil {
		h.respondErr(ctx, w, route, http.StatusBadRequest, err)
		return
	}

	n, err := h.repo.Create(ctx, req.Title, req.Body, notification.ParseKind(req.Kind), notification.ParseAudience(req.Audience))
	if err != nil {
		h.respondErr(ctx, w, route, http.StatusInternalServerError, err)
		return
	}
	span.SetAttributes(attribute.String("notification.id", n.ID))
	h.respond(w, route, start, http.StatusCreated, n)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	const route = "list"
	ctx, span := h.tracer.Start(r.Context(), "notification.list")
	defer span.End()
	start := time.Now()

	var filter *notification.Kind
	if raw := r.URL.Query().Get("kind"); raw != "" {
		// unknown kinds are ignored rather than rejected
		if k, ok := notification.ParseKindFilter(raw); ok {
			filter = &k
		}
	}

	items, err := h.repo.List(ctx, filter)
	if err != nil {
		h.respondErr(ctx, w, route, http.StatusInternalServerError, err)
		return
	}
	if items == nil {
		items = []notification.Notification{}
	}
	h.respond(w, route, start, http.StatusOK, items)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	const route = "get"
	ctx, span := h.tracer.Start(r.Context(), "notification.get")
	defer span.End()
	start := time.Now()

	n, err := h.repo.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.respondErr(ctx, w, route, statusFor(err), err)
		return
	}
	h.respond(w, route, start, http.StatusOK, n)
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	const route = "mark_read"
	ctx, span := h.tracer.Start(r.Context(), "notification.mark_read")
	defer span.End()
	start := time.Now()

	id := chi.URLParam(r, "id")
	found, err := h.repo.MarkRead(ctx, id)
	if err != nil {
		h.respondErr(ctx, w, route, http.StatusInternalServerError, err)
		return
	}
	if !found {
		h.respondErr(ctx, w, route, http.StatusNotFound, notification.ErrNotFound)
		return
	}
	n, err := h.repo.Get(ctx, id)
	if err != nil {
		h.respondErr(ctx, w, route, statusFor(err), err)
		return
	}
	h.respond(w, route, start, http.StatusOK, n)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	const route = "delete"
	ctx, span := h.tracer.Start(r.Context(), "notification.delete")
	defer span.End()
	start := time.Now()

	found, err := h.repo.Delete(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.respondErr(ctx, w, route, http.StatusInternalServerError, err)
		return
	}
	if !found {
		h.respondErr(ctx, w, route, http.StatusNotFound, notification.ErrNotFound)
		return
	}
	reqCounter.WithLabelValues(route, http.StatusText(http.StatusNoContent)).Inc()
	requestLatency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) broadcast(w http.ResponseWriter, r *http.Request) {
	const route = "broadcast"
	ctx, span := h.tracer.Start(r.Context(), "notification.broadcast")
	defer span.End()
	start := time.Now()

	id := chi.URLParam(r, "id")
	span.SetAttributes(attribute.String("notification.id", id))

	var req broadcastRequest
	// every field is optional, so an empty body is fine
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.respondErr(ctx, w, route, http.StatusBadRequest, err)
		return
	}

	n, err := h.repo.Get(ctx, id)
	if err != nil {
		h.respondErr(ctx, w, route, statusFor(err), err)
		return
	}

	bReq, err := buildBroadcastRequest(n, req)
	if err != nil {
		h.respondErr(ctx, w, route, http.StatusBadRequest, err)
		return
	}

	// a dropped client must not cut the audience short; only the
	// orchestrator's own timeout bounds the run
	summary, err := h.broadcaster.Broadcast(context.WithoutCancel(ctx), bReq)
	if err != nil {
		h.respondErr(ctx, w, route, statusFor(err), err)
		return
	}
	h.respond(w, route, start, http.StatusOK, summary)
}

// buildBroadcastRequest fills subject, body and audience from the stored
// notification when the caller leaves them out.
func buildBroadcastRequest(n notification.Notification, req broadcastRequest) (broadcast.Request, error) {
	out := broadcast.Request{
		NotificationID: n.ID,
		Subject:        strings.TrimSpace(req.Subject),
		Body:           strings.TrimSpace(req.Body),
		Filter:         recipient.Filter{Audience: n.Audience, Emails: req.Emails},
	}
	if out.Subject == "" {
		out.Subject = n.Title
	}
	if out.Body == "" {
		out.Body = n.Body
	}
	if req.Audience != "" {
		out.Filter.Audience = notification.ParseAudience(req.Audience)
	}
	if out.Filter.Audience == notification.AudienceSpecific && len(out.Filter.Emails) == 0 {
		return broadcast.Request{}, errors.New("emails are required for a specific audience")
	}
	return out, nil
}

func validateCreate(req createRequest) error {
	if strings.TrimSpace(req.Title) == "" {
		return errors.New("title is required")
	}
	if strings.TrimSpace(req.Body) == "" {
		return errors.New("body is required")
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, notification.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, broadcast.ErrInProgress):
		return http.StatusConflict
	case errors.Is(err, recipient.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respond(w http.ResponseWriter, route string, start time.Time, status int, body any) {
	reqCounter.WithLabelValues(route, http.StatusText(status)).Inc()
	requestLatency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *Handler) respondErr(ctx context.Context, w http.ResponseWriter, route string, status int, err error) {
	logger := common.WithContext(ctx, h.logger)
	event := logger.Error()
	if status < http.StatusInternalServerError {
		event = logger.Warn()
	}
	event.Err(err).Str("route", route).Int("status", status).Msg("request failed")
	reqCounter.WithLabelValues(route, http.StatusText(status)).Inc()
	http.Error(w, err.Error(), status)
}
