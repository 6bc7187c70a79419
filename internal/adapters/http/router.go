package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kirillkom/fashion-recommender/internal/config"
	"github.com/kirillkom/fashion-recommender/internal/core/domain"
	"github.com/kirillkom/fashion-recommender/internal/core/ports"
	"github.com/kirillkom/fashion-recommender/internal/observability/logging"
	"github.com/kirillkom/fashion-recommender/internal/observability/metrics"
)

const maxRequestBodyBytes = 64 << 10

// IndexStatus reports whether an index snapshot is installed and its version.
type IndexStatus interface {
	Loaded() (bool, string)
}

type Router struct {
	cfg         config.Config
	recommender ports.Recommender
	status      IndexStatus
	metrics     *metrics.HTTPServerMetrics
	logger      *zap.Logger
}

func NewRouter(
	cfg config.Config,
	recommender ports.Recommender,
	status IndexStatus,
	httpMetrics *metrics.HTTPServerMetrics,
	logger *zap.Logger,
) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		cfg:         cfg,
		recommender: recommender,
		status:      status,
		metrics:     httpMetrics,
		logger:      logger,
	}
}

type envelope struct {
	Code    int    `json:"code"`
	Data    any    `json:"data"`
	Message string `json:"message"`
}

type recommendRequest struct {
	Question string `json:"question"`
}

type recommendData struct {
	Answer  string   `json:"answer"`
	Indexes []string `json:"indexes"`
}

type healthData struct {
	Status       string `json:"status"`
	IndexLoaded  bool   `json:"index_loaded"`
	IndexVersion string `json:"index_version"`
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware(rt.logger))
	r.Use(accessLogMiddleware(rt.logger))
	r.Use(recoverMiddleware(rt.logger))
	if rt.metrics != nil {
		r.Use(rt.metrics.Middleware)
	}

	r.Get("/health", rt.health)
	if rt.metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return rateLimitMiddleware(next, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
		})
		r.Use(func(next http.Handler) http.Handler {
			return backpressureMiddleware(next, rt.cfg.APIMaxInFlight, rt.cfg.BackpressureWait())
		})
		r.Use(func(next http.Handler) http.Handler {
			return timeoutMiddleware(next, rt.cfg.RequestTimeout())
		})
		r.Post("/recommend", rt.recommend)
		r.Post("/recommend/", rt.recommend)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, envelope{Code: http.StatusNotFound, Message: "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, envelope{Code: http.StatusMethodNotAllowed, Message: "method not allowed"})
	})
	return r
}

func (rt *Router) health(w http.ResponseWriter, _ *http.Request) {
	data := healthData{Status: "ok"}
	if rt.status != nil {
		data.IndexLoaded, data.IndexVersion = rt.status.Loaded()
	}
	writeJSON(w, http.StatusOK, envelope{Code: http.StatusOK, Data: data, Message: "ok"})
}

func (rt *Router) recommend(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context(), rt.logger)

	var req recommendRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		logger.Warn("invalid recommend body", zap.Error(err))
		writeFailure(w, http.StatusBadRequest, domain.MessageInvalidBody, domain.LanguageEnglish)
		return
	}

	lang := domain.DetectLanguage(req.Question)
	if strings.TrimSpace(req.Question) == "" {
		writeFailure(w, http.StatusBadRequest, domain.MessageEmptyQuestion, lang)
		return
	}

	rec, err := rt.recommender.Recommend(r.Context(), req.Question)
	if err != nil {
		status := mapErrorToHTTPStatus(err)
		if status >= http.StatusInternalServerError {
			logger.Error("recommend failed", zap.Int("status", status), zap.Error(err))
		} else {
			logger.Warn("recommend rejected", zap.Int("status", status), zap.Error(err))
		}
		writeFailure(w, status, mapErrorToMessage(err), lang)
		return
	}

	indexes := rec.Indexes
	if indexes == nil {
		indexes = []string{}
	}
	writeJSON(w, http.StatusOK, envelope{
		Code:    http.StatusOK,
		Data:    recommendData{Answer: rec.Answer, Indexes: indexes},
		Message: domain.Message(domain.MessageSuccess, lang),
	})
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

func writeFailure(w http.ResponseWriter, status int, key domain.MessageKey, lang domain.Language) {
	writeJSON(w, status, envelope{Code: status, Data: nil, Message: domain.Message(key, lang)})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
