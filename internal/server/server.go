// Package server exposes the operational HTTP surface: health, metrics,
// chain verification and the analysis trigger. This is an internal
// surface, not the product API.
package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/certiview/certiview/internal/platform/audit"
	"github.com/certiview/certiview/internal/platform/auth"
	"github.com/certiview/certiview/internal/service"
)

type Server struct {
	analysis *service.Analysis
	recorder *service.AuditRecorder
	verifier *auth.Verifier
}

func New(analysis *service.Analysis, recorder *service.AuditRecorder, verifier *auth.Verifier) *Server {
	return &Server{analysis: analysis, recorder: recorder, verifier: verifier}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/health", s.health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	internal := e.Group("/internal", s.requireActor)
	internal.POST("/reviews/:id/analyze", s.analyzeReview)
	internal.GET("/audit/verify", s.verifyChain)
	internal.GET("/audit/entries", s.listAuditEntries)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// requireActor rejects internal calls without a valid bearer token.
func (s *Server) requireActor(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.verifier == nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "auth not configured")
		}
		h := c.Request().Header.Get("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
		}
		actor, err := s.verifier.ParseActor(strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}
		c.SetRequest(c.Request().WithContext(auth.WithActor(c.Request().Context(), actor)))
		return next(c)
	}
}

func (s *Server) analyzeReview(c echo.Context) error {
	if s.analysis == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "analysis requires a database")
	}
	reviewID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid review id")
	}

	meta := service.RunMeta{ActorType: "USER"}
	if actor, ok := auth.ActorFromContext(c.Request().Context()); ok {
		meta.ActorType = actor.Type
		if id, err := uuid.Parse(actor.ID); err == nil {
			meta.ActorID = &id
		}
	}
	requestID := c.Request().Header.Get(echo.HeaderXRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	meta.RequestID = &requestID

	summary, err := s.analysis.Run(c.Request().Context(), reviewID, meta)
	if errors.Is(err, service.ErrReviewNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "review not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "analysis failed")
	}
	return c.JSON(http.StatusOK, summary)
}

func (s *Server) verifyChain(c echo.Context) error {
	result, err := s.recorder.Verify(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "verification failed")
	}
	return c.JSON(http.StatusOK, result)
}

type auditEntryDTO struct {
	ID           int64          `json:"id"`
	Timestamp    string         `json:"timestamp"`
	ActorID      *string        `json:"actor_id"`
	ActorType    string         `json:"actor_type"`
	Action       string         `json:"action"`
	EntityType   string         `json:"entity_type"`
	EntityID     *string        `json:"entity_id"`
	Metadata     map[string]any `json:"metadata"`
	RequestID    *string        `json:"request_id"`
	PreviousHash *string        `json:"previous_hash"`
	ContentHash  string         `json:"content_hash"`
}

func (s *Server) listAuditEntries(c echo.Context) error {
	entries, err := s.recorder.Entries(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "list audit entries failed")
	}

	entityType := c.QueryParam("entity_type")
	limit := queryInt(c, "limit", 100)
	offset := queryInt(c, "offset", 0)

	filtered := entries[:0:0]
	for _, e := range entries {
		if entityType != "" && e.EntityType != entityType {
			continue
		}
		filtered = append(filtered, e)
	}
	if offset > len(filtered) {
		offset = len(filtered)
	}
	end := offset + limit
	if end > len(filtered) {
		end = len(filtered)
	}

	out := make([]auditEntryDTO, 0, end-offset)
	for _, e := range filtered[offset:end] {
		out = append(out, toEntryDTO(e))
	}
	return c.JSON(http.StatusOK, map[string]any{
		"entries": out,
		"total":   len(filtered),
	})
}

func toEntryDTO(e audit.Entry) auditEntryDTO {
	dto := auditEntryDTO{
		ID:           e.ID,
		Timestamp:    e.Timestamp.UTC().Format(time.RFC3339Nano),
		ActorType:    e.ActorType,
		Action:       e.Action,
		EntityType:   e.EntityType,
		Metadata:     e.Metadata,
		RequestID:    e.RequestID,
		PreviousHash: e.PreviousHash,
		ContentHash:  e.ContentHash,
	}
	if e.ActorID != nil {
		v := e.ActorID.String()
		dto.ActorID = &v
	}
	if e.EntityID != nil {
		v := e.EntityID.String()
		dto.EntityID = &v
	}
	return dto
}

func queryInt(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
