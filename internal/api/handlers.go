package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/symptom-ledger-server/internal/domain"
	"github.com/symptom-ledger-server/internal/middleware"
)

// recordAssessmentRequest is the body of POST /users/:user_id/assessments/:type
type recordAssessmentRequest struct {
	Answers        domain.Answers     `json:"answers"`
	OverallScore   *float64           `json:"overall_score"`
	CategoryScores map[string]float64 `json:"category_scores"`
	CompletedAt    *time.Time         `json:"completed_at"`
}

// flagRemovedEvent is the body of the biomarker flag removal hook
type flagRemovedEvent struct {
	UserID    string `json:"user_id"`
	Biomarker string `json:"biomarker_name"`
	Reason    string `json:"reason"`
}

func assessmentType(raw string) domain.AssessmentType {
	return domain.AssessmentType(strings.ToLower(strings.TrimSpace(raw)))
}

func (s *Server) handleUpdate(c *gin.Context) {
	userID := c.Param("user_id")

	result, err := s.ledger.Update(c.Request.Context(), userID, assessmentType(c.Query("assessment")))
	if err != nil {
		s.writeUpdateError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleRecordAssessment(c *gin.Context) {
	var req recordAssessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeUpdateError(c, domain.NewValidationError("body", err.Error(), nil))
		return
	}

	snapshot := &domain.AssessmentSnapshot{
		UserID:         c.Param("user_id"),
		Type:           assessmentType(c.Param("type")),
		Answers:        req.Answers,
		OverallScore:   req.OverallScore,
		CategoryScores: req.CategoryScores,
		CompletedAt:    req.CompletedAt,
	}

	result, err := s.ledger.RecordAssessment(c.Request.Context(), snapshot)
	if err != nil {
		s.writeUpdateError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleGetLog(c *gin.Context) {
	log, err := s.ledger.GetLog(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, log)
}

func (s *Server) handleGetByCategory(c *gin.Context) {
	s.serveIndex(c, s.ledger.GetByCategory)
}

func (s *Server) handleGetBySeverity(c *gin.Context) {
	s.serveIndex(c, s.ledger.GetBySeverity)
}

func (s *Server) handleGetByFrequency(c *gin.Context) {
	s.serveIndex(c, s.ledger.GetByFrequency)
}

func (s *Server) serveIndex(c *gin.Context, get func(ctx context.Context, userID string) (domain.Index, error)) {
	index, err := get(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if index == nil {
		index = domain.Index{}
	}
	c.JSON(http.StatusOK, index)
}

func (s *Server) handleGetTotalCount(c *gin.Context) {
	count, err := s.ledger.GetTotalCount(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total_count": count})
}

func (s *Server) handleGetHistory(c *gin.Context) {
	history, err := s.ledger.GetHistory(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

func (s *Server) handleListFlags(c *gin.Context) {
	flags, err := s.ledger.ListFlags(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if flags == nil {
		flags = []*domain.BiomarkerFlag{}
	}
	c.JSON(http.StatusOK, gin.H{"flags": flags})
}

func (s *Server) handleRemoveFlags(c *gin.Context) {
	result, err := s.ledger.RemoveBiomarkerFlag(
		c.Request.Context(),
		c.Param("user_id"),
		strings.ToLower(c.Param("biomarker")),
		c.Query("reason"),
	)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleFlagRemovedEvent(c *gin.Context) {
	var event flagRemovedEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		s.writeError(c, domain.NewValidationError("body", err.Error(), nil))
		return
	}
	if event.UserID == "" {
		s.writeError(c, domain.NewValidationError("user_id", "user id is required", nil))
		return
	}
	if event.Biomarker == "" {
		s.writeError(c, domain.NewValidationError("biomarker_name", "biomarker name is required", nil))
		return
	}

	resolved, err := s.ledger.OnBiomarkerFlagRemoved(c.Request.Context(), event.UserID, strings.ToLower(event.Biomarker), event.Reason)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symptoms_resolved": resolved})
}

// errorResponse maps an error onto a status code and a LedgerError. Persistence
// failures carry no detail.
func (s *Server) errorResponse(c *gin.Context, err error) (int, *domain.LedgerError) {
	requestID := c.GetString(middleware.CorrelationIDKey)

	var validation *domain.ValidationError
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, domain.NewLedgerError(domain.ErrCodeValidation, validation.Message, validation.Field, requestID)
	case errors.Is(err, domain.ErrUnknownAssessmentType):
		return http.StatusBadRequest, domain.NewLedgerError(domain.ErrCodeInvalidInput, "Unknown assessment type", err.Error(), requestID)
	case errors.Is(err, domain.ErrUnsupported):
		return http.StatusNotImplemented, domain.NewLedgerError(domain.ErrCodeUnsupported, "Operation not supported by this deployment", "", requestID)
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, domain.NewLedgerError(domain.ErrCodeNotFound, "Resource not found", "", requestID)
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, domain.NewLedgerError(domain.ErrCodeInternalServer, "Request timeout", "", requestID)
	case errors.Is(err, domain.ErrPersistence):
		return http.StatusInternalServerError, domain.NewLedgerError(domain.ErrCodePersistence, "Symptom ledger is temporarily unavailable", "", requestID)
	default:
		return http.StatusInternalServerError, domain.NewLedgerError(domain.ErrCodeInternalServer, "Internal server error", "", requestID)
	}
}

func (s *Server) writeError(c *gin.Context, err error) {
	status, body := s.errorResponse(c, err)
	s.logRequestError(c, status, err)
	c.JSON(status, body)
}

// writeUpdateError keeps the update response shape on failure
func (s *Server) writeUpdateError(c *gin.Context, err error) {
	status, body := s.errorResponse(c, err)
	s.logRequestError(c, status, err)
	c.JSON(status, gin.H{"success": false, "error": body})
}

func (s *Server) logRequestError(c *gin.Context, status int, err error) {
	entry := s.logger.WithError(err).WithFields(logrus.Fields{
		"correlation_id": c.GetString(middleware.CorrelationIDKey),
		"route":          c.FullPath(),
		"status":         status,
	})
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
		return
	}
	entry.Debug("Request rejected")
}
