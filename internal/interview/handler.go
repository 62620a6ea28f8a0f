package interview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"interview-backend/internal/quota"
	"interview-backend/internal/session"
	"interview-backend/internal/shared/server/middleware"
	"interview-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the interview service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches interview routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/interview/resume/quiz/stream", h.resumeQuizStream)
	rg.GET("/interview/resume/quiz/:requestId", h.getQuizResult)
	rg.GET("/interview/resume/quiz", h.listQuizResults)
	rg.POST("/interview/analyze-resume", h.analyzeResume)
	rg.POST("/interview/session", h.startSession)
	rg.POST("/interview/continue", h.continueSession)
	rg.POST("/interview/mockInterview", h.startMockInterview)
	rg.POST("/interview/mockAnswer", h.answerMockInterview)
	rg.POST("/interview/endInterview/:resultId", h.endMockInterview)
	rg.POST("/interview/pauseInterview/:resultId", h.pauseMockInterview)
	rg.POST("/interview/resumeInterview/:resultId", h.resumeMockInterview)
	rg.GET("/interview/mockInterview/:resultId", h.getMockResult)
}

func (h *Handler) resumeQuizStream(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	var req QuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}

	ctx := WithRequestID(c.Request.Context(), c.GetString("requestId"))
	em, err := h.Svc.SubmitResumeQuiz(ctx, userID, req)
	if err != nil {
		switch {
		case errors.Is(err, quota.ErrInsufficientBalance):
			respond.Error(c, http.StatusTooManyRequests, "limit_reached", "You've used up your quiz quota.", nil)
		case errors.Is(err, ErrWorkInProgress):
			respond.Error(c, http.StatusConflict, "in_progress", "This request is already being processed.", nil)
		case errors.Is(err, ErrInconsistentState):
			respond.Error(c, http.StatusInternalServerError, "inconsistent_state", "Stored result is missing, contact support.", nil)
		default:
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		}
		return
	}

	streamEvents(c, em)
}

// streamEvents drains the emitter onto the response as server-sent events.
// A client disconnect stops the stream; the pipeline keeps running on its
// detached context.
func streamEvents(c *gin.Context, em *Emitter) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	flusher, canFlush := c.Writer.(http.Flusher)
	done := c.Request.Context().Done()

	for {
		select {
		case ev, ok := <-em.Events():
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(c.Writer, "data: %s\n\n", payload)
			if canFlush {
				flusher.Flush()
			}
		case <-done:
			return
		}
	}
}

func (h *Handler) getQuizResult(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	requestID := c.Param("requestId")
	if requestID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "request id is required", nil)
		return
	}

	result, err := h.Svc.GetResult(c.Request.Context(), userID, requestID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "quiz result not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch quiz result", nil)
		}
		return
	}
	respond.OK(c, result)
}

func (h *Handler) listQuizResults(c *gin.Context) {
	if isGuest, ok := c.Get("isGuest"); ok {
		if guest, ok2 := isGuest.(bool); ok2 && guest {
			respond.Error(c, http.StatusUnauthorized, "login_required", "Login required to view history", nil)
			return
		}
	}

	userID := middleware.UserIDFromContext(c)

	limit := 20
	offset := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}

	results, err := h.Svc.ListResults(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list quiz results", nil)
		return
	}

	resp := make([]gin.H, 0, len(results))
	for _, r := range results {
		resp = append(resp, gin.H{
			"requestId":  r.RequestID,
			"summary":    r.Summary,
			"matchScore": r.Match.MatchScore,
			"questions":  len(r.Questions),
			"createdAt":  r.CreatedAt,
		})
	}
	respond.OK(c, resp)
}

type analyzeResumeRequest struct {
	ResumeContent string `json:"resumeContent" binding:"required,max=10000"`
	Position      string `json:"position" binding:"required,max=100"`
}

func (h *Handler) analyzeResume(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	var req analyzeResumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}

	report, err := h.Svc.AnalyzeResume(c.Request.Context(), userID, req.ResumeContent, req.Position)
	if err != nil {
		switch {
		case errors.Is(err, quota.ErrInsufficientBalance):
			respond.Error(c, http.StatusTooManyRequests, "limit_reached", "You've used up your analysis quota.", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to analyze resume", nil)
		}
		return
	}
	respond.OK(c, report)
}

type startSessionRequest struct {
	Position      string `json:"position" binding:"required,max=100"`
	FirstQuestion string `json:"firstQuestion" binding:"max=2000"`
}

func (h *Handler) startSession(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}

	sessionID, err := h.Svc.StartConversation(c.Request.Context(), userID, req.Position, req.FirstQuestion)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to start session", nil)
		return
	}
	respond.JSON(c, http.StatusCreated, gin.H{"sessionId": sessionID})
}

func (h *Handler) startMockInterview(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	var req MockInterviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}

	ctx := WithRequestID(c.Request.Context(), c.GetString("requestId"))
	stream, err := h.Svc.StartMockInterview(ctx, userID, req)
	if err != nil {
		switch {
		case errors.Is(err, quota.ErrInsufficientBalance):
			respond.Error(c, http.StatusTooManyRequests, "limit_reached", "You've used up your interview quota.", nil)
		default:
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		}
		return
	}

	streamMockEvents(c, stream)
}

type mockAnswerRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
	Answer    string `json:"answer" binding:"required,max=4000"`
}

func (h *Handler) answerMockInterview(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	var req mockAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}

	ctx := WithRequestID(c.Request.Context(), c.GetString("requestId"))
	stream, err := h.Svc.AnswerMockQuestion(ctx, userID, req.SessionID, req.Answer)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "interview session not found", nil)
		case errors.Is(err, ErrMockNotActive):
			respond.Error(c, http.StatusConflict, "not_active", "interview is not accepting answers", nil)
		default:
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		}
		return
	}

	streamMockEvents(c, stream)
}

// streamMockEvents drains a mock interview stream onto the response as
// server-sent events, leading with a connected frame.
func streamMockEvents(c *gin.Context, stream *MockStream) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	flusher, canFlush := c.Writer.(http.Flusher)
	fmt.Fprint(c.Writer, "data: connected\n\n")
	if canFlush {
		flusher.Flush()
	}
	done := c.Request.Context().Done()

	for {
		select {
		case ev, ok := <-stream.Events():
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(c.Writer, "data: %s\n\n", payload)
			if canFlush {
				flusher.Flush()
			}
		case <-done:
			return
		}
	}
}

func (h *Handler) endMockInterview(c *gin.Context) {
	h.transitionMock(c, h.Svc.EndMockInterview, "面试已结束")
}

func (h *Handler) pauseMockInterview(c *gin.Context) {
	h.transitionMock(c, h.Svc.PauseMockInterview, "面试已暂停")
}

func (h *Handler) resumeMockInterview(c *gin.Context) {
	h.transitionMock(c, h.Svc.ResumeMockInterview, "面试已恢复")
}

func (h *Handler) transitionMock(c *gin.Context, op func(ctx context.Context, userID, resultID string) (MockResult, error), message string) {
	userID := middleware.UserIDFromContext(c)
	resultID := c.Param("resultId")

	result, err := op(c.Request.Context(), userID, resultID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "interview result not found", nil)
		case errors.Is(err, ErrMockNotActive):
			respond.Error(c, http.StatusConflict, "not_active", "interview is not in the required state", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to update interview", nil)
		}
		return
	}
	respond.OK(c, gin.H{"resultId": result.ID, "status": result.Status, "message": message})
}

func (h *Handler) getMockResult(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	result, err := h.Svc.GetMockResult(c.Request.Context(), userID, c.Param("resultId"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "interview result not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch interview result", nil)
		}
		return
	}
	respond.OK(c, result)
}

type continueRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
	Message   string `json:"message" binding:"required,max=4000"`
}

func (h *Handler) continueSession(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	var req continueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}

	reply, err := h.Svc.ContinueConversation(c.Request.Context(), userID, req.SessionID, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "session not found or expired", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to continue session", nil)
		}
		return
	}
	respond.OK(c, gin.H{"reply": reply})
}
