package quiz

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"lmsquiz/internal/app/apiresp"
	"lmsquiz/internal/auth"
	"lmsquiz/internal/course"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc quizService
}

type quizService interface {
	SaveQuiz(ctx context.Context, in SaveQuizInput) (int64, error)
	GetQuizByCourse(ctx context.Context, courseID int64, includeAnswers bool) (*Quiz, error)
	DeleteQuiz(ctx context.Context, quizID int64) error
	Diagnostics(ctx context.Context, quizID int64) (*Diagnostics, error)
	CanAttemptQuiz(ctx context.Context, courseID, userID int64) (bool, error)
	CheckQuizAttempt(ctx context.Context, quizID, userID int64) (*AttemptCheck, error)
	SubmitQuizAnswers(ctx context.Context, in SubmitInput) (*SubmitResult, error)
	ApproveSubmission(ctx context.Context, submissionID, staffUserID int64) (*SubmissionHeader, error)
	RejectSubmission(ctx context.Context, submissionID, staffUserID int64, reason string) (*RejectResult, error)
	ResetQuizAttempts(ctx context.Context, submissionID, staffUserID int64) (*ResetResult, error)
	GetSubmissionDetails(ctx context.Context, submissionID int64) (*SubmissionDetails, error)
	GetFullSubmissionDetails(ctx context.Context, submissionID int64) (*FullSubmissionDetails, error)
	GetQuizResults(ctx context.Context, courseID, submissionID int64, viewer *auth.User) (*QuizResult, error)
	GetUserQuizHistory(ctx context.Context, courseID, userID int64) ([]HistoryEntry, error)
}

type submitRequest struct {
	Answers   []AnswerInput `json:"answers"`
	TimeTaken int           `json:"time_taken"`
}

type rejectRequest struct {
	RejectionReason string `json:"rejection_reason"`
}

func NewHandler(svc quizService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) SaveQuiz(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	courseID, ok := pathID(w, r, "courseID", "invalid course id")
	if !ok {
		return
	}

	var in SaveQuizInput
	if err := apiresp.DecodeJSON(w, r, &in); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	in.CourseID = courseID
	in.CreatedBy = user.ID

	quizID, err := h.svc.SaveQuiz(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, map[string]interface{}{
		"quiz_id": quizID,
		"message": "quiz saved",
	})
}

func (h *Handler) GetQuiz(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	courseID, ok := pathID(w, r, "courseID", "invalid course id")
	if !ok {
		return
	}

	qz, err := h.svc.GetQuizByCourse(r.Context(), courseID, auth.IsAuthor(user.Role))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if qz == nil {
		apiresp.WriteOK(w, r, http.StatusOK, map[string]interface{}{
			"quiz":    nil,
			"message": "no quiz created yet",
		})
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, map[string]interface{}{"quiz": qz})
}

func (h *Handler) DeleteQuiz(w http.ResponseWriter, r *http.Request) {
	quizID, ok := pathID(w, r, "quizID", "invalid quiz id")
	if !ok {
		return
	}
	if err := h.svc.DeleteQuiz(r.Context(), quizID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, map[string]interface{}{"quiz_id": quizID, "deleted": true})
}

func (h *Handler) Diagnostics(w http.ResponseWriter, r *http.Request) {
	quizID, ok := pathID(w, r, "quizID", "invalid quiz id")
	if !ok {
		return
	}
	d, err := h.svc.Diagnostics(r.Context(), quizID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, d)
}

func (h *Handler) CanAttempt(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	courseID, ok := pathID(w, r, "courseID", "invalid course id")
	if !ok {
		return
	}
	can, err := h.svc.CanAttemptQuiz(r.Context(), courseID, user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, map[string]bool{"can_attempt": can})
}

func (h *Handler) CheckAttempt(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	quizID, ok := pathID(w, r, "quizID", "invalid quiz id")
	if !ok {
		return
	}
	check, err := h.svc.CheckQuizAttempt(r.Context(), quizID, user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, check)
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	quizID, ok := pathID(w, r, "quizID", "invalid quiz id")
	if !ok {
		return
	}
	var req submitRequest
	if err := apiresp.DecodeJSON(w, r, &req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.svc.SubmitQuizAnswers(r.Context(), SubmitInput{
		QuizID:    quizID,
		UserID:    user.ID,
		Answers:   req.Answers,
		TimeTaken: req.TimeTaken,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusCreated, res)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	courseID, ok := pathID(w, r, "courseID", "invalid course id")
	if !ok {
		return
	}
	items, err := h.svc.GetUserQuizHistory(r.Context(), courseID, user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, items)
}

func (h *Handler) Results(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	courseID, ok := pathID(w, r, "courseID", "invalid course id")
	if !ok {
		return
	}
	submissionID, ok := pathID(w, r, "submissionID", "invalid submission id")
	if !ok {
		return
	}
	res, err := h.svc.GetQuizResults(r.Context(), courseID, submissionID, user)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, res)
}

func (h *Handler) SubmissionDetails(w http.ResponseWriter, r *http.Request) {
	submissionID, ok := pathID(w, r, "submissionID", "invalid submission id")
	if !ok {
		return
	}
	d, err := h.svc.GetSubmissionDetails(r.Context(), submissionID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, d)
}

func (h *Handler) FullSubmissionDetails(w http.ResponseWriter, r *http.Request) {
	submissionID, ok := pathID(w, r, "submissionID", "invalid submission id")
	if !ok {
		return
	}
	d, err := h.svc.GetFullSubmissionDetails(r.Context(), submissionID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, d)
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	submissionID, ok := pathID(w, r, "submissionID", "invalid submission id")
	if !ok {
		return
	}
	sub, err := h.svc.ApproveSubmission(r.Context(), submissionID, user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, sub)
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	submissionID, ok := pathID(w, r, "submissionID", "invalid submission id")
	if !ok {
		return
	}
	var req rejectRequest
	if err := apiresp.DecodeJSON(w, r, &req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.svc.RejectSubmission(r.Context(), submissionID, user.ID, req.RejectionReason)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, res)
}

func (h *Handler) ResetAttempts(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	submissionID, ok := pathID(w, r, "submissionID", "invalid submission id")
	if !ok {
		return
	}
	res, err := h.svc.ResetQuizAttempts(r.Context(), submissionID, user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, res)
}

func pathID(w http.ResponseWriter, r *http.Request, key, msg string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	if err != nil || id <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, msg)
		return 0, false
	}
	return id, true
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		fields := make([]apiresp.FieldError, 0, len(verr.Fields))
		for _, f := range verr.Fields {
			fields = append(fields, apiresp.FieldError{Field: f.Field, Message: f.Message})
		}
		apiresp.WriteFieldErrors(w, r, http.StatusBadRequest, verr.Error(), fields)
	case errors.Is(err, ErrQuizNotFound), errors.Is(err, ErrSubmissionNotFound), errors.Is(err, course.ErrCourseNotFound):
		apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrDuplicateAttempt), errors.Is(err, ErrQuizConflict):
		apiresp.WriteError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidAnswer):
		apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrForbidden):
		apiresp.WriteError(w, r, http.StatusForbidden, err.Error())
	default:
		log.Printf("quiz: %s %s: %v", r.Method, r.URL.Path, err)
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
	}
}
