package report

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"lmsquiz/internal/app/apiresp"
	"lmsquiz/internal/auth"
	"lmsquiz/internal/course"

	"github.com/go-chi/chi/v5"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	svc reportService
}

type reportService interface {
	ListSubmissions(ctx context.Context, viewer *auth.User, f Filter) ([]SubmissionRow, error)
	SummaryByQuiz(ctx context.Context, viewer *auth.User, quizID int64) (*QuizSummary, error)
	ExportSubmissionsExcel(ctx context.Context, viewer *auth.User, f Filter) ([]byte, error)
}

func NewHandler(svc reportService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) CourseSubmissions(w http.ResponseWriter, r *http.Request) {
	courseID, ok := courseParam(w, r)
	if !ok {
		return
	}
	h.list(w, r, Filter{CourseID: courseID, Status: r.URL.Query().Get("status")})
}

func (h *Handler) AllSubmissions(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, Filter{Status: r.URL.Query().Get("status")})
}

func (h *Handler) ExportCourseSubmissions(w http.ResponseWriter, r *http.Request) {
	courseID, ok := courseParam(w, r)
	if !ok {
		return
	}
	h.export(w, r, Filter{CourseID: courseID, Status: r.URL.Query().Get("status")}, fmt.Sprintf("course-%d-submissions.xlsx", courseID))
}

func (h *Handler) ExportAllSubmissions(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, Filter{Status: r.URL.Query().Get("status")}, "quiz-submissions.xlsx")
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	quizID, err := strconv.ParseInt(chi.URLParam(r, "quizID"), 10, 64)
	if err != nil || quizID <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid quiz id")
		return
	}
	out, err := h.svc.SummaryByQuiz(r.Context(), user, quizID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, out)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, f Filter) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	items, err := h.svc.ListSubmissions(r.Context(), user, f)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, map[string]any{
		"submissions": items,
		"total":       len(items),
	})
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request, f Filter, filename string) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	body, err := h.svc.ExportSubmissionsExcel(r.Context(), user, f)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteFile(w, xlsxContentType, filename, body)
}

func courseParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "courseID"), 10, 64)
	if err != nil || id <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid course id")
		return 0, false
	}
	return id, true
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrForbidden):
		apiresp.WriteError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrQuizNotFound), errors.Is(err, course.ErrCourseNotFound):
		apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidStatus):
		apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
	default:
		log.Printf("report: %s %s: %v", r.Method, r.URL.Path, err)
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
	}
}
