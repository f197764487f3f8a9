package course

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"lmsquiz/internal/app/apiresp"
	"lmsquiz/internal/auth"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc courseService
}

type courseService interface {
	CreateCourse(ctx context.Context, in CreateCourseInput) (*Course, error)
	MarkChapterComplete(ctx context.Context, userID, courseID, chapterID int64) error
	Progress(ctx context.Context, courseID, userID int64) (*Progress, error)
}

type createCourseRequest struct {
	Title    string   `json:"title"`
	Chapters []string `json:"chapters"`
}

func NewHandler(svc courseService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) CreateCourse(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req createCourseRequest
	if err := apiresp.DecodeJSON(w, r, &req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := h.svc.CreateCourse(r.Context(), CreateCourseInput{
		Title:     req.Title,
		Chapters:  req.Chapters,
		CreatedBy: user.ID,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			apiresp.WriteError(w, r, http.StatusBadRequest, "title and at least one chapter are required")
			return
		}
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	apiresp.WriteOK(w, r, http.StatusCreated, c)
}

func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	courseID, err := strconv.ParseInt(chi.URLParam(r, "courseID"), 10, 64)
	if err != nil || courseID <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid course id")
		return
	}

	p, err := h.svc.Progress(r.Context(), courseID, user.ID)
	if err != nil {
		if errors.Is(err, ErrCourseNotFound) {
			apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
			return
		}
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, p)
}

func (h *Handler) CompleteChapter(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	courseID, err := strconv.ParseInt(chi.URLParam(r, "courseID"), 10, 64)
	if err != nil || courseID <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid course id")
		return
	}
	chapterID, err := strconv.ParseInt(chi.URLParam(r, "chapterID"), 10, 64)
	if err != nil || chapterID <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid chapter id")
		return
	}

	if err := h.svc.MarkChapterComplete(r.Context(), user.ID, courseID, chapterID); err != nil {
		if errors.Is(err, ErrChapterNotFound) {
			apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
			return
		}
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, map[string]string{"status": "completed"})
}
