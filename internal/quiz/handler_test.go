package quiz

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"lmsquiz/internal/auth"
	"lmsquiz/internal/course"

	"github.com/go-chi/chi/v5"
)

type mockQuizService struct {
	saveQuizFn                 func(ctx context.Context, in SaveQuizInput) (int64, error)
	getQuizByCourseFn          func(ctx context.Context, courseID int64, includeAnswers bool) (*Quiz, error)
	deleteQuizFn               func(ctx context.Context, quizID int64) error
	diagnosticsFn              func(ctx context.Context, quizID int64) (*Diagnostics, error)
	canAttemptQuizFn           func(ctx context.Context, courseID, userID int64) (bool, error)
	checkQuizAttemptFn         func(ctx context.Context, quizID, userID int64) (*AttemptCheck, error)
	submitQuizAnswersFn        func(ctx context.Context, in SubmitInput) (*SubmitResult, error)
	approveSubmissionFn        func(ctx context.Context, submissionID, staffUserID int64) (*SubmissionHeader, error)
	rejectSubmissionFn         func(ctx context.Context, submissionID, staffUserID int64, reason string) (*RejectResult, error)
	resetQuizAttemptsFn        func(ctx context.Context, submissionID, staffUserID int64) (*ResetResult, error)
	getSubmissionDetailsFn     func(ctx context.Context, submissionID int64) (*SubmissionDetails, error)
	getFullSubmissionDetailsFn func(ctx context.Context, submissionID int64) (*FullSubmissionDetails, error)
	getQuizResultsFn           func(ctx context.Context, courseID, submissionID int64, viewer *auth.User) (*QuizResult, error)
	getUserQuizHistoryFn       func(ctx context.Context, courseID, userID int64) ([]HistoryEntry, error)
}

func (m *mockQuizService) SaveQuiz(ctx context.Context, in SaveQuizInput) (int64, error) {
	if m.saveQuizFn == nil {
		return 0, errors.New("not implemented")
	}
	return m.saveQuizFn(ctx, in)
}

func (m *mockQuizService) GetQuizByCourse(ctx context.Context, courseID int64, includeAnswers bool) (*Quiz, error) {
	if m.getQuizByCourseFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.getQuizByCourseFn(ctx, courseID, includeAnswers)
}

func (m *mockQuizService) DeleteQuiz(ctx context.Context, quizID int64) error {
	if m.deleteQuizFn == nil {
		return errors.New("not implemented")
	}
	return m.deleteQuizFn(ctx, quizID)
}

func (m *mockQuizService) Diagnostics(ctx context.Context, quizID int64) (*Diagnostics, error) {
	if m.diagnosticsFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.diagnosticsFn(ctx, quizID)
}

func (m *mockQuizService) CanAttemptQuiz(ctx context.Context, courseID, userID int64) (bool, error) {
	if m.canAttemptQuizFn == nil {
		return false, errors.New("not implemented")
	}
	return m.canAttemptQuizFn(ctx, courseID, userID)
}

func (m *mockQuizService) CheckQuizAttempt(ctx context.Context, quizID, userID int64) (*AttemptCheck, error) {
	if m.checkQuizAttemptFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.checkQuizAttemptFn(ctx, quizID, userID)
}

func (m *mockQuizService) SubmitQuizAnswers(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	if m.submitQuizAnswersFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.submitQuizAnswersFn(ctx, in)
}

func (m *mockQuizService) ApproveSubmission(ctx context.Context, submissionID, staffUserID int64) (*SubmissionHeader, error) {
	if m.approveSubmissionFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.approveSubmissionFn(ctx, submissionID, staffUserID)
}

func (m *mockQuizService) RejectSubmission(ctx context.Context, submissionID, staffUserID int64, reason string) (*RejectResult, error) {
	if m.rejectSubmissionFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.rejectSubmissionFn(ctx, submissionID, staffUserID, reason)
}

func (m *mockQuizService) ResetQuizAttempts(ctx context.Context, submissionID, staffUserID int64) (*ResetResult, error) {
	if m.resetQuizAttemptsFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.resetQuizAttemptsFn(ctx, submissionID, staffUserID)
}

func (m *mockQuizService) GetSubmissionDetails(ctx context.Context, submissionID int64) (*SubmissionDetails, error) {
	if m.getSubmissionDetailsFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.getSubmissionDetailsFn(ctx, submissionID)
}

func (m *mockQuizService) GetFullSubmissionDetails(ctx context.Context, submissionID int64) (*FullSubmissionDetails, error) {
	if m.getFullSubmissionDetailsFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.getFullSubmissionDetailsFn(ctx, submissionID)
}

func (m *mockQuizService) GetQuizResults(ctx context.Context, courseID, submissionID int64, viewer *auth.User) (*QuizResult, error) {
	if m.getQuizResultsFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.getQuizResultsFn(ctx, courseID, submissionID, viewer)
}

func (m *mockQuizService) GetUserQuizHistory(ctx context.Context, courseID, userID int64) ([]HistoryEntry, error) {
	if m.getUserQuizHistoryFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.getUserQuizHistoryFn(ctx, courseID, userID)
}

func withChiParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func withUser(r *http.Request, id int64, role string) *http.Request {
	return r.WithContext(auth.ContextWithUser(r.Context(), &auth.User{ID: id, Role: role}))
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func errorMessage(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, rr)
	e, _ := body["error"].(map[string]interface{})
	msg, _ := e["message"].(string)
	return msg
}

func TestSaveQuizBindsCourseAndAuthor(t *testing.T) {
	var got SaveQuizInput
	h := NewHandler(&mockQuizService{
		saveQuizFn: func(ctx context.Context, in SaveQuizInput) (int64, error) {
			got = in
			return 12, nil
		},
	})

	payload := []byte(`{"title":"Safety","passing_score":70,"questions":[{"question_text":"Q1","options":[{"option_text":"A","is_correct":true},{"option_text":"B"}]}]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/courses/4/quiz", bytes.NewReader(payload))
	req = withChiParam(req, "courseID", "4")
	req = withUser(req, 8, auth.RoleInstructor)
	w := httptest.NewRecorder()

	h.SaveQuiz(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	if got.CourseID != 4 || got.CreatedBy != 8 || got.Title != "Safety" {
		t.Fatalf("unexpected input %+v", got)
	}
	if got.PassingScore == nil || *got.PassingScore != 70 || len(got.Questions) != 1 || !got.Questions[0].Options[0].IsCorrect {
		t.Fatalf("unexpected decoded quiz %+v", got)
	}
	data := decodeBody(t, w)["data"].(map[string]interface{})
	if data["quiz_id"].(float64) != 12 {
		t.Fatalf("unexpected data %+v", data)
	}
}

func TestSaveQuizErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{name: "missing title", err: newValidationError(ErrTitleAndQuestionsRequired), want: http.StatusBadRequest},
		{name: "unknown course", err: course.ErrCourseNotFound, want: http.StatusNotFound},
		{name: "concurrent save", err: ErrQuizConflict, want: http.StatusConflict},
		{name: "storage", err: errors.New("disk full"), want: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(&mockQuizService{
				saveQuizFn: func(ctx context.Context, in SaveQuizInput) (int64, error) { return 0, tc.err },
			})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/courses/4/quiz", bytes.NewReader([]byte(`{}`)))
			req = withChiParam(req, "courseID", "4")
			req = withUser(req, 8, auth.RoleAdmin)
			w := httptest.NewRecorder()

			h.SaveQuiz(w, req)

			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, w.Code)
			}
		})
	}
}

func TestSaveQuizValidationFieldsInEnvelope(t *testing.T) {
	h := NewHandler(&mockQuizService{
		saveQuizFn: func(ctx context.Context, in SaveQuizInput) (int64, error) {
			return 0, newValidationError(errInvalidInput, FieldError{Field: "questions[0].options", Message: "exactly one option must be marked correct"})
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/courses/4/quiz", bytes.NewReader([]byte(`{}`)))
	req = withChiParam(req, "courseID", "4")
	req = withUser(req, 8, auth.RoleAdmin)
	w := httptest.NewRecorder()

	h.SaveQuiz(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	e := decodeBody(t, w)["error"].(map[string]interface{})
	fields, _ := e["fields"].([]interface{})
	if len(fields) != 1 || fields[0].(map[string]interface{})["field"] != "questions[0].options" {
		t.Fatalf("unexpected fields %+v", e)
	}
}

func TestGetQuizAnswerKeyOnlyForAuthors(t *testing.T) {
	cases := []struct {
		role string
		want bool
	}{
		{role: auth.RoleAdmin, want: true},
		{role: auth.RoleInstructor, want: true},
		{role: auth.RoleManager, want: false},
		{role: auth.RoleEmployee, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.role, func(t *testing.T) {
			var gotInclude bool
			h := NewHandler(&mockQuizService{
				getQuizByCourseFn: func(ctx context.Context, courseID int64, includeAnswers bool) (*Quiz, error) {
					gotInclude = includeAnswers
					return &Quiz{ID: 1, CourseID: courseID}, nil
				},
			})
			req := httptest.NewRequest(http.MethodGet, "/api/v1/courses/4/quiz", nil)
			req = withChiParam(req, "courseID", "4")
			req = withUser(req, 1, tc.role)
			w := httptest.NewRecorder()

			h.GetQuiz(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", w.Code)
			}
			if gotInclude != tc.want {
				t.Fatalf("includeAnswers=%v want %v", gotInclude, tc.want)
			}
		})
	}
}

func TestGetQuizNoneYet(t *testing.T) {
	h := NewHandler(&mockQuizService{
		getQuizByCourseFn: func(ctx context.Context, courseID int64, includeAnswers bool) (*Quiz, error) { return nil, nil },
	})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/courses/4/quiz", nil)
	req = withChiParam(req, "courseID", "4")
	req = withUser(req, 1, auth.RoleEmployee)
	w := httptest.NewRecorder()

	h.GetQuiz(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	data := decodeBody(t, w)["data"].(map[string]interface{})
	if data["quiz"] != nil || data["message"] != "no quiz created yet" {
		t.Fatalf("unexpected data %+v", data)
	}
}

func TestSubmitUsesPrincipal(t *testing.T) {
	var got SubmitInput
	h := NewHandler(&mockQuizService{
		submitQuizAnswersFn: func(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
			got = in
			return &SubmitResult{SubmissionID: 3, Score: 50, TotalQuestions: 2, CorrectAnswers: 1}, nil
		},
	})
	payload := []byte(`{"answers":[{"question_id":1,"selected_option_id":11}],"time_taken":42}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/quizzes/9/submit", bytes.NewReader(payload))
	req = withChiParam(req, "quizID", "9")
	req = withUser(req, 15, auth.RoleEmployee)
	w := httptest.NewRecorder()

	h.Submit(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", w.Code, w.Body.String())
	}
	if got.QuizID != 9 || got.UserID != 15 || got.TimeTaken != 42 || len(got.Answers) != 1 || got.Answers[0].SelectedOptionID != 11 {
		t.Fatalf("unexpected submit input %+v", got)
	}
}

func TestSubmitErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
		msg  string
	}{
		{name: "second attempt", err: ErrDuplicateAttempt, want: http.StatusConflict, msg: "you have already attempted this quiz"},
		{name: "foreign option", err: ErrInvalidAnswer, want: http.StatusBadRequest},
		{name: "inactive quiz", err: ErrQuizNotFound, want: http.StatusNotFound},
		{name: "negative time", err: newValidationError(errInvalidInput), want: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(&mockQuizService{
				submitQuizAnswersFn: func(ctx context.Context, in SubmitInput) (*SubmitResult, error) { return nil, tc.err },
			})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/quizzes/9/submit", bytes.NewReader([]byte(`{"answers":[]}`)))
			req = withChiParam(req, "quizID", "9")
			req = withUser(req, 15, auth.RoleEmployee)
			w := httptest.NewRecorder()

			h.Submit(w, req)

			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, w.Code)
			}
			if tc.msg != "" && errorMessage(t, w) != tc.msg {
				t.Fatalf("unexpected message %q", errorMessage(t, w))
			}
		})
	}
}

func TestSubmitRejectsBadQuizID(t *testing.T) {
	called := false
	h := NewHandler(&mockQuizService{
		submitQuizAnswersFn: func(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
			called = true
			return nil, nil
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/quizzes/abc/submit", nil)
	req = withChiParam(req, "quizID", "abc")
	req = withUser(req, 15, auth.RoleEmployee)
	w := httptest.NewRecorder()

	h.Submit(w, req)

	if w.Code != http.StatusBadRequest || called {
		t.Fatalf("expected 400 without service call, got %d called=%v", w.Code, called)
	}
}

func TestApproveNotFound(t *testing.T) {
	h := NewHandler(&mockQuizService{
		approveSubmissionFn: func(ctx context.Context, submissionID, staffUserID int64) (*SubmissionHeader, error) {
			return nil, ErrSubmissionNotFound
		},
	})
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/submissions/77/approve", nil)
	req = withChiParam(req, "submissionID", "77")
	req = withUser(req, 2, auth.RoleManager)
	w := httptest.NewRecorder()

	h.Approve(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestApprovePassesStaffID(t *testing.T) {
	var gotStaff int64
	h := NewHandler(&mockQuizService{
		approveSubmissionFn: func(ctx context.Context, submissionID, staffUserID int64) (*SubmissionHeader, error) {
			gotStaff = staffUserID
			return &SubmissionHeader{Submission: Submission{ID: submissionID, ApprovalStatus: StatusApproved}}, nil
		},
	})
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/submissions/77/approve", nil)
	req = withChiParam(req, "submissionID", "77")
	req = withUser(req, 2, auth.RoleManager)
	w := httptest.NewRecorder()

	h.Approve(w, req)

	if w.Code != http.StatusOK || gotStaff != 2 {
		t.Fatalf("expected 200 with staff 2, got %d staff=%d", w.Code, gotStaff)
	}
}

func TestRejectRequiresReason(t *testing.T) {
	var gotReason string
	h := NewHandler(&mockQuizService{
		rejectSubmissionFn: func(ctx context.Context, submissionID, staffUserID int64, reason string) (*RejectResult, error) {
			gotReason = reason
			if reason == "" {
				return nil, newValidationError(ErrRejectionReasonRequired, FieldError{Field: "rejection_reason", Message: "rejection_reason is required"})
			}
			return &RejectResult{SubmissionID: submissionID}, nil
		},
	})

	call := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPatch, "/api/v1/submissions/5/reject", bytes.NewReader([]byte(body)))
		req = withChiParam(req, "submissionID", "5")
		req = withUser(req, 3, auth.RoleInstructor)
		w := httptest.NewRecorder()
		h.Reject(w, req)
		return w
	}

	if w := call(`{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if w := call(`{"rejection_reason":"insufficient understanding"}`); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if gotReason != "insufficient understanding" {
		t.Fatalf("unexpected reason %q", gotReason)
	}
}

func TestResetAttemptsNotFound(t *testing.T) {
	h := NewHandler(&mockQuizService{
		resetQuizAttemptsFn: func(ctx context.Context, submissionID, staffUserID int64) (*ResetResult, error) {
			return nil, ErrSubmissionNotFound
		},
	})
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/submissions/5/reset-attempts", nil)
	req = withChiParam(req, "submissionID", "5")
	req = withUser(req, 3, auth.RoleAdmin)
	w := httptest.NewRecorder()

	h.ResetAttempts(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestResultsForbiddenForOtherLearner(t *testing.T) {
	h := NewHandler(&mockQuizService{
		getQuizResultsFn: func(ctx context.Context, courseID, submissionID int64, viewer *auth.User) (*QuizResult, error) {
			if viewer.ID != 1 {
				t.Fatalf("viewer not forwarded: %+v", viewer)
			}
			return nil, ErrForbidden
		},
	})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/courses/4/quiz/results/10", nil)
	req = withChiParam(req, "courseID", "4")
	req = withChiParam(req, "submissionID", "10")
	req = withUser(req, 1, auth.RoleEmployee)
	w := httptest.NewRecorder()

	h.Results(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestCheckAttemptOK(t *testing.T) {
	h := NewHandler(&mockQuizService{
		checkQuizAttemptFn: func(ctx context.Context, quizID, userID int64) (*AttemptCheck, error) {
			return &AttemptCheck{CanAttempt: false, AttemptCount: 1, Message: ErrDuplicateAttempt.Error()}, nil
		},
	})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/quizzes/9/check-attempt", nil)
	req = withChiParam(req, "quizID", "9")
	req = withUser(req, 1, auth.RoleEmployee)
	w := httptest.NewRecorder()

	h.CheckAttempt(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	data := decodeBody(t, w)["data"].(map[string]interface{})
	if data["can_attempt"] != false || data["attempt_count"].(float64) != 1 {
		t.Fatalf("unexpected data %+v", data)
	}
}

func TestMissingPrincipalIsUnauthorized(t *testing.T) {
	h := NewHandler(&mockQuizService{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/courses/4/quiz/can-attempt", nil)
	req = withChiParam(req, "courseID", "4")
	w := httptest.NewRecorder()

	h.CanAttempt(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}
