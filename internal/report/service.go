package report

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"lmsquiz/internal/auth"
	"lmsquiz/internal/db"

	"github.com/xuri/excelize/v2"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrQuizNotFound  = errors.New("quiz not found")
	ErrInvalidStatus = errors.New("invalid approval status")
)

const defaultListLimit = 500

type ownerLookup interface {
	CourseOwner(ctx context.Context, q db.Queryable, courseID int64) (int64, error)
}

type Service struct {
	db            *sql.DB
	courses       ownerLookup
	maxExportRows int
}

// Filter narrows a submission listing. A zero CourseID means every course.
type Filter struct {
	CourseID int64
	Status   string
}

type SubmissionRow struct {
	SubmissionID   int64      `json:"submission_id"`
	QuizID         int64      `json:"quiz_id"`
	QuizTitle      string     `json:"quiz_title"`
	CourseID       int64      `json:"course_id"`
	CourseTitle    string     `json:"course_title"`
	UserID         int64      `json:"user_id"`
	UserName       string     `json:"user_name"`
	UserEmail      string     `json:"user_email"`
	Score          float64    `json:"score"`
	Passed         bool       `json:"passed"`
	CorrectAnswers int        `json:"correct_answers"`
	TotalQuestions int        `json:"total_questions"`
	TimeTaken      int        `json:"time_taken"`
	AttemptNumber  int        `json:"attempt_number"`
	SubmittedAt    time.Time  `json:"submitted_at"`
	ApprovalStatus string     `json:"approval_status"`
	ApprovedBy     *int64     `json:"approved_by,omitempty"`
	ApprovedAt     *time.Time `json:"approved_at,omitempty"`
}

type QuizSummary struct {
	QuizID       int64   `json:"quiz_id"`
	CourseID     int64   `json:"course_id"`
	Participants int     `json:"participants"`
	AverageScore float64 `json:"average_score"`
	HighestScore float64 `json:"highest_score"`
	LowestScore  float64 `json:"lowest_score"`
	Passed       int     `json:"passed"`
	Approved     int     `json:"approved"`
	Pending      int     `json:"pending"`
}

func NewService(db *sql.DB, courses ownerLookup, maxExportRows int) *Service {
	if maxExportRows <= 0 {
		maxExportRows = 10000
	}
	return &Service{db: db, courses: courses, maxExportRows: maxExportRows}
}

// Authorize applies the listing rule: the cross-course view is admin only,
// a single course is open to staff, and instructors must own that course.
func (s *Service) Authorize(ctx context.Context, viewer *auth.User, courseID int64) error {
	if viewer == nil || !auth.IsStaff(viewer.Role) {
		return ErrForbidden
	}
	if courseID == 0 {
		if viewer.Role != auth.RoleAdmin {
			return ErrForbidden
		}
		return nil
	}
	owner, err := s.courses.CourseOwner(ctx, s.db, courseID)
	if err != nil {
		return err
	}
	if viewer.Role == auth.RoleInstructor && owner != viewer.ID {
		return ErrForbidden
	}
	return nil
}

func (s *Service) ListSubmissions(ctx context.Context, viewer *auth.User, f Filter) ([]SubmissionRow, error) {
	if err := s.Authorize(ctx, viewer, f.CourseID); err != nil {
		return nil, err
	}
	return s.listSubmissions(ctx, f, defaultListLimit)
}

func (s *Service) listSubmissions(ctx context.Context, f Filter, limit int) ([]SubmissionRow, error) {
	status := strings.ToLower(strings.TrimSpace(f.Status))
	switch status {
	case "", "pending", "approved":
	default:
		return nil, ErrInvalidStatus
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			s.id,
			s.quiz_id,
			q.title,
			q.course_id,
			c.title,
			s.user_id,
			u.name,
			u.email,
			s.score,
			s.passed,
			s.correct_answers,
			s.total_questions,
			s.time_taken,
			s.attempt_number,
			s.submitted_at,
			s.approval_status,
			s.approved_by,
			s.approved_at
		FROM quiz_submissions s
		JOIN quizzes q ON q.id = s.quiz_id
		JOIN courses c ON c.id = q.course_id
		JOIN users u ON u.id = s.user_id
		WHERE ($1 = 0 OR q.course_id = $1)
		  AND ($2 = '' OR s.approval_status = $2)
		ORDER BY s.submitted_at DESC, s.id DESC
		LIMIT $3
	`, f.CourseID, status, limit)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	out := make([]SubmissionRow, 0)
	for rows.Next() {
		var (
			it         SubmissionRow
			approvedBy sql.NullInt64
			approvedAt sql.NullTime
		)
		if err := rows.Scan(
			&it.SubmissionID,
			&it.QuizID,
			&it.QuizTitle,
			&it.CourseID,
			&it.CourseTitle,
			&it.UserID,
			&it.UserName,
			&it.UserEmail,
			&it.Score,
			&it.Passed,
			&it.CorrectAnswers,
			&it.TotalQuestions,
			&it.TimeTaken,
			&it.AttemptNumber,
			&it.SubmittedAt,
			&it.ApprovalStatus,
			&approvedBy,
			&approvedAt,
		); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		if approvedBy.Valid {
			v := approvedBy.Int64
			it.ApprovedBy = &v
		}
		if approvedAt.Valid {
			v := approvedAt.Time
			it.ApprovedAt = &v
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return out, nil
}

// SummaryByQuiz aggregates every submission of the quiz, including those
// made before it was soft deleted.
func (s *Service) SummaryByQuiz(ctx context.Context, viewer *auth.User, quizID int64) (*QuizSummary, error) {
	out := &QuizSummary{QuizID: quizID}
	if err := s.db.QueryRowContext(ctx, `SELECT course_id FROM quizzes WHERE id = $1`, quizID).Scan(&out.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("load quiz course: %w", err)
	}
	if err := s.Authorize(ctx, viewer, out.CourseID); err != nil {
		return nil, err
	}

	if err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(AVG(score), 0),
			COALESCE(MAX(score), 0),
			COALESCE(MIN(score), 0),
			COALESCE(SUM(CASE WHEN passed THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN approval_status = 'approved' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN approval_status = 'pending' THEN 1 ELSE 0 END), 0)
		FROM quiz_submissions
		WHERE quiz_id = $1
	`, quizID).Scan(
		&out.Participants,
		&out.AverageScore,
		&out.HighestScore,
		&out.LowestScore,
		&out.Passed,
		&out.Approved,
		&out.Pending,
	); err != nil {
		return nil, fmt.Errorf("summarize quiz: %w", err)
	}
	out.AverageScore = math.Round(out.AverageScore*100) / 100
	return out, nil
}

// ExportSubmissionsExcel renders the listing as a single-sheet workbook,
// capped at the configured row limit.
func (s *Service) ExportSubmissionsExcel(ctx context.Context, viewer *auth.User, f Filter) ([]byte, error) {
	if err := s.Authorize(ctx, viewer, f.CourseID); err != nil {
		return nil, err
	}
	items, err := s.listSubmissions(ctx, f, s.maxExportRows)
	if err != nil {
		return nil, err
	}

	x := excelize.NewFile()
	defer func() { _ = x.Close() }()
	sheet := x.GetSheetName(0)
	headers := []string{
		"submission_id", "course", "quiz", "learner", "email",
		"score", "passed", "correct_answers", "total_questions",
		"time_taken", "submitted_at", "approval_status", "approved_at",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = x.SetCellValue(sheet, cell, h)
	}
	for i, it := range items {
		row := i + 2
		approvedAt := ""
		if it.ApprovedAt != nil {
			approvedAt = it.ApprovedAt.UTC().Format("2006-01-02 15:04:05")
		}
		values := []any{
			it.SubmissionID,
			it.CourseTitle,
			it.QuizTitle,
			it.UserName,
			it.UserEmail,
			it.Score,
			it.Passed,
			it.CorrectAnswers,
			it.TotalQuestions,
			it.TimeTaken,
			it.SubmittedAt.UTC().Format("2006-01-02 15:04:05"),
			it.ApprovalStatus,
			approvedAt,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = x.SetCellValue(sheet, cell, v)
		}
	}
	_ = x.SetColWidth(sheet, "A", "M", 20)

	var buf bytes.Buffer
	if err := x.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}
