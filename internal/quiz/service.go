package quiz

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"lmsquiz/internal/db"
	"lmsquiz/internal/notify"
)

// ProgressStore is the course-progress collaborator. Every method takes the
// executor so it can join the caller's transaction.
type ProgressStore interface {
	TotalChapters(ctx context.Context, q db.Queryable, courseID int64) (int, error)
	CompletedChapters(ctx context.Context, q db.Queryable, courseID, userID int64) (int, error)
	DeleteCourseProgress(ctx context.Context, q db.Queryable, userID, courseID int64) (int64, error)
	CourseOwner(ctx context.Context, q db.Queryable, courseID int64) (int64, error)
}

type Service struct {
	db       *sql.DB
	progress ProgressStore
	notifier notify.ReviewNotifier
	now      func() time.Time
}

// NewService wires the quiz engine. notifier may be nil.
func NewService(db *sql.DB, progress ProgressStore, notifier notify.ReviewNotifier) *Service {
	return &Service{db: db, progress: progress, notifier: notifier, now: time.Now}
}

func (s *Service) loadSubmissionHeader(ctx context.Context, q db.Queryable, submissionID int64) (*SubmissionHeader, error) {
	var (
		h          SubmissionHeader
		approvedBy sql.NullInt64
		approvedAt sql.NullTime
		reason     sql.NullString
	)
	err := q.QueryRowContext(ctx, `
		SELECT
			s.id,
			s.quiz_id,
			s.user_id,
			s.score,
			s.passed,
			s.total_questions,
			s.correct_answers,
			s.time_taken,
			s.submitted_at,
			s.attempt_number,
			s.approval_status,
			s.approved_by,
			s.approved_at,
			s.rejection_reason,
			u.name,
			u.email,
			q.course_id,
			q.title,
			q.passing_score,
			q.show_results,
			q.show_correct_answers
		FROM quiz_submissions s
		JOIN users u ON u.id = s.user_id
		JOIN quizzes q ON q.id = s.quiz_id
		WHERE s.id = $1
	`, submissionID).Scan(
		&h.ID,
		&h.QuizID,
		&h.UserID,
		&h.Score,
		&h.Passed,
		&h.TotalQuestions,
		&h.CorrectAnswers,
		&h.TimeTaken,
		&h.SubmittedAt,
		&h.AttemptNumber,
		&h.ApprovalStatus,
		&approvedBy,
		&approvedAt,
		&reason,
		&h.UserName,
		&h.UserEmail,
		&h.CourseID,
		&h.QuizTitle,
		&h.PassingScore,
		&h.ShowResults,
		&h.ShowCorrectAnswers,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("load submission: %w", err)
	}
	if approvedBy.Valid {
		h.ApprovedBy = &approvedBy.Int64
	}
	if approvedAt.Valid {
		h.ApprovedAt = &approvedAt.Time
	}
	if reason.Valid {
		h.RejectionReason = &reason.String
	}
	return &h, nil
}

// notifyReview runs after commit. Delivery problems are logged only.
func (s *Service) notifyReview(ctx context.Context, h *SubmissionHeader, outcome, reason string) {
	if s.notifier == nil || h == nil {
		return
	}
	err := s.notifier.NotifyReview(ctx, notify.ReviewNotice{
		SubmissionID: h.ID,
		LearnerName:  h.UserName,
		LearnerEmail: h.UserEmail,
		QuizTitle:    h.QuizTitle,
		Score:        h.Score,
		Outcome:      outcome,
		Reason:       reason,
	})
	if err != nil {
		log.Printf("quiz: review notice for submission %d failed: %v", h.ID, err)
	}
}
