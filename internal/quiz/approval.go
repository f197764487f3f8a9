package quiz

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"lmsquiz/internal/notify"
)

// ApproveSubmission moves a pending submission to approved. Approving an
// already approved submission returns it unchanged.
func (s *Service) ApproveSubmission(ctx context.Context, submissionID, staffUserID int64) (*SubmissionHeader, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin approve tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	h, err := s.loadSubmissionHeader(ctx, tx, submissionID)
	if err != nil {
		return nil, err
	}
	if h.ApprovalStatus == StatusApproved {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit approve noop: %w", err)
		}
		return h, nil
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE quiz_submissions
		SET approval_status = $2,
			approved_by = $3,
			approved_at = $4
		WHERE id = $1
	`, submissionID, StatusApproved, staffUserID, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("approve submission: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrSubmissionNotFound
	}

	h, err = s.loadSubmissionHeader(ctx, tx, submissionID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit approve: %w", err)
	}

	s.notifyReview(ctx, h, notify.OutcomeApproved, "")
	return h, nil
}

// RejectSubmission deletes the submission and its answers, wipes the
// learner's lesson progress for the whole course and appends an audit row.
func (s *Service) RejectSubmission(ctx context.Context, submissionID, staffUserID int64, reason string) (*RejectResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, newValidationError(ErrRejectionReasonRequired, FieldError{
			Field:   "rejection_reason",
			Message: "rejection_reason is required",
		})
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reject tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	h, err := s.loadSubmissionHeader(ctx, tx, submissionID)
	if err != nil {
		return nil, err
	}

	if _, err := deleteSubmission(ctx, tx, submissionID); err != nil {
		return nil, err
	}

	cleared, err := s.progress.DeleteCourseProgress(ctx, tx, h.UserID, h.CourseID)
	if err != nil {
		return nil, err
	}

	out := &RejectResult{
		SubmissionID:    submissionID,
		QuizID:          h.QuizID,
		UserID:          h.UserID,
		CourseID:        h.CourseID,
		ProgressCleared: cleared,
		RejectedAt:      s.now().UTC(),
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO quiz_rejection_log (
			submission_id,
			staff_user_id,
			employee_user_id,
			course_id,
			quiz_id,
			rejection_reason,
			rejected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, submissionID, staffUserID, h.UserID, h.CourseID, h.QuizID, reason, out.RejectedAt); err != nil {
		return nil, fmt.Errorf("insert rejection log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reject: %w", err)
	}

	log.Printf("quiz: submission %d rejected by user %d, cleared %d progress rows", submissionID, staffUserID, cleared)
	s.notifyReview(ctx, h, notify.OutcomeRejected, reason)
	return out, nil
}

// ResetQuizAttempts deletes the submission so the learner may retake the
// quiz. Lesson progress is kept and nothing is logged to the rejection trail.
func (s *Service) ResetQuizAttempts(ctx context.Context, submissionID, staffUserID int64) (*ResetResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reset tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	out := &ResetResult{SubmissionID: submissionID}
	if err := tx.QueryRowContext(ctx, `
		SELECT quiz_id, user_id
		FROM quiz_submissions
		WHERE id = $1
	`, submissionID).Scan(&out.QuizID, &out.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("load submission: %w", err)
	}

	out.AnswersDeleted, err = deleteSubmission(ctx, tx, submissionID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reset: %w", err)
	}
	log.Printf("quiz: attempts reset for submission %d by user %d", submissionID, staffUserID)
	return out, nil
}

// deleteSubmission removes the answers and then the submission row.
func deleteSubmission(ctx context.Context, tx *sql.Tx, submissionID int64) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM quiz_answers WHERE submission_id = $1`, submissionID)
	if err != nil {
		return 0, fmt.Errorf("delete answers: %w", err)
	}
	answers, _ := res.RowsAffected()

	res, err = tx.ExecContext(ctx, `DELETE FROM quiz_submissions WHERE id = $1`, submissionID)
	if err != nil {
		return 0, fmt.Errorf("delete submission: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, ErrSubmissionNotFound
	}
	return answers, nil
}
