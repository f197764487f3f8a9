package quiz

import (
	"context"
	"fmt"
)

// CanAttemptQuiz reports whether the learner finished every chapter of the
// course. A course without chapters is never eligible.
func (s *Service) CanAttemptQuiz(ctx context.Context, courseID, userID int64) (bool, error) {
	total, err := s.progress.TotalChapters(ctx, s.db, courseID)
	if err != nil {
		return false, err
	}
	if total == 0 {
		return false, nil
	}
	completed, err := s.progress.CompletedChapters(ctx, s.db, courseID, userID)
	if err != nil {
		return false, err
	}
	return completed == total, nil
}

// CheckQuizAttempt is the attempt-based gate also enforced by SubmitQuizAnswers.
func (s *Service) CheckQuizAttempt(ctx context.Context, quizID, userID int64) (*AttemptCheck, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM quiz_submissions
		WHERE quiz_id = $1 AND user_id = $2
	`, quizID, userID).Scan(&count); err != nil {
		return nil, fmt.Errorf("count quiz attempts: %w", err)
	}

	out := &AttemptCheck{CanAttempt: count == 0, AttemptCount: count}
	if out.CanAttempt {
		out.Message = "you can attempt this quiz"
	} else {
		out.Message = ErrDuplicateAttempt.Error()
	}
	return out, nil
}
