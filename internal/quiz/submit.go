package quiz

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"lmsquiz/internal/db"
)

// SubmitQuizAnswers grades and stores the learner's single attempt. All reads
// and writes share one transaction, so a failure leaves nothing behind.
func (s *Service) SubmitQuizAnswers(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	if in.QuizID <= 0 || in.UserID <= 0 {
		return nil, newValidationError(errInvalidInput)
	}
	if in.TimeTaken < 0 {
		return nil, newValidationError(errInvalidInput, FieldError{Field: "time_taken", Message: "time_taken must not be negative"})
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin submit tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var passingScore int
	if err := tx.QueryRowContext(ctx, `
		SELECT passing_score
		FROM quizzes
		WHERE id = $1 AND is_active = TRUE
	`, in.QuizID).Scan(&passingScore); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("load quiz: %w", err)
	}

	var prior int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM quiz_submissions
		WHERE quiz_id = $1 AND user_id = $2
	`, in.QuizID, in.UserID).Scan(&prior); err != nil {
		return nil, fmt.Errorf("count quiz attempts: %w", err)
	}
	if prior > 0 {
		return nil, ErrDuplicateAttempt
	}

	var totalQuestions int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM quiz_questions
		WHERE quiz_id = $1
	`, in.QuizID).Scan(&totalQuestions); err != nil {
		return nil, fmt.Errorf("count quiz questions: %w", err)
	}

	options, err := loadOptionRefs(ctx, tx, in.QuizID)
	if err != nil {
		return nil, err
	}
	graded, correct, err := gradeAnswers(in.Answers, options)
	if err != nil {
		return nil, err
	}
	score := ComputeScore(correct, totalQuestions, passingScore)

	out := &SubmitResult{
		Score:          score.Percent,
		Passed:         score.Passed,
		CorrectAnswers: score.CorrectAnswers,
		TotalQuestions: score.TotalQuestions,
		TimeTaken:      in.TimeTaken,
		AttemptNumber:  prior + 1,
	}
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO quiz_submissions (
			quiz_id,
			user_id,
			score,
			passed,
			total_questions,
			correct_answers,
			time_taken,
			submitted_at,
			attempt_number,
			approval_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, in.QuizID, in.UserID, out.Score, out.Passed, out.TotalQuestions, out.CorrectAnswers,
		out.TimeTaken, s.now().UTC(), out.AttemptNumber, StatusPending).Scan(&out.SubmissionID); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrDuplicateAttempt
		}
		return nil, fmt.Errorf("insert submission: %w", err)
	}

	for _, a := range graded {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO quiz_answers (
				submission_id,
				question_id,
				selected_option_id,
				is_correct,
				question_text,
				selected_option_text
			) VALUES ($1, $2, $3, $4, $5, $6)
		`, out.SubmissionID, a.QuestionID, a.SelectedOptionID, a.IsCorrect, a.QuestionText, a.SelectedOptionText); err != nil {
			return nil, fmt.Errorf("insert answer for question %d: %w", a.QuestionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrDuplicateAttempt
		}
		return nil, fmt.Errorf("commit submit: %w", err)
	}
	return out, nil
}

func loadOptionRefs(ctx context.Context, q db.Queryable, quizID int64) (map[int64]optionRef, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT
			qo.id,
			qo.question_id,
			qq.question_text,
			qo.option_text,
			qo.is_correct
		FROM quiz_options qo
		JOIN quiz_questions qq ON qq.id = qo.question_id
		WHERE qq.quiz_id = $1
	`, quizID)
	if err != nil {
		return nil, fmt.Errorf("query quiz options: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]optionRef)
	for rows.Next() {
		var (
			id  int64
			ref optionRef
		)
		if err := rows.Scan(&id, &ref.QuestionID, &ref.QuestionText, &ref.OptionText, &ref.IsCorrect); err != nil {
			return nil, fmt.Errorf("scan quiz option: %w", err)
		}
		out[id] = ref
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quiz options: %w", err)
	}
	return out, nil
}
