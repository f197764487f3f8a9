package quiz

import (
	"context"
	"database/sql"
	"fmt"

	"lmsquiz/internal/auth"
	"lmsquiz/internal/db"
)

// GetSubmissionDetails returns the submission with its answer snapshots and,
// where the question still exists, the text of its correct option.
func (s *Service) GetSubmissionDetails(ctx context.Context, submissionID int64) (*SubmissionDetails, error) {
	h, err := s.loadSubmissionHeader(ctx, s.db, submissionID)
	if err != nil {
		return nil, err
	}
	answers, err := loadAnswers(ctx, s.db, submissionID)
	if err != nil {
		return nil, err
	}
	return &SubmissionDetails{SubmissionHeader: *h, Answers: answers}, nil
}

// GetFullSubmissionDetails lays every question of the quiz, with its full
// option set, next to what the learner picked.
func (s *Service) GetFullSubmissionDetails(ctx context.Context, submissionID int64) (*FullSubmissionDetails, error) {
	h, err := s.loadSubmissionHeader(ctx, s.db, submissionID)
	if err != nil {
		return nil, err
	}
	questions, err := loadQuestions(ctx, s.db, h.QuizID)
	if err != nil {
		return nil, err
	}
	answers, err := loadAnswers(ctx, s.db, submissionID)
	if err != nil {
		return nil, err
	}

	byQuestion := make(map[int64]Answer, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a
	}

	out := &FullSubmissionDetails{
		SubmissionHeader: *h,
		Questions:        make([]ReviewQuestion, 0, len(questions)),
	}
	for _, q := range questions {
		rq := ReviewQuestion{
			ID:          q.ID,
			Text:        q.Text,
			Explanation: q.Explanation,
			Order:       q.Order,
			Options:     make([]ReviewOption, 0, len(q.Options)),
		}
		a, answered := byQuestion[q.ID]
		for _, o := range q.Options {
			rq.Options = append(rq.Options, ReviewOption{
				ID:         o.ID,
				Text:       o.Text,
				IsCorrect:  o.IsCorrect != nil && *o.IsCorrect,
				IsSelected: answered && a.SelectedOptionID == o.ID,
			})
		}
		if answered {
			rq.StudentAnswer = &StudentAnswer{
				SelectedOptionID:   a.SelectedOptionID,
				SelectedOptionText: a.SelectedOptionText,
				IsCorrect:          a.IsCorrect,
			}
			delete(byQuestion, q.ID)
		}
		out.Questions = append(out.Questions, rq)
	}

	for _, a := range answers {
		if _, left := byQuestion[a.QuestionID]; left {
			out.UnmatchedAnswers = append(out.UnmatchedAnswers, a)
		}
	}
	return out, nil
}

// GetQuizResults is the learner-facing view of a submission. Learners only
// see their own, and the quiz's display flags decide how much they see.
func (s *Service) GetQuizResults(ctx context.Context, courseID, submissionID int64, viewer *auth.User) (*QuizResult, error) {
	if viewer == nil {
		return nil, ErrForbidden
	}
	d, err := s.GetSubmissionDetails(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if d.CourseID != courseID {
		return nil, ErrSubmissionNotFound
	}

	staff := auth.IsStaff(viewer.Role)
	if !staff && d.UserID != viewer.ID {
		return nil, ErrForbidden
	}

	showAnswers, showCorrect := resultVisibility(d.ShowResults, d.ShowCorrectAnswers, staff)
	out := &QuizResult{SubmissionHeader: d.SubmissionHeader, AnswersHidden: !showAnswers}
	if showAnswers {
		out.Answers = d.Answers
		if !showCorrect {
			for i := range out.Answers {
				out.Answers[i].CorrectOptionText = nil
			}
		}
	}
	return out, nil
}

// resultVisibility applies the quiz display flags. Staff always see everything.
func resultVisibility(showResults, showCorrectAnswers, staff bool) (answers, correct bool) {
	if staff {
		return true, true
	}
	if !showResults {
		return false, false
	}
	return true, showCorrectAnswers
}

// GetUserQuizHistory lists the learner's submissions in the course, newest first.
func (s *Service) GetUserQuizHistory(ctx context.Context, courseID, userID int64) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			s.id,
			s.quiz_id,
			q.title,
			s.score,
			s.passed,
			s.correct_answers,
			s.total_questions,
			s.time_taken,
			s.submitted_at,
			s.attempt_number,
			s.approval_status
		FROM quiz_submissions s
		JOIN quizzes q ON q.id = s.quiz_id
		WHERE q.course_id = $1 AND s.user_id = $2
		ORDER BY s.submitted_at DESC, s.id DESC
	`, courseID, userID)
	if err != nil {
		return nil, fmt.Errorf("query quiz history: %w", err)
	}
	defer rows.Close()

	out := make([]HistoryEntry, 0)
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(
			&e.SubmissionID,
			&e.QuizID,
			&e.QuizTitle,
			&e.Score,
			&e.Passed,
			&e.CorrectAnswers,
			&e.TotalQuestions,
			&e.TimeTaken,
			&e.SubmittedAt,
			&e.AttemptNumber,
			&e.ApprovalStatus,
		); err != nil {
			return nil, fmt.Errorf("scan quiz history: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quiz history: %w", err)
	}
	return out, nil
}

func loadAnswers(ctx context.Context, q db.Queryable, submissionID int64) ([]Answer, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT
			a.id,
			a.question_id,
			a.selected_option_id,
			a.is_correct,
			a.question_text,
			a.selected_option_text,
			(
				SELECT qo.option_text
				FROM quiz_options qo
				WHERE qo.question_id = a.question_id AND qo.is_correct = TRUE
				ORDER BY qo.option_order ASC
				LIMIT 1
			) AS correct_option_text
		FROM quiz_answers a
		WHERE a.submission_id = $1
		ORDER BY a.id ASC
	`, submissionID)
	if err != nil {
		return nil, fmt.Errorf("query answers: %w", err)
	}
	defer rows.Close()

	out := make([]Answer, 0)
	for rows.Next() {
		var (
			a       Answer
			correct sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.QuestionID, &a.SelectedOptionID, &a.IsCorrect, &a.QuestionText, &a.SelectedOptionText, &correct); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		if correct.Valid {
			a.CorrectOptionText = &correct.String
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate answers: %w", err)
	}
	return out, nil
}
