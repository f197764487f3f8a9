package quiz

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"lmsquiz/internal/db"
)

// SaveQuiz creates the course's quiz or, when an active one exists, replaces
// its whole definition in place. Questions and options are always deleted and
// reinserted; submissions are never touched.
func (s *Service) SaveQuiz(ctx context.Context, in SaveQuizInput) (int64, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" || len(in.Questions) == 0 {
		return 0, newValidationError(ErrTitleAndQuestionsRequired)
	}
	if in.CourseID <= 0 || in.CreatedBy <= 0 {
		return 0, newValidationError(errInvalidInput)
	}
	if err := checkStruct(in); err != nil {
		return 0, err
	}
	if err := checkCorrectOptions(in.Questions); err != nil {
		return 0, err
	}

	passingScore := defaultPassingScore
	if in.PassingScore != nil {
		passingScore = *in.PassingScore
	}
	showResults := true
	if in.ShowResults != nil {
		showResults = *in.ShowResults
	}
	showCorrect := true
	if in.ShowCorrectAnswers != nil {
		showCorrect = *in.ShowCorrectAnswers
	}
	description := trimmedOrNil(in.Description)
	now := s.now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin save quiz tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := s.progress.CourseOwner(ctx, tx, in.CourseID); err != nil {
		return 0, err
	}

	var quizID int64
	err = tx.QueryRowContext(ctx, `
		SELECT id
		FROM quizzes
		WHERE course_id = $1 AND is_active = TRUE
	`, in.CourseID).Scan(&quizID)
	switch {
	case err == nil:
		if _, err := tx.ExecContext(ctx, `
			UPDATE quizzes
			SET title = $2,
				description = $3,
				passing_score = $4,
				time_limit = $5,
				show_results = $6,
				show_correct_answers = $7,
				updated_at = $8
			WHERE id = $1
		`, quizID, in.Title, description, passingScore, in.TimeLimit, showResults, showCorrect, now); err != nil {
			return 0, fmt.Errorf("update quiz: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM quiz_options
			WHERE question_id IN (SELECT id FROM quiz_questions WHERE quiz_id = $1)
		`, quizID); err != nil {
			return 0, fmt.Errorf("clear quiz options: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM quiz_questions WHERE quiz_id = $1`, quizID); err != nil {
			return 0, fmt.Errorf("clear quiz questions: %w", err)
		}
	case errors.Is(err, sql.ErrNoRows):
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO quizzes (
				course_id,
				title,
				description,
				passing_score,
				time_limit,
				show_results,
				show_correct_answers,
				created_by,
				is_active,
				created_at,
				updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, $9, $9)
			RETURNING id
		`, in.CourseID, in.Title, description, passingScore, in.TimeLimit, showResults, showCorrect, in.CreatedBy, now).Scan(&quizID); err != nil {
			if db.IsUniqueViolation(err) {
				return 0, ErrQuizConflict
			}
			return 0, fmt.Errorf("insert quiz: %w", err)
		}
	default:
		return 0, fmt.Errorf("load active quiz: %w", err)
	}

	if err := insertQuestions(ctx, tx, quizID, in.Questions); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		if db.IsUniqueViolation(err) {
			return 0, ErrQuizConflict
		}
		return 0, fmt.Errorf("commit save quiz: %w", err)
	}
	return quizID, nil
}

func insertQuestions(ctx context.Context, tx *sql.Tx, quizID int64, questions []QuestionInput) error {
	for i, q := range questions {
		var questionID int64
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO quiz_questions (quiz_id, question_text, explanation, question_order)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, quizID, strings.TrimSpace(q.Text), trimmedOrNil(q.Explanation), i+1).Scan(&questionID); err != nil {
			return fmt.Errorf("insert question %d: %w", i+1, err)
		}
		for j, o := range q.Options {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO quiz_options (question_id, option_text, is_correct, option_order)
				VALUES ($1, $2, $3, $4)
			`, questionID, strings.TrimSpace(o.Text), o.IsCorrect, j+1); err != nil {
				return fmt.Errorf("insert option %d of question %d: %w", j+1, i+1, err)
			}
		}
	}
	return nil
}

func checkCorrectOptions(questions []QuestionInput) error {
	var fields []FieldError
	for i, q := range questions {
		correct := 0
		for _, o := range q.Options {
			if o.IsCorrect {
				correct++
			}
		}
		if correct != 1 {
			fields = append(fields, FieldError{
				Field:   fmt.Sprintf("questions[%d].options", i),
				Message: "exactly one option must be marked correct",
			})
		}
	}
	if len(fields) > 0 {
		return newValidationError(errInvalidInput, fields...)
	}
	return nil
}

// GetQuizByCourse returns the active quiz of the course, or nil when none
// exists. The answer key is only filled when includeAnswers is set.
func (s *Service) GetQuizByCourse(ctx context.Context, courseID int64, includeAnswers bool) (*Quiz, error) {
	var (
		qz          Quiz
		description sql.NullString
		timeLimit   sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT
			id,
			course_id,
			title,
			description,
			passing_score,
			time_limit,
			show_results,
			show_correct_answers,
			created_by,
			is_active,
			created_at,
			updated_at
		FROM quizzes
		WHERE course_id = $1 AND is_active = TRUE
	`, courseID).Scan(
		&qz.ID,
		&qz.CourseID,
		&qz.Title,
		&description,
		&qz.PassingScore,
		&timeLimit,
		&qz.ShowResults,
		&qz.ShowCorrectAnswers,
		&qz.CreatedBy,
		&qz.IsActive,
		&qz.CreatedAt,
		&qz.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load quiz by course: %w", err)
	}
	if description.Valid {
		qz.Description = &description.String
	}
	if timeLimit.Valid {
		v := int(timeLimit.Int64)
		qz.TimeLimit = &v
	}

	questions, err := loadQuestions(ctx, s.db, qz.ID)
	if err != nil {
		return nil, err
	}
	if !includeAnswers {
		for i := range questions {
			for j := range questions[i].Options {
				questions[i].Options[j].IsCorrect = nil
			}
		}
	}
	qz.Questions = questions
	return &qz, nil
}

// loadQuestions returns the quiz's questions with their options, both in
// presentation order.
func loadQuestions(ctx context.Context, q db.Queryable, quizID int64) ([]Question, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT
			qq.id,
			qq.question_text,
			qq.explanation,
			qq.question_order,
			qo.id,
			qo.option_text,
			qo.is_correct,
			qo.option_order
		FROM quiz_questions qq
		LEFT JOIN quiz_options qo ON qo.question_id = qq.id
		WHERE qq.quiz_id = $1
		ORDER BY qq.question_order ASC, qo.option_order ASC
	`, quizID)
	if err != nil {
		return nil, fmt.Errorf("query quiz questions: %w", err)
	}
	defer rows.Close()

	out := make([]Question, 0)
	for rows.Next() {
		var (
			qs          Question
			explanation sql.NullString
			optID       sql.NullInt64
			optText     sql.NullString
			optCorrect  sql.NullBool
			optOrder    sql.NullInt64
		)
		if err := rows.Scan(&qs.ID, &qs.Text, &explanation, &qs.Order, &optID, &optText, &optCorrect, &optOrder); err != nil {
			return nil, fmt.Errorf("scan quiz question: %w", err)
		}
		if n := len(out); n == 0 || out[n-1].ID != qs.ID {
			if explanation.Valid {
				qs.Explanation = &explanation.String
			}
			qs.Options = make([]Option, 0)
			out = append(out, qs)
		}
		if optID.Valid {
			correct := optCorrect.Valid && optCorrect.Bool
			last := &out[len(out)-1]
			last.Options = append(last.Options, Option{
				ID:        optID.Int64,
				Text:      optText.String,
				IsCorrect: &correct,
				Order:     int(optOrder.Int64),
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quiz questions: %w", err)
	}
	return out, nil
}

// DeleteQuiz deactivates the quiz. Rows are kept for existing submissions.
func (s *Service) DeleteQuiz(ctx context.Context, quizID int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE quizzes
		SET is_active = FALSE,
			updated_at = $2
		WHERE id = $1
	`, quizID, s.now().UTC())
	if err != nil {
		return fmt.Errorf("deactivate quiz: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrQuizNotFound
	}
	return nil
}

const (
	IssueNoCorrectAnswer       = "NO_CORRECT_ANSWER"
	IssueMultipleCorrectAnswer = "MULTIPLE_CORRECT_ANSWERS"
	IssueTooFewOptions         = "TOO_FEW_OPTIONS"
)

// Diagnostics reports questions whose option set cannot be graded sensibly.
func (s *Service) Diagnostics(ctx context.Context, quizID int64) (*Diagnostics, error) {
	var found int
	if err := s.db.QueryRowContext(ctx, `SELECT 1 FROM quizzes WHERE id = $1`, quizID).Scan(&found); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("load quiz: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			qq.id,
			qq.question_order,
			qq.question_text,
			COUNT(qo.id),
			COALESCE(SUM(CASE WHEN qo.is_correct THEN 1 ELSE 0 END), 0)
		FROM quiz_questions qq
		LEFT JOIN quiz_options qo ON qo.question_id = qq.id
		WHERE qq.quiz_id = $1
		GROUP BY qq.id, qq.question_order, qq.question_text
		ORDER BY qq.question_order ASC
	`, quizID)
	if err != nil {
		return nil, fmt.Errorf("query quiz diagnostics: %w", err)
	}
	defer rows.Close()

	d := &Diagnostics{QuizID: quizID, Healthy: true, Questions: make([]QuestionDiagnostic, 0)}
	for rows.Next() {
		var qd QuestionDiagnostic
		if err := rows.Scan(&qd.QuestionID, &qd.Order, &qd.Text, &qd.OptionCount, &qd.CorrectCount); err != nil {
			return nil, fmt.Errorf("scan quiz diagnostics: %w", err)
		}
		switch {
		case qd.CorrectCount == 0:
			qd.Issues = append(qd.Issues, IssueNoCorrectAnswer)
		case qd.CorrectCount > 1:
			qd.Issues = append(qd.Issues, IssueMultipleCorrectAnswer)
		}
		if qd.OptionCount < 2 {
			qd.Issues = append(qd.Issues, IssueTooFewOptions)
		}
		if len(qd.Issues) > 0 {
			d.Healthy = false
		}
		d.Questions = append(d.Questions, qd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quiz diagnostics: %w", err)
	}
	d.TotalQuestions = len(d.Questions)
	return d, nil
}

func trimmedOrNil(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}
