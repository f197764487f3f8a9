package quiz

import (
	"fmt"
	"math"
)

// Score is the outcome of grading one submission.
type Score struct {
	TotalQuestions int
	CorrectAnswers int
	Percent        float64
	Passed         bool
}

// ComputeScore grades against every question of the quiz, so unanswered
// questions count as wrong. The pass mark is inclusive and is checked
// against the exact percentage; only the stored value is rounded.
func ComputeScore(correct, totalQuestions, passingScore int) Score {
	if correct < 0 {
		correct = 0
	}
	if totalQuestions > 0 && correct > totalQuestions {
		correct = totalQuestions
	}

	raw := 0.0
	if totalQuestions > 0 {
		raw = float64(correct) * 100 / float64(totalQuestions)
	}
	return Score{
		TotalQuestions: totalQuestions,
		CorrectAnswers: correct,
		Percent:        roundScore(raw),
		Passed:         raw >= float64(passingScore),
	}
}

func roundScore(v float64) float64 {
	return math.Round(v*100) / 100
}

// optionRef is one option of the quiz, keyed by option id when grading.
type optionRef struct {
	QuestionID   int64
	QuestionText string
	OptionText   string
	IsCorrect    bool
}

// gradedAnswer is the snapshot written to quiz_answers.
type gradedAnswer struct {
	QuestionID         int64
	SelectedOptionID   int64
	IsCorrect          bool
	QuestionText       string
	SelectedOptionText string
}

// gradeAnswers resolves each answer against the quiz options and counts the
// correct ones. Every answer must name an option that belongs to its question.
func gradeAnswers(answers []AnswerInput, options map[int64]optionRef) ([]gradedAnswer, int, error) {
	seen := make(map[int64]struct{}, len(answers))
	out := make([]gradedAnswer, 0, len(answers))
	correct := 0

	for i, a := range answers {
		if _, dup := seen[a.QuestionID]; dup {
			return nil, 0, newValidationError(errInvalidInput, FieldError{
				Field:   fmt.Sprintf("answers[%d].question_id", i),
				Message: "question answered more than once",
			})
		}
		seen[a.QuestionID] = struct{}{}

		opt, ok := options[a.SelectedOptionID]
		if !ok || opt.QuestionID != a.QuestionID {
			return nil, 0, fmt.Errorf("%w: question %d option %d", ErrInvalidAnswer, a.QuestionID, a.SelectedOptionID)
		}
		if opt.IsCorrect {
			correct++
		}
		out = append(out, gradedAnswer{
			QuestionID:         a.QuestionID,
			SelectedOptionID:   a.SelectedOptionID,
			IsCorrect:          opt.IsCorrect,
			QuestionText:       opt.QuestionText,
			SelectedOptionText: opt.OptionText,
		})
	}
	return out, correct, nil
}
