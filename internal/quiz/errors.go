package quiz

import "errors"

var (
	ErrQuizNotFound       = errors.New("quiz not found")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrDuplicateAttempt   = errors.New("you have already attempted this quiz")
	ErrInvalidAnswer      = errors.New("answer does not match an option of this quiz")
	ErrForbidden          = errors.New("forbidden")
	ErrQuizConflict       = errors.New("quiz was saved concurrently, retry")

	ErrTitleAndQuestionsRequired = errors.New("title and questions are required")
	ErrRejectionReasonRequired   = errors.New("rejection reason is required")
)

// FieldError describes a problem with a single input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned for malformed or incomplete input.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func newValidationError(err error, fields ...FieldError) error {
	return &ValidationError{Err: err, Fields: fields}
}

func (e *ValidationError) Error() string {
	if e.Err == nil {
		return "validation failed"
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
