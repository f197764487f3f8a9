package quiz

import "time"

const (
	StatusPending  = "pending"
	StatusApproved = "approved"
)

const defaultPassingScore = 60

type Quiz struct {
	ID                 int64      `json:"id"`
	CourseID           int64      `json:"course_id"`
	Title              string     `json:"title"`
	Description        *string    `json:"description,omitempty"`
	PassingScore       int        `json:"passing_score"`
	TimeLimit          *int       `json:"time_limit,omitempty"`
	ShowResults        bool       `json:"show_results"`
	ShowCorrectAnswers bool       `json:"show_correct_answers"`
	CreatedBy          int64      `json:"created_by"`
	IsActive           bool       `json:"is_active"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	Questions          []Question `json:"questions"`
}

type Question struct {
	ID          int64    `json:"id"`
	Text        string   `json:"question_text"`
	Explanation *string  `json:"explanation,omitempty"`
	Order       int      `json:"question_order"`
	Options     []Option `json:"options"`
}

// Option.IsCorrect is nil when the viewer may not see the answer key.
type Option struct {
	ID        int64  `json:"id"`
	Text      string `json:"option_text"`
	IsCorrect *bool  `json:"is_correct,omitempty"`
	Order     int    `json:"option_order"`
}

type SaveQuizInput struct {
	CourseID           int64           `json:"-"`
	CreatedBy          int64           `json:"-"`
	Title              string          `json:"title" validate:"max=255,singleline"`
	Description        *string         `json:"description"`
	PassingScore       *int            `json:"passing_score" validate:"omitempty,min=0,max=100"`
	TimeLimit          *int            `json:"time_limit" validate:"omitempty,min=1"`
	ShowResults        *bool           `json:"show_results"`
	ShowCorrectAnswers *bool           `json:"show_correct_answers"`
	Questions          []QuestionInput `json:"questions" validate:"dive"`
}

type QuestionInput struct {
	Text        string        `json:"question_text" validate:"notblank"`
	Explanation *string       `json:"explanation"`
	Options     []OptionInput `json:"options" validate:"min=2,dive"`
}

type OptionInput struct {
	Text      string `json:"option_text" validate:"notblank"`
	IsCorrect bool   `json:"is_correct"`
}

type QuestionDiagnostic struct {
	QuestionID   int64    `json:"question_id"`
	Order        int      `json:"question_order"`
	Text         string   `json:"question_text"`
	OptionCount  int      `json:"option_count"`
	CorrectCount int      `json:"correct_count"`
	Issues       []string `json:"issues,omitempty"`
}

type Diagnostics struct {
	QuizID         int64                `json:"quiz_id"`
	TotalQuestions int                  `json:"total_questions"`
	Healthy        bool                 `json:"healthy"`
	Questions      []QuestionDiagnostic `json:"questions"`
}

type AttemptCheck struct {
	CanAttempt   bool   `json:"can_attempt"`
	AttemptCount int    `json:"attempt_count"`
	Message      string `json:"message"`
}

type AnswerInput struct {
	QuestionID       int64 `json:"question_id"`
	SelectedOptionID int64 `json:"selected_option_id"`
}

type SubmitInput struct {
	QuizID    int64
	UserID    int64
	Answers   []AnswerInput
	TimeTaken int
}

type SubmitResult struct {
	SubmissionID   int64   `json:"submission_id"`
	Score          float64 `json:"score"`
	Passed         bool    `json:"passed"`
	CorrectAnswers int     `json:"correct_answers"`
	TotalQuestions int     `json:"total_questions"`
	TimeTaken      int     `json:"time_taken"`
	AttemptNumber  int     `json:"attempt_number"`
}

type Submission struct {
	ID              int64      `json:"id"`
	QuizID          int64      `json:"quiz_id"`
	UserID          int64      `json:"user_id"`
	Score           float64    `json:"score"`
	Passed          bool       `json:"passed"`
	TotalQuestions  int        `json:"total_questions"`
	CorrectAnswers  int        `json:"correct_answers"`
	TimeTaken       int        `json:"time_taken"`
	SubmittedAt     time.Time  `json:"submitted_at"`
	AttemptNumber   int        `json:"attempt_number"`
	ApprovalStatus  string     `json:"approval_status"`
	ApprovedBy      *int64     `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	RejectionReason *string    `json:"rejection_reason,omitempty"`
}

// SubmissionHeader is a submission joined with the learner and quiz it belongs to.
type SubmissionHeader struct {
	Submission
	UserName           string `json:"user_name"`
	UserEmail          string `json:"user_email"`
	CourseID           int64  `json:"course_id"`
	QuizTitle          string `json:"quiz_title"`
	PassingScore       int    `json:"passing_score"`
	ShowResults        bool   `json:"show_results"`
	ShowCorrectAnswers bool   `json:"show_correct_answers"`
}

// Answer is the snapshot stored at submission time.
type Answer struct {
	ID                 int64   `json:"id"`
	QuestionID         int64   `json:"question_id"`
	SelectedOptionID   int64   `json:"selected_option_id"`
	IsCorrect          bool    `json:"is_correct"`
	QuestionText       string  `json:"question_text"`
	SelectedOptionText string  `json:"selected_option_text"`
	CorrectOptionText  *string `json:"correct_option_text,omitempty"`
}

type SubmissionDetails struct {
	SubmissionHeader
	Answers []Answer `json:"answers"`
}

type StudentAnswer struct {
	SelectedOptionID   int64  `json:"selected_option_id"`
	SelectedOptionText string `json:"selected_option_text"`
	IsCorrect          bool   `json:"is_correct"`
}

type ReviewOption struct {
	ID         int64  `json:"id"`
	Text       string `json:"option_text"`
	IsCorrect  bool   `json:"is_correct"`
	IsSelected bool   `json:"is_selected"`
}

type ReviewQuestion struct {
	ID            int64          `json:"id"`
	Text          string         `json:"question_text"`
	Explanation   *string        `json:"explanation,omitempty"`
	Order         int            `json:"question_order"`
	Options       []ReviewOption `json:"options"`
	StudentAnswer *StudentAnswer `json:"student_answer"`
}

type FullSubmissionDetails struct {
	SubmissionHeader
	Questions []ReviewQuestion `json:"questions"`
	// Answers whose question no longer exists because the quiz was replaced.
	UnmatchedAnswers []Answer `json:"unmatched_answers,omitempty"`
}

type QuizResult struct {
	SubmissionHeader
	AnswersHidden bool     `json:"answers_hidden"`
	Answers       []Answer `json:"answers,omitempty"`
}

type HistoryEntry struct {
	SubmissionID   int64     `json:"submission_id"`
	QuizID         int64     `json:"quiz_id"`
	QuizTitle      string    `json:"quiz_title"`
	Score          float64   `json:"score"`
	Passed         bool      `json:"passed"`
	CorrectAnswers int       `json:"correct_answers"`
	TotalQuestions int       `json:"total_questions"`
	TimeTaken      int       `json:"time_taken"`
	SubmittedAt    time.Time `json:"submitted_at"`
	AttemptNumber  int       `json:"attempt_number"`
	ApprovalStatus string    `json:"approval_status"`
}

type RejectResult struct {
	SubmissionID    int64     `json:"submission_id"`
	QuizID          int64     `json:"quiz_id"`
	UserID          int64     `json:"user_id"`
	CourseID        int64     `json:"course_id"`
	ProgressCleared int64     `json:"progress_rows_cleared"`
	RejectedAt      time.Time `json:"rejected_at"`
}

type ResetResult struct {
	SubmissionID   int64 `json:"submission_id"`
	QuizID         int64 `json:"quiz_id"`
	UserID         int64 `json:"user_id"`
	AnswersDeleted int64 `json:"answers_deleted"`
}
