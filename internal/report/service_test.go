package report

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"lmsquiz/internal/auth"
	"lmsquiz/internal/course"
	"lmsquiz/internal/db"

	"github.com/xuri/excelize/v2"
)

type fixture struct {
	conn        *sql.DB
	svc         *Service
	admin       *auth.User
	owner       *auth.User
	otherIns    *auth.User
	manager     *auth.User
	learnerA    *auth.User
	learnerB    *auth.User
	courseMine  int64
	courseOther int64
	quizMine    int64
	quizOther   int64
}

func newFixture(t *testing.T, maxExportRows int) *fixture {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Open(ctx, db.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	if err := db.Migrate(ctx, conn, db.DriverSQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	f := &fixture{conn: conn, svc: NewService(conn, course.NewStore(), maxExportRows)}
	f.admin = seedUser(t, conn, "admin@example.com", auth.RoleAdmin)
	f.owner = seedUser(t, conn, "owner@example.com", auth.RoleInstructor)
	f.otherIns = seedUser(t, conn, "other@example.com", auth.RoleInstructor)
	f.manager = seedUser(t, conn, "manager@example.com", auth.RoleManager)
	f.learnerA = seedUser(t, conn, "a@example.com", auth.RoleEmployee)
	f.learnerB = seedUser(t, conn, "b@example.com", auth.RoleEmployee)

	f.courseMine = insertID(t, conn, `INSERT INTO courses (title, created_by, created_at) VALUES ('Forklift', $1, $2) RETURNING id`, f.owner.ID, baseTime)
	f.courseOther = insertID(t, conn, `INSERT INTO courses (title, created_by, created_at) VALUES ('Fire Drill', $1, $2) RETURNING id`, f.otherIns.ID, baseTime)
	f.quizMine = seedQuiz(t, conn, f.courseMine, f.owner.ID)
	f.quizOther = seedQuiz(t, conn, f.courseOther, f.otherIns.ID)

	seedSubmission(t, conn, f.quizMine, f.learnerA.ID, 80, true, "approved", baseTime.Add(time.Hour))
	seedSubmission(t, conn, f.quizMine, f.learnerB.ID, 40, false, "pending", baseTime.Add(2*time.Hour))
	seedSubmission(t, conn, f.quizOther, f.learnerA.ID, 100, true, "pending", baseTime.Add(3*time.Hour))
	return f
}

var baseTime = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

func insertID(t *testing.T, conn *sql.DB, query string, args ...any) int64 {
	t.Helper()
	var id int64
	if err := conn.QueryRowContext(context.Background(), query, args...).Scan(&id); err != nil {
		t.Fatalf("insert: %v", err)
	}
	return id
}

func seedUser(t *testing.T, conn *sql.DB, email, role string) *auth.User {
	t.Helper()
	id := insertID(t, conn, `
		INSERT INTO users (name, email, password_hash, role, created_at)
		VALUES ($1, $1, 'x', $2, $3)
		RETURNING id
	`, email, role, baseTime)
	return &auth.User{ID: id, Name: email, Email: email, Role: role}
}

func seedQuiz(t *testing.T, conn *sql.DB, courseID, author int64) int64 {
	t.Helper()
	return insertID(t, conn, `
		INSERT INTO quizzes (course_id, title, passing_score, created_by, is_active, created_at, updated_at)
		VALUES ($1, 'Final check', 60, $2, TRUE, $3, $3)
		RETURNING id
	`, courseID, author, baseTime)
}

func seedSubmission(t *testing.T, conn *sql.DB, quizID, userID int64, score float64, passed bool, status string, at time.Time) int64 {
	t.Helper()
	var approvedAt any
	if status == "approved" {
		approvedAt = at.Add(time.Hour)
	}
	return insertID(t, conn, `
		INSERT INTO quiz_submissions (
			quiz_id, user_id, score, passed, total_questions, correct_answers,
			time_taken, submitted_at, attempt_number, approval_status, approved_at
		) VALUES ($1, $2, $3, $4, 5, $5, 120, $6, 1, $7, $8)
		RETURNING id
	`, quizID, userID, score, passed, int(score/20), at, status, approvedAt)
}

func TestAuthorizeListingRules(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	cases := []struct {
		name     string
		viewer   *auth.User
		courseID int64
		want     error
	}{
		{name: "admin all", viewer: f.admin, want: nil},
		{name: "manager all", viewer: f.manager, want: ErrForbidden},
		{name: "instructor all", viewer: f.owner, want: ErrForbidden},
		{name: "learner course", viewer: f.learnerA, courseID: f.courseMine, want: ErrForbidden},
		{name: "anonymous", viewer: nil, courseID: f.courseMine, want: ErrForbidden},
		{name: "owner course", viewer: f.owner, courseID: f.courseMine, want: nil},
		{name: "foreign instructor", viewer: f.otherIns, courseID: f.courseMine, want: ErrForbidden},
		{name: "manager course", viewer: f.manager, courseID: f.courseMine, want: nil},
		{name: "unknown course", viewer: f.admin, courseID: 999, want: course.ErrCourseNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := f.svc.Authorize(ctx, tc.viewer, tc.courseID)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestListSubmissionsFiltersAndOrders(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	all, err := f.svc.ListSubmissions(ctx, f.admin, Filter{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(all))
	}
	if all[0].QuizID != f.quizOther || all[2].UserID != f.learnerA.ID {
		t.Fatalf("expected newest first, got %+v", all)
	}

	mine, err := f.svc.ListSubmissions(ctx, f.owner, Filter{CourseID: f.courseMine})
	if err != nil {
		t.Fatalf("list course: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("expected 2 rows for course, got %d", len(mine))
	}
	for _, it := range mine {
		if it.CourseID != f.courseMine || it.CourseTitle != "Forklift" {
			t.Fatalf("row from wrong course: %+v", it)
		}
	}
	approved := mine[1]
	if approved.ApprovalStatus != "approved" || approved.ApprovedAt == nil || !approved.Passed || approved.Score != 80 {
		t.Fatalf("unexpected approved row %+v", approved)
	}
	if mine[0].ApprovedAt != nil {
		t.Fatalf("pending row should have no approval time: %+v", mine[0])
	}

	pending, err := f.svc.ListSubmissions(ctx, f.manager, Filter{CourseID: f.courseMine, Status: "pending"})
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].UserID != f.learnerB.ID {
		t.Fatalf("unexpected pending rows %+v", pending)
	}

	if _, err := f.svc.ListSubmissions(ctx, f.admin, Filter{Status: "archived"}); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestSummaryByQuiz(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	got, err := f.svc.SummaryByQuiz(ctx, f.owner, f.quizMine)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	want := QuizSummary{
		QuizID:       f.quizMine,
		CourseID:     f.courseMine,
		Participants: 2,
		AverageScore: 60,
		HighestScore: 80,
		LowestScore:  40,
		Passed:       1,
		Approved:     1,
		Pending:      1,
	}
	if *got != want {
		t.Fatalf("unexpected summary %+v", *got)
	}

	if _, err := f.svc.SummaryByQuiz(ctx, f.otherIns, f.quizMine); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := f.svc.SummaryByQuiz(ctx, f.admin, 999); !errors.Is(err, ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

func TestSummaryByQuizWithoutSubmissions(t *testing.T) {
	f := newFixture(t, 0)
	// One active quiz per course, so the empty quiz needs its own course.
	emptyCourse := insertID(t, f.conn, `INSERT INTO courses (title, created_by, created_at) VALUES ('Ladder Safety', $1, $2) RETURNING id`, f.owner.ID, baseTime)
	empty := seedQuiz(t, f.conn, emptyCourse, f.owner.ID)

	got, err := f.svc.SummaryByQuiz(context.Background(), f.admin, empty)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if got.Participants != 0 || got.AverageScore != 0 || got.HighestScore != 0 {
		t.Fatalf("expected zero summary, got %+v", got)
	}
}

func TestExportSubmissionsExcel(t *testing.T) {
	f := newFixture(t, 0)

	body, err := f.svc.ExportSubmissionsExcel(context.Background(), f.owner, Filter{CourseID: f.courseMine})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	x, err := excelize.OpenReader(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer func() { _ = x.Close() }()

	rows, err := x.GetRows(x.GetSheetName(0))
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "submission_id" || rows[0][11] != "approval_status" {
		t.Fatalf("unexpected header %v", rows[0])
	}
	if rows[1][3] != "b@example.com" || rows[2][11] != "approved" {
		t.Fatalf("unexpected rows %v", rows[1:])
	}
}

func TestExportSubmissionsExcelHonoursRowCap(t *testing.T) {
	f := newFixture(t, 1)

	body, err := f.svc.ExportSubmissionsExcel(context.Background(), f.admin, Filter{})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	x, err := excelize.OpenReader(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer func() { _ = x.Close() }()

	rows, err := x.GetRows(x.GetSheetName(0))
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header + 1 row, got %d", len(rows))
	}

	if _, err := f.svc.ExportSubmissionsExcel(context.Background(), f.manager, Filter{}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}
