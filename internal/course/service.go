package course

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

var (
	ErrCourseNotFound  = errors.New("course not found")
	ErrChapterNotFound = errors.New("chapter not found")
	ErrInvalidInput    = errors.New("invalid input")
)

type Service struct {
	db    *sql.DB
	store *Store
	now   func() time.Time
}

type Course struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	CreatedBy int64     `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	Chapters  []Chapter `json:"chapters"`
}

type Chapter struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Order int    `json:"order"`
}

type ChapterProgress struct {
	Chapter
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type Progress struct {
	CourseID  int64             `json:"course_id"`
	UserID    int64             `json:"user_id"`
	Total     int               `json:"total_chapters"`
	Completed int               `json:"completed_chapters"`
	Percent   float64           `json:"percent"`
	Chapters  []ChapterProgress `json:"chapters"`
}

type CreateCourseInput struct {
	Title     string
	Chapters  []string
	CreatedBy int64
}

func NewService(db *sql.DB, store *Store) *Service {
	if store == nil {
		store = NewStore()
	}
	return &Service{db: db, store: store, now: time.Now}
}

func (s *Service) CreateCourse(ctx context.Context, in CreateCourseInput) (*Course, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" || in.CreatedBy <= 0 || len(in.Chapters) == 0 {
		return nil, ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create course tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	c := &Course{Title: title, CreatedBy: in.CreatedBy, CreatedAt: s.now().UTC()}
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO courses (title, created_by, created_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`, c.Title, c.CreatedBy, c.CreatedAt).Scan(&c.ID); err != nil {
		return nil, fmt.Errorf("insert course: %w", err)
	}

	c.Chapters = make([]Chapter, 0, len(in.Chapters))
	for i, raw := range in.Chapters {
		ch := Chapter{Title: strings.TrimSpace(raw), Order: i + 1}
		if ch.Title == "" {
			return nil, ErrInvalidInput
		}
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO course_chapters (course_id, title, chapter_order)
			VALUES ($1, $2, $3)
			RETURNING id
		`, c.ID, ch.Title, ch.Order).Scan(&ch.ID); err != nil {
			return nil, fmt.Errorf("insert chapter: %w", err)
		}
		c.Chapters = append(c.Chapters, ch)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create course: %w", err)
	}
	return c, nil
}

func (s *Service) MarkChapterComplete(ctx context.Context, userID, courseID, chapterID int64) error {
	var found int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM course_chapters WHERE id = $1 AND course_id = $2
	`, chapterID, courseID).Scan(&found)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrChapterNotFound
		}
		return fmt.Errorf("load chapter: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO lesson_progress (user_id, chapter_id, completed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, chapter_id)
		DO UPDATE SET completed_at = COALESCE(lesson_progress.completed_at, excluded.completed_at)
	`, userID, chapterID, s.now().UTC()); err != nil {
		return fmt.Errorf("upsert lesson progress: %w", err)
	}
	return nil
}

func (s *Service) Progress(ctx context.Context, courseID, userID int64) (*Progress, error) {
	if _, err := s.store.CourseOwner(ctx, s.db, courseID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT ch.id, ch.title, ch.chapter_order, lp.completed_at
		FROM course_chapters ch
		LEFT JOIN lesson_progress lp
			ON lp.chapter_id = ch.id
			AND lp.user_id = $2
		WHERE ch.course_id = $1
		ORDER BY ch.chapter_order ASC
	`, courseID, userID)
	if err != nil {
		return nil, fmt.Errorf("query progress: %w", err)
	}
	defer rows.Close()

	p := &Progress{CourseID: courseID, UserID: userID, Chapters: make([]ChapterProgress, 0)}
	for rows.Next() {
		var (
			cp          ChapterProgress
			completedAt sql.NullTime
		)
		if err := rows.Scan(&cp.ID, &cp.Title, &cp.Order, &completedAt); err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		if completedAt.Valid {
			cp.CompletedAt = &completedAt.Time
			p.Completed++
		}
		p.Chapters = append(p.Chapters, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate progress: %w", err)
	}

	p.Total = len(p.Chapters)
	if p.Total > 0 {
		p.Percent = math.Round(float64(p.Completed)/float64(p.Total)*10000) / 100
	}
	return p, nil
}
