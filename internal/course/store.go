package course

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"lmsquiz/internal/db"
)

// Store holds the progress queries the quiz engine runs inside its own
// transactions, so every method takes the executor explicitly.
type Store struct{}

func NewStore() *Store {
	return &Store{}
}

func (Store) TotalChapters(ctx context.Context, q db.Queryable, courseID int64) (int, error) {
	var total int
	if err := q.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM course_chapters
		WHERE course_id = $1
	`, courseID).Scan(&total); err != nil {
		return 0, fmt.Errorf("count chapters: %w", err)
	}
	return total, nil
}

func (Store) CompletedChapters(ctx context.Context, q db.Queryable, courseID, userID int64) (int, error) {
	var completed int
	if err := q.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT ch.id)
		FROM course_chapters ch
		JOIN lesson_progress lp ON lp.chapter_id = ch.id
		WHERE ch.course_id = $1
		  AND lp.user_id = $2
		  AND lp.completed_at IS NOT NULL
	`, courseID, userID).Scan(&completed); err != nil {
		return 0, fmt.Errorf("count completed chapters: %w", err)
	}
	return completed, nil
}

// DeleteCourseProgress wipes every lesson progress row of the user in the course.
func (Store) DeleteCourseProgress(ctx context.Context, q db.Queryable, userID, courseID int64) (int64, error) {
	res, err := q.ExecContext(ctx, `
		DELETE FROM lesson_progress
		WHERE user_id = $1
		  AND chapter_id IN (
			SELECT id FROM course_chapters WHERE course_id = $2
		  )
	`, userID, courseID)
	if err != nil {
		return 0, fmt.Errorf("delete lesson progress: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (Store) CourseOwner(ctx context.Context, q db.Queryable, courseID int64) (int64, error) {
	var owner int64
	err := q.QueryRowContext(ctx, `SELECT created_by FROM courses WHERE id = $1`, courseID).Scan(&owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrCourseNotFound
		}
		return 0, fmt.Errorf("load course owner: %w", err)
	}
	return owner, nil
}
