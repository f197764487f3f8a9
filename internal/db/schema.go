package db

import (
	"context"
	"database/sql"
	"fmt"
)

// Migrate creates every table the service needs. It is safe to run on each start.
func Migrate(ctx context.Context, db *sql.DB, driver Driver) error {
	var schema string
	switch driver {
	case DriverPostgres:
		schema = schemaPostgres
	case DriverSQLite:
		schema = schemaSQLite
	default:
		return fmt.Errorf("unsupported db driver %q", driver)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS users (
	id            BIGSERIAL PRIMARY KEY,
	name          TEXT NOT NULL,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role          TEXT NOT NULL CHECK (role IN ('employee','manager','instructor','admin')),
	is_active     BOOLEAN NOT NULL DEFAULT TRUE,
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS courses (
	id         BIGSERIAL PRIMARY KEY,
	title      TEXT NOT NULL,
	created_by BIGINT NOT NULL REFERENCES users(id),
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS course_chapters (
	id            BIGSERIAL PRIMARY KEY,
	course_id     BIGINT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
	title         TEXT NOT NULL,
	chapter_order INT NOT NULL,
	UNIQUE (course_id, chapter_order)
);

CREATE TABLE IF NOT EXISTS lesson_progress (
	id           BIGSERIAL PRIMARY KEY,
	user_id      BIGINT NOT NULL REFERENCES users(id),
	chapter_id   BIGINT NOT NULL REFERENCES course_chapters(id) ON DELETE CASCADE,
	completed_at TIMESTAMPTZ,
	UNIQUE (user_id, chapter_id)
);

CREATE TABLE IF NOT EXISTS quizzes (
	id                   BIGSERIAL PRIMARY KEY,
	course_id            BIGINT NOT NULL REFERENCES courses(id),
	title                TEXT NOT NULL,
	description          TEXT,
	passing_score        INT NOT NULL DEFAULT 60 CHECK (passing_score BETWEEN 0 AND 100),
	time_limit           INT,
	show_results         BOOLEAN NOT NULL DEFAULT TRUE,
	show_correct_answers BOOLEAN NOT NULL DEFAULT TRUE,
	created_by           BIGINT NOT NULL,
	is_active            BOOLEAN NOT NULL DEFAULT TRUE,
	created_at           TIMESTAMPTZ NOT NULL,
	updated_at           TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS ux_quizzes_active_course ON quizzes (course_id) WHERE is_active = TRUE;

CREATE TABLE IF NOT EXISTS quiz_questions (
	id             BIGSERIAL PRIMARY KEY,
	quiz_id        BIGINT NOT NULL REFERENCES quizzes(id) ON DELETE CASCADE,
	question_text  TEXT NOT NULL,
	explanation    TEXT,
	question_order INT NOT NULL,
	UNIQUE (quiz_id, question_order)
);

CREATE TABLE IF NOT EXISTS quiz_options (
	id           BIGSERIAL PRIMARY KEY,
	question_id  BIGINT NOT NULL REFERENCES quiz_questions(id) ON DELETE CASCADE,
	option_text  TEXT NOT NULL,
	is_correct   BOOLEAN NOT NULL DEFAULT FALSE,
	option_order INT NOT NULL,
	UNIQUE (question_id, option_order)
);

CREATE TABLE IF NOT EXISTS quiz_submissions (
	id               BIGSERIAL PRIMARY KEY,
	quiz_id          BIGINT NOT NULL REFERENCES quizzes(id),
	user_id          BIGINT NOT NULL REFERENCES users(id),
	score            NUMERIC(5,2) NOT NULL,
	passed           BOOLEAN NOT NULL,
	total_questions  INT NOT NULL,
	correct_answers  INT NOT NULL,
	time_taken       INT NOT NULL DEFAULT 0,
	submitted_at     TIMESTAMPTZ NOT NULL,
	attempt_number   INT NOT NULL DEFAULT 1,
	approval_status  TEXT NOT NULL DEFAULT 'pending' CHECK (approval_status IN ('pending','approved','rejected')),
	approved_by      BIGINT,
	approved_at      TIMESTAMPTZ,
	rejection_reason TEXT,
	UNIQUE (quiz_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_submissions_approval ON quiz_submissions (approval_status, user_id);

CREATE TABLE IF NOT EXISTS quiz_answers (
	id                   BIGSERIAL PRIMARY KEY,
	submission_id        BIGINT NOT NULL REFERENCES quiz_submissions(id) ON DELETE CASCADE,
	question_id          BIGINT NOT NULL,
	selected_option_id   BIGINT NOT NULL,
	is_correct           BOOLEAN NOT NULL,
	question_text        TEXT NOT NULL,
	selected_option_text TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_quiz_answers_submission ON quiz_answers (submission_id);

CREATE TABLE IF NOT EXISTS quiz_rejection_log (
	id               BIGSERIAL PRIMARY KEY,
	submission_id    BIGINT NOT NULL,
	staff_user_id    BIGINT NOT NULL,
	employee_user_id BIGINT NOT NULL,
	course_id        BIGINT NOT NULL,
	quiz_id          BIGINT NOT NULL,
	rejection_reason TEXT NOT NULL,
	rejected_at      TIMESTAMPTZ NOT NULL
);
`

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	name          TEXT NOT NULL,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role          TEXT NOT NULL CHECK (role IN ('employee','manager','instructor','admin')),
	is_active     BOOLEAN NOT NULL DEFAULT TRUE,
	created_at    TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS courses (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	title      TEXT NOT NULL,
	created_by INTEGER NOT NULL REFERENCES users(id),
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS course_chapters (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	course_id     INTEGER NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
	title         TEXT NOT NULL,
	chapter_order INTEGER NOT NULL,
	UNIQUE (course_id, chapter_order)
);

CREATE TABLE IF NOT EXISTS lesson_progress (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id      INTEGER NOT NULL REFERENCES users(id),
	chapter_id   INTEGER NOT NULL REFERENCES course_chapters(id) ON DELETE CASCADE,
	completed_at TIMESTAMP,
	UNIQUE (user_id, chapter_id)
);

CREATE TABLE IF NOT EXISTS quizzes (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	course_id            INTEGER NOT NULL REFERENCES courses(id),
	title                TEXT NOT NULL,
	description          TEXT,
	passing_score        INTEGER NOT NULL DEFAULT 60 CHECK (passing_score BETWEEN 0 AND 100),
	time_limit           INTEGER,
	show_results         BOOLEAN NOT NULL DEFAULT TRUE,
	show_correct_answers BOOLEAN NOT NULL DEFAULT TRUE,
	created_by           INTEGER NOT NULL,
	is_active            BOOLEAN NOT NULL DEFAULT TRUE,
	created_at           TIMESTAMP NOT NULL,
	updated_at           TIMESTAMP NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS ux_quizzes_active_course ON quizzes (course_id) WHERE is_active = TRUE;

CREATE TABLE IF NOT EXISTS quiz_questions (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	quiz_id        INTEGER NOT NULL REFERENCES quizzes(id) ON DELETE CASCADE,
	question_text  TEXT NOT NULL,
	explanation    TEXT,
	question_order INTEGER NOT NULL,
	UNIQUE (quiz_id, question_order)
);

CREATE TABLE IF NOT EXISTS quiz_options (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	question_id  INTEGER NOT NULL REFERENCES quiz_questions(id) ON DELETE CASCADE,
	option_text  TEXT NOT NULL,
	is_correct   BOOLEAN NOT NULL DEFAULT FALSE,
	option_order INTEGER NOT NULL,
	UNIQUE (question_id, option_order)
);

CREATE TABLE IF NOT EXISTS quiz_submissions (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	quiz_id          INTEGER NOT NULL REFERENCES quizzes(id),
	user_id          INTEGER NOT NULL REFERENCES users(id),
	score            REAL NOT NULL,
	passed           BOOLEAN NOT NULL,
	total_questions  INTEGER NOT NULL,
	correct_answers  INTEGER NOT NULL,
	time_taken       INTEGER NOT NULL DEFAULT 0,
	submitted_at     TIMESTAMP NOT NULL,
	attempt_number   INTEGER NOT NULL DEFAULT 1,
	approval_status  TEXT NOT NULL DEFAULT 'pending' CHECK (approval_status IN ('pending','approved','rejected')),
	approved_by      INTEGER,
	approved_at      TIMESTAMP,
	rejection_reason TEXT,
	UNIQUE (quiz_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_submissions_approval ON quiz_submissions (approval_status, user_id);

CREATE TABLE IF NOT EXISTS quiz_answers (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	submission_id        INTEGER NOT NULL REFERENCES quiz_submissions(id) ON DELETE CASCADE,
	question_id          INTEGER NOT NULL,
	selected_option_id   INTEGER NOT NULL,
	is_correct           BOOLEAN NOT NULL,
	question_text        TEXT NOT NULL,
	selected_option_text TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_quiz_answers_submission ON quiz_answers (submission_id);

CREATE TABLE IF NOT EXISTS quiz_rejection_log (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	submission_id    INTEGER NOT NULL,
	staff_user_id    INTEGER NOT NULL,
	employee_user_id INTEGER NOT NULL,
	course_id        INTEGER NOT NULL,
	quiz_id          INTEGER NOT NULL,
	rejection_reason TEXT NOT NULL,
	rejected_at      TIMESTAMP NOT NULL
);
`
