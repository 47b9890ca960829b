package course

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a course or lesson does not exist.
var ErrNotFound = errors.New("not found")

// Course is an ordered collection of lessons built from one deck.
type Course struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	LessonCount int       `json:"lesson_count"`
	Lessons     []Lesson  `json:"lessons,omitempty"`
}

// Lesson is one slide of a course.
type Lesson struct {
	ID            int64  `json:"id"`
	CourseID      int64  `json:"course_id"`
	Title         string `json:"title"`
	SlideFilename string `json:"slide_filename"` // Relative to the static root, e.g. courses/intro/slide_001.png
	Notes         string `json:"notes"`
	Index         int    `json:"index"`
}

// Store persists courses and lessons in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at dbPath and ensures the schema.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=1&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *Store) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS courses (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS lessons (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			course_id INTEGER NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			slide_filename TEXT NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			idx INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_lessons_course ON lessons(course_id, idx);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateCourse inserts a course and its lessons in one transaction and
// returns the new course ID.
func (s *Store) CreateCourse(ctx context.Context, c Course, lessons []Lesson) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO courses (title, description, created_at) VALUES (?, ?, ?)`,
		c.Title, c.Description, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert course: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get course id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO lessons (course_id, title, slide_filename, notes, idx) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare lesson insert: %w", err)
	}
	defer stmt.Close()
	for _, l := range lessons {
		if _, err := stmt.ExecContext(ctx, id, l.Title, l.SlideFilename, l.Notes, l.Index); err != nil {
			return 0, fmt.Errorf("failed to insert lesson %d: %w", l.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// ListCourses returns all courses with their lesson counts, oldest first.
func (s *Store) ListCourses(ctx context.Context) ([]Course, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.title, c.description, c.created_at, COUNT(l.id)
		FROM courses c LEFT JOIN lessons l ON l.course_id = c.id
		GROUP BY c.id ORDER BY c.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query courses: %w", err)
	}
	defer rows.Close()

	courses := []Course{}
	for rows.Next() {
		var c Course
		if err := rows.Scan(&c.ID, &c.Title, &c.Description, &c.CreatedAt, &c.LessonCount); err != nil {
			return nil, fmt.Errorf("failed to scan course: %w", err)
		}
		courses = append(courses, c)
	}
	return courses, rows.Err()
}

// GetCourse returns a course with its lessons in order.
func (s *Store) GetCourse(ctx context.Context, id int64) (*Course, error) {
	var c Course
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, description, created_at FROM courses WHERE id = ?`, id,
	).Scan(&c.ID, &c.Title, &c.Description, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("course %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query course: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, course_id, title, slide_filename, notes, idx
		FROM lessons WHERE course_id = ? ORDER BY idx`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query lessons: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var l Lesson
		if err := rows.Scan(&l.ID, &l.CourseID, &l.Title, &l.SlideFilename, &l.Notes, &l.Index); err != nil {
			return nil, fmt.Errorf("failed to scan lesson: %w", err)
		}
		c.Lessons = append(c.Lessons, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	c.LessonCount = len(c.Lessons)
	return &c, nil
}

// GetLesson returns a single lesson.
func (s *Store) GetLesson(ctx context.Context, id int64) (*Lesson, error) {
	var l Lesson
	err := s.db.QueryRowContext(ctx, `
		SELECT id, course_id, title, slide_filename, notes, idx
		FROM lessons WHERE id = ?`, id,
	).Scan(&l.ID, &l.CourseID, &l.Title, &l.SlideFilename, &l.Notes, &l.Index)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("lesson %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query lesson: %w", err)
	}
	return &l, nil
}

// Neighbors returns the IDs of the lessons before and after l in its course;
// zero means there is none.
func (s *Store) Neighbors(ctx context.Context, l *Lesson) (prev, next int64, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE((SELECT id FROM lessons WHERE course_id = ? AND idx < ? ORDER BY idx DESC LIMIT 1), 0),
			COALESCE((SELECT id FROM lessons WHERE course_id = ? AND idx > ? ORDER BY idx ASC LIMIT 1), 0)`,
		l.CourseID, l.Index, l.CourseID, l.Index,
	).Scan(&prev, &next)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query neighbors: %w", err)
	}
	return prev, next, nil
}

// DeleteCourse removes a course and, by cascade, its lessons.
func (s *Store) DeleteCourse(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM courses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete course: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("course %d: %w", id, ErrNotFound)
	}
	return nil
}
