package classroom

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/schoolhub-core/internal/infrastructure/database"
)

// Repository defines classroom persistence operations.
type Repository interface {
	Create(ctx context.Context, name string) (*Classroom, error)
	List(ctx context.Context, order Order) ([]Classroom, error)
	Get(ctx context.Context, id int64) (*Classroom, error)
	Delete(ctx context.Context, id int64) error
	CountStudents(ctx context.Context, id int64) (int, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed classroom repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a classroom with a unique name.
func (r *SQLiteRepository) Create(ctx context.Context, name string) (*Classroom, error) {
	name, err := NormaliseName(name)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Truncate(time.Second)
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO classrooms (name, created_at) VALUES (?, ?)",
		name, database.FormatTime(now))
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrClassroomExists, name)
		}
		return nil, fmt.Errorf("inserting classroom %s: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading classroom id: %w", err)
	}
	return &Classroom{ID: id, Name: name, CreatedAt: now}, nil
}

// List returns every classroom ordered by id.
func (r *SQLiteRepository) List(ctx context.Context, order Order) ([]Classroom, error) {
	query := "SELECT id, name, created_at FROM classrooms ORDER BY id ASC"
	if order == OrderDesc {
		query = "SELECT id, name, created_at FROM classrooms ORDER BY id DESC"
	}

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying classrooms: %w", err)
	}
	defer rows.Close()

	classrooms := []Classroom{}
	for rows.Next() {
		c, err := scanClassroom(rows)
		if err != nil {
			return nil, err
		}
		classrooms = append(classrooms, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating classroom rows: %w", err)
	}
	return classrooms, nil
}

// Get returns a single classroom by ID.
func (r *SQLiteRepository) Get(ctx context.Context, id int64) (*Classroom, error) {
	row := r.db.QueryRowContext(ctx, "SELECT id, name, created_at FROM classrooms WHERE id = ?", id)
	return scanClassroom(row)
}

// Delete removes a classroom. Students in it are detached by the foreign key.
func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM classrooms WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting classroom %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // always succeeds on SQLite
		return ErrClassroomNotFound
	}
	return nil
}

// CountStudents returns how many student profiles reference the classroom.
func (r *SQLiteRepository) CountStudents(ctx context.Context, id int64) (int, error) {
	if _, err := r.Get(ctx, id); err != nil {
		return 0, err
	}
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM student_profiles WHERE classroom_id = ?", id).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting students in classroom %d: %w", id, err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanClassroom(s scanner) (*Classroom, error) {
	var c Classroom
	var createdAt string
	if err := s.Scan(&c.ID, &c.Name, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrClassroomNotFound
		}
		return nil, fmt.Errorf("scanning classroom: %w", err)
	}
	c.CreatedAt = database.ParseTime(createdAt)
	return &c, nil
}
