package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Student repository errors
var (
	ErrStudentNotFound   = errors.New("student not found")
	ErrPRNAlreadyExists  = errors.New("student with this PRN already exists")
)

// StudentRepository defines the interface for student profile access
type StudentRepository interface {
	Create(ctx context.Context, student *Student) error
	GetByID(ctx context.Context, id uuid.UUID) (*Student, error)
	GetByPRN(ctx context.Context, prn string) (*Student, error)
	PRNExists(ctx context.Context, prn string) (bool, error)
}

// studentRepository implements StudentRepository using PostgreSQL
type studentRepository struct {
	pool *pgxpool.Pool
}

// NewStudentRepository creates a new StudentRepository instance
func NewStudentRepository(pool *pgxpool.Pool) StudentRepository {
	return &studentRepository{pool: pool}
}

// Create inserts a new student profile
func (r *studentRepository) Create(ctx context.Context, student *Student) error {
	query := `
		INSERT INTO students (name, branch, dob, phone, academic_year, address, prn)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		student.Name,
		student.Branch,
		student.DOB,
		student.Phone,
		student.AcademicYear,
		student.Address,
		student.PRN,
	).Scan(&student.ID, &student.CreatedAt, &student.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err, "students_prn_key") {
			return ErrPRNAlreadyExists
		}
		return err
	}

	return nil
}

// GetByID retrieves a student profile by ID
func (r *studentRepository) GetByID(ctx context.Context, id uuid.UUID) (*Student, error) {
	query := `
		SELECT id, name, branch, dob, phone, academic_year, address, prn, created_at, updated_at
		FROM students
		WHERE id = $1
	`
	return r.scanStudent(r.pool.QueryRow(ctx, query, id))
}

// GetByPRN retrieves a student profile by registration number
func (r *studentRepository) GetByPRN(ctx context.Context, prn string) (*Student, error) {
	query := `
		SELECT id, name, branch, dob, phone, academic_year, address, prn, created_at, updated_at
		FROM students
		WHERE prn = $1
	`
	return r.scanStudent(r.pool.QueryRow(ctx, query, prn))
}

// PRNExists checks whether a registration number is already taken
func (r *studentRepository) PRNExists(ctx context.Context, prn string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM students WHERE prn = $1)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, prn).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *studentRepository) scanStudent(row pgx.Row) (*Student, error) {
	student := &Student{}
	err := row.Scan(
		&student.ID,
		&student.Name,
		&student.Branch,
		&student.DOB,
		&student.Phone,
		&student.AcademicYear,
		&student.Address,
		&student.PRN,
		&student.CreatedAt,
		&student.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStudentNotFound
		}
		return nil, err
	}
	return student, nil
}
