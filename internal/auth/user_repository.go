package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/schoolhub-core/internal/infrastructure/database"
)

// SortOrder selects ascending or descending creation order in list queries.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ParseSortOrder accepts "asc" or "desc" (case-insensitive). Empty means asc.
func ParseSortOrder(s string) (SortOrder, bool) {
	switch strings.ToLower(s) {
	case "", "asc":
		return SortAsc, true
	case "desc":
		return SortDesc, true
	default:
		return "", false
	}
}

// ListOptions controls pagination of UserRepository.List.
type ListOptions struct {
	Skip  int
	Limit int
	Order SortOrder
	Role  Role // optional filter
}

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// UserRepository persists users together with their role profile.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByUUID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	List(ctx context.Context, opts ListOptions) ([]User, error)
	Update(ctx context.Context, user *User) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int, error)
}

// SQLiteUserRepository implements UserRepository using SQLite.
type SQLiteUserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new SQLite-backed user repository.
func NewUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

const userColumns = "id, uuid, username, password_hash, full_name, role, is_active, created_at, updated_at"

// Create inserts the user and its profile row in one transaction. A nil
// Profile is stored as an empty variant of the user's role.
func (r *SQLiteUserRepository) Create(ctx context.Context, user *User) error {
	if !IsValidUsername(user.Username) {
		return fmt.Errorf("%w: %q", ErrInvalidUsername, user.Username)
	}
	if !IsValidRole(user.Role) {
		return fmt.Errorf("%w: %q", ErrInvalidRole, user.Role)
	}
	if err := checkProfile(user); err != nil {
		return err
	}
	if user.UUID == "" {
		user.UUID = uuid.NewString()
	}

	now := time.Now().UTC().Truncate(time.Second)

	var id int64
	err := database.InTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO users (uuid, username, password_hash, full_name, role, is_active, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			user.UUID, user.Username, user.PasswordHash, user.FullName, string(user.Role),
			boolToInt(user.IsActive), database.FormatTime(now), database.FormatTime(now),
		)
		if err != nil {
			return err
		}
		if id, err = res.LastInsertId(); err != nil {
			return err
		}
		return saveProfile(ctx, tx, id, user.Profile)
	})
	switch {
	case err == nil:
	case database.IsUniqueViolation(err):
		return ErrUsernameExists
	case database.IsForeignKeyViolation(err):
		return fmt.Errorf("%w: classroom does not exist", ErrInvalidProfile)
	default:
		return fmt.Errorf("creating user: %w", err)
	}

	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

// GetByID retrieves a user by internal id.
func (r *SQLiteUserRepository) GetByID(ctx context.Context, id int64) (*User, error) {
	return r.getUser(ctx, "id = ?", id)
}

// GetByUUID retrieves a user by external id.
func (r *SQLiteUserRepository) GetByUUID(ctx context.Context, id string) (*User, error) {
	return r.getUser(ctx, "uuid = ?", id)
}

// GetByUsername retrieves a user by username.
func (r *SQLiteUserRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	return r.getUser(ctx, "username = ?", username)
}

// List returns one page of users ordered by id. Profiles are not loaded.
func (r *SQLiteUserRepository) List(ctx context.Context, opts ListOptions) ([]User, error) {
	if opts.Limit <= 0 {
		opts.Limit = defaultListLimit
	}
	opts.Limit = min(opts.Limit, maxListLimit)
	opts.Skip = max(opts.Skip, 0)

	direction := "ASC"
	if opts.Order == SortDesc {
		direction = "DESC"
	}

	query := "SELECT " + userColumns + " FROM users"
	var args []any
	if opts.Role != "" {
		query += " WHERE role = ?"
		args = append(args, string(opts.Role))
	}
	query += " ORDER BY id " + direction + " LIMIT ? OFFSET ?"
	args = append(args, opts.Limit, opts.Skip)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return users, nil
}

// Update writes full_name, is_active and, when set, replaces the profile.
// Username and role are never changed.
func (r *SQLiteUserRepository) Update(ctx context.Context, user *User) error {
	if user.Profile != nil {
		if err := checkProfile(user); err != nil {
			return err
		}
	}

	now := time.Now().UTC().Truncate(time.Second)

	err := database.InTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE users SET full_name = ?, is_active = ?, updated_at = ? WHERE id = ?`,
			user.FullName, boolToInt(user.IsActive), database.FormatTime(now), user.ID,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // always succeeds on SQLite
			return ErrUserNotFound
		}
		if user.Profile == nil {
			return nil
		}
		return saveProfile(ctx, tx, user.ID, user.Profile)
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrUserNotFound):
		return err
	case database.IsForeignKeyViolation(err):
		return fmt.Errorf("%w: classroom does not exist", ErrInvalidProfile)
	default:
		return fmt.Errorf("updating user: %w", err)
	}

	user.UpdatedAt = now
	return nil
}

// UpdatePassword replaces a user's password hash.
func (r *SQLiteUserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, database.FormatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // always succeeds on SQLite
		return ErrUserNotFound
	}
	return nil
}

// Delete removes a user. Profile and session rows go with it by cascade.
func (r *SQLiteUserRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // always succeeds on SQLite
		return ErrUserNotFound
	}
	return nil
}

// Count returns the total number of users.
func (r *SQLiteUserRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return n, nil
}

func (r *SQLiteUserRepository) getUser(ctx context.Context, where string, arg any) (*User, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE "+where, arg)
	u, err := scanUser(row)
	if err != nil {
		return nil, err
	}
	if u.Profile, err = loadProfile(ctx, r.db, u.ID, u.Role); err != nil {
		return nil, err
	}
	return u, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*User, error) {
	var u User
	var role, createdAt, updatedAt string
	var isActive int

	err := s.Scan(&u.ID, &u.UUID, &u.Username, &u.PasswordHash, &u.FullName,
		&role, &isActive, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	u.Role = Role(role)
	u.IsActive = isActive != 0
	u.CreatedAt = database.ParseTime(createdAt)
	u.UpdatedAt = database.ParseTime(updatedAt)
	return &u, nil
}

// ─── Profile tables ─────────────────────────────────────────────────

const staffProfileColumns = "gender, religion, address, phone"

func profileTable(role Role) string {
	switch role {
	case RoleAdmin:
		return "admin_profiles"
	case RoleTeacher:
		return "teacher_profiles"
	default:
		return "student_profiles"
	}
}

// saveProfile inserts or replaces the profile row for userID.
func saveProfile(ctx context.Context, q database.Querier, userID int64, p ProfileDetail) error {
	var err error
	switch v := p.(type) {
	case *AdminProfile:
		err = saveStaffProfile(ctx, q, "admin_profiles", userID, &v.StaffProfile)
	case *TeacherProfile:
		err = saveStaffProfile(ctx, q, "teacher_profiles", userID, &v.StaffProfile)
	case *StudentProfile:
		_, err = q.ExecContext(ctx,
			`INSERT INTO student_profiles (user_id, `+staffProfileColumns+`, birth_place, birth_date,
				parent_name, classroom_id, qr_file, photo_file, id_card_file)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(user_id) DO UPDATE SET
				gender = excluded.gender, religion = excluded.religion,
				address = excluded.address, phone = excluded.phone,
				birth_place = excluded.birth_place, birth_date = excluded.birth_date,
				parent_name = excluded.parent_name, classroom_id = excluded.classroom_id,
				qr_file = excluded.qr_file, photo_file = excluded.photo_file,
				id_card_file = excluded.id_card_file`,
			userID, nullString(string(v.Gender)), nullString(string(v.Religion)),
			nullString(v.Address), nullString(v.Phone), nullString(v.BirthPlace),
			nullString(v.BirthDate), nullString(v.ParentName), nullInt64(v.ClassroomID),
			nullString(v.QRFile), nullString(v.PhotoFile), nullString(v.IDCardFile),
		)
	default:
		return fmt.Errorf("%w: unsupported profile type %T", ErrProfileMismatch, p)
	}
	if err != nil {
		return fmt.Errorf("saving profile: %w", err)
	}
	return nil
}

func saveStaffProfile(ctx context.Context, q database.Querier, table string, userID int64, p *StaffProfile) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO `+table+` (user_id, `+staffProfileColumns+`) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			gender = excluded.gender, religion = excluded.religion,
			address = excluded.address, phone = excluded.phone`,
		userID, nullString(string(p.Gender)), nullString(string(p.Religion)),
		nullString(p.Address), nullString(p.Phone),
	)
	return err
}

// loadProfile reads the profile row for a user. A missing row yields an
// empty variant so callers always see a profile matching the role.
func loadProfile(ctx context.Context, q database.Querier, userID int64, role Role) (ProfileDetail, error) {
	profile := NewProfile(role)
	if profile == nil {
		return nil, fmt.Errorf("%w: unknown role %q", ErrProfileMismatch, role)
	}

	var staff *StaffProfile
	var gender, religion, address, phone sql.NullString
	dest := []any{&gender, &religion, &address, &phone}
	cols := staffProfileColumns

	var birthPlace, birthDate, parentName, qr, photo, idCard sql.NullString
	var classroomID sql.NullInt64

	switch v := profile.(type) {
	case *AdminProfile:
		staff = &v.StaffProfile
	case *TeacherProfile:
		staff = &v.StaffProfile
	case *StudentProfile:
		staff = &v.StaffProfile
		cols += ", birth_place, birth_date, parent_name, classroom_id, qr_file, photo_file, id_card_file"
		dest = append(dest, &birthPlace, &birthDate, &parentName, &classroomID, &qr, &photo, &idCard)
	}

	err := q.QueryRowContext(ctx,
		"SELECT "+cols+" FROM "+profileTable(role)+" WHERE user_id = ?", userID,
	).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return profile, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s profile: %w", role, err)
	}

	staff.Gender = Gender(gender.String)
	staff.Religion = Religion(religion.String)
	staff.Address = address.String
	staff.Phone = phone.String

	if s, ok := profile.(*StudentProfile); ok {
		s.BirthPlace = birthPlace.String
		s.BirthDate = birthDate.String
		s.ParentName = parentName.String
		s.QRFile = qr.String
		s.PhotoFile = photo.String
		s.IDCardFile = idCard.String
		if classroomID.Valid {
			id := classroomID.Int64
			s.ClassroomID = &id
		}
	}
	return profile, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
