package auth

import (
	"context"
	"errors"
	"testing"
)

func TestUserRepository_CreateAndGet(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := &User{
		Username:     "teacher.one",
		FullName:     "Teacher One",
		PasswordHash: testPasswordHash(t),
		Role:         RoleTeacher,
		IsActive:     true,
		Profile: &TeacherProfile{StaffProfile{
			Gender: GenderFemale, Religion: ReligionCatholic, Address: "Jl. Merdeka 1", Phone: "0812",
		}},
	}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if user.ID == 0 || user.UUID == "" {
		t.Fatalf("Create() should assign id and uuid, got %d / %q", user.ID, user.UUID)
	}

	for name, get := range map[string]func() (*User, error){
		"GetByID":       func() (*User, error) { return repo.GetByID(ctx, user.ID) },
		"GetByUUID":     func() (*User, error) { return repo.GetByUUID(ctx, user.UUID) },
		"GetByUsername": func() (*User, error) { return repo.GetByUsername(ctx, "teacher.one") },
	} {
		t.Run(name, func(t *testing.T) {
			got, err := get()
			if err != nil {
				t.Fatalf("%s() error = %v", name, err)
			}
			if got.FullName != "Teacher One" || got.Role != RoleTeacher || !got.IsActive {
				t.Errorf("got %+v", got)
			}
			p, ok := got.Profile.(*TeacherProfile)
			if !ok {
				t.Fatalf("Profile = %T, want *TeacherProfile", got.Profile)
			}
			if p.Gender != GenderFemale || p.Religion != ReligionCatholic || p.Phone != "0812" {
				t.Errorf("profile = %+v", p)
			}
		})
	}
}

func TestUserRepository_CreateDefaultsEmptyProfile(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := seedTestUser(t, db, "student1", RoleStudent)

	got, err := repo.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if _, ok := got.Profile.(*StudentProfile); !ok {
		t.Errorf("Profile = %T, want *StudentProfile", got.Profile)
	}

	var rows int
	if err := db.QueryRow("SELECT COUNT(*) FROM student_profiles WHERE user_id = ?", user.ID).Scan(&rows); err != nil {
		t.Fatalf("count profiles: %v", err)
	}
	if rows != 1 {
		t.Errorf("student_profiles rows = %d, want 1", rows)
	}
}

func TestUserRepository_ProfileMismatch(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := &User{
		Username:     "mixed",
		FullName:     "Mixed Up",
		PasswordHash: testPasswordHash(t),
		Role:         RoleAdmin,
		Profile:      &StudentProfile{BirthPlace: "Bandung"},
	}
	if err := repo.Create(ctx, user); !errors.Is(err, ErrProfileMismatch) {
		t.Fatalf("Create() error = %v, want ErrProfileMismatch", err)
	}
	if n, _ := repo.Count(ctx); n != 0 {
		t.Errorf("Count() = %d, want 0 after rejected create", n)
	}

	admin := seedTestUser(t, db, "admin1", RoleAdmin)
	admin.Profile = &TeacherProfile{}
	if err := repo.Update(ctx, admin); !errors.Is(err, ErrProfileMismatch) {
		t.Errorf("Update() error = %v, want ErrProfileMismatch", err)
	}
}

func TestUserRepository_CreateValidation(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	tests := []struct {
		name string
		user User
		want error
	}{
		{"bad username", User{Username: "has space", Role: RoleAdmin}, ErrInvalidUsername},
		{"long username", User{Username: "abcdefghijklmnopqrstuvwxyz0123456", Role: RoleAdmin}, ErrInvalidUsername},
		{"unknown role", User{Username: "ghost", Role: "janitor"}, ErrInvalidRole},
		{"bad gender", User{Username: "g", Role: RoleTeacher, Profile: &TeacherProfile{StaffProfile{Gender: "x"}}}, ErrInvalidProfile},
		{"bad birth date", User{Username: "s", Role: RoleStudent, Profile: &StudentProfile{BirthDate: "01-02-2010"}}, ErrInvalidProfile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := tt.user
			u.PasswordHash = "x"
			if err := repo.Create(ctx, &u); !errors.Is(err, tt.want) {
				t.Errorf("Create() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestUserRepository_DuplicateUsername(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	seedTestUser(t, db, "dupe", RoleTeacher)

	err := repo.Create(ctx, &User{Username: "dupe", FullName: "Again", PasswordHash: "x", Role: RoleStudent})
	if !errors.Is(err, ErrUsernameExists) {
		t.Fatalf("Create() error = %v, want ErrUsernameExists", err)
	}

	// The failed insert must not leave an orphaned profile row.
	var profiles int
	db.QueryRow("SELECT COUNT(*) FROM student_profiles").Scan(&profiles) //nolint:errcheck // checked via value
	if profiles != 0 {
		t.Errorf("student_profiles rows = %d, want 0", profiles)
	}
}

func TestUserRepository_StudentClassroom(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	classID := insertClassroom(t, db, "X-IPA-1")

	student := &User{
		Username:     "siswa",
		FullName:     "Siswa Satu",
		PasswordHash: testPasswordHash(t),
		Role:         RoleStudent,
		IsActive:     true,
		Profile: &StudentProfile{
			BirthPlace:  "Surabaya",
			BirthDate:   "2009-05-17",
			ParentName:  "Budi",
			ClassroomID: &classID,
		},
	}
	if err := repo.Create(ctx, student); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.GetByUUID(ctx, student.UUID)
	if err != nil {
		t.Fatalf("GetByUUID() error = %v", err)
	}
	p := got.Profile.(*StudentProfile)
	if p.ClassroomID == nil || *p.ClassroomID != classID || p.BirthDate != "2009-05-17" {
		t.Errorf("profile = %+v", p)
	}

	missing := int64(999)
	err = repo.Create(ctx, &User{
		Username: "orphan", FullName: "Orphan", PasswordHash: "x", Role: RoleStudent,
		Profile: &StudentProfile{ClassroomID: &missing},
	})
	if !errors.Is(err, ErrInvalidProfile) {
		t.Errorf("Create() with unknown classroom error = %v, want ErrInvalidProfile", err)
	}

	// Deleting the classroom detaches the student rather than deleting them.
	if _, err := db.Exec("DELETE FROM classrooms WHERE id = ?", classID); err != nil {
		t.Fatalf("deleting classroom: %v", err)
	}
	got, err = repo.GetByID(ctx, student.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Profile.(*StudentProfile).ClassroomID != nil {
		t.Error("classroom_id should be NULL after classroom delete")
	}
}

func TestUserRepository_Update(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := seedTestUser(t, db, "editor", RoleTeacher)

	user.FullName = "Renamed"
	user.IsActive = false
	user.Profile = nil // keep existing profile
	if err := repo.Update(ctx, user); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := repo.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.FullName != "Renamed" || got.IsActive {
		t.Errorf("got FullName=%q IsActive=%v", got.FullName, got.IsActive)
	}

	got.Profile = &TeacherProfile{StaffProfile{Address: "New address"}}
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("Update() with profile error = %v", err)
	}
	again, _ := repo.GetByID(ctx, user.ID)
	if again.Profile.(*TeacherProfile).Address != "New address" {
		t.Errorf("profile not replaced: %+v", again.Profile)
	}

	missing := &User{ID: 12345, FullName: "Nobody"}
	if err := repo.Update(ctx, missing); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Update() on missing user error = %v, want ErrUserNotFound", err)
	}
}

func TestUserRepository_UpdatePassword(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := seedTestUser(t, db, "pwuser", RoleStudent)

	newHash, err := HashPassword("another-password")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if err := repo.UpdatePassword(ctx, user.ID, newHash); err != nil {
		t.Fatalf("UpdatePassword() error = %v", err)
	}

	got, _ := repo.GetByID(ctx, user.ID)
	if !VerifyPassword("another-password", got.PasswordHash) {
		t.Error("new password should verify")
	}
	if err := repo.UpdatePassword(ctx, 999, newHash); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("UpdatePassword() on missing user error = %v, want ErrUserNotFound", err)
	}
}

func TestUserRepository_List(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	for _, name := range []string{"u1", "u2", "u3", "u4"} {
		seedTestUser(t, db, name, RoleStudent)
	}
	seedTestUser(t, db, "t1", RoleTeacher)

	asc, err := repo.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(asc) != 5 || asc[0].Username != "u1" {
		t.Fatalf("List() = %d users, first %q", len(asc), asc[0].Username)
	}

	page, err := repo.List(ctx, ListOptions{Skip: 1, Limit: 2, Order: SortDesc})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(page) != 2 || page[0].Username != "u4" || page[1].Username != "u3" {
		t.Errorf("desc page = %v", usernames(page))
	}

	teachers, err := repo.List(ctx, ListOptions{Role: RoleTeacher})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(teachers) != 1 || teachers[0].Username != "t1" {
		t.Errorf("teachers = %v", usernames(teachers))
	}

	empty, err := repo.List(ctx, ListOptions{Skip: 100})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("List() past the end = %v, want empty slice", empty)
	}
}

func TestUserRepository_DeleteCascades(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ledger := NewSessionLedger(db)
	ctx := context.Background()

	user := seedTestUser(t, db, "leaver", RoleStudent)
	if _, err := ledger.Upsert(ctx, user.ID, "refresh-token", hour); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if err := repo.Delete(ctx, user.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.GetByID(ctx, user.ID); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetByID() after delete error = %v, want ErrUserNotFound", err)
	}
	if _, err := ledger.Get(ctx, user.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("session should be removed by cascade, got %v", err)
	}

	var profiles int
	db.QueryRow("SELECT COUNT(*) FROM student_profiles WHERE user_id = ?", user.ID).Scan(&profiles) //nolint:errcheck // checked via value
	if profiles != 0 {
		t.Errorf("profile rows = %d, want 0", profiles)
	}

	if err := repo.Delete(ctx, user.ID); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("second Delete() error = %v, want ErrUserNotFound", err)
	}
}

func TestParseSortOrder(t *testing.T) {
	tests := []struct {
		in     string
		want   SortOrder
		wantOK bool
	}{
		{"", SortAsc, true},
		{"asc", SortAsc, true},
		{"DESC", SortDesc, true},
		{"sideways", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseSortOrder(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseSortOrder(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func usernames(users []User) []string {
	out := make([]string, len(users))
	for i, u := range users {
		out[i] = u.Username
	}
	return out
}
