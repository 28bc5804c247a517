package auth

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestDecodeProfile(t *testing.T) {
	tests := []struct {
		name    string
		role    Role
		raw     string
		wantErr error
		check   func(t *testing.T, p ProfileDetail)
	}{
		{
			name: "student fields",
			role: RoleStudent,
			raw:  `{"gender":"male","birth_place":"Medan","birth_date":"2010-01-31","classroom_id":3}`,
			check: func(t *testing.T, p ProfileDetail) {
				s := p.(*StudentProfile)
				if s.Gender != GenderMale || s.BirthPlace != "Medan" || s.ClassroomID == nil || *s.ClassroomID != 3 {
					t.Errorf("got %+v", s)
				}
			},
		},
		{
			name: "empty payload yields empty variant",
			role: RoleTeacher,
			raw:  "",
			check: func(t *testing.T, p ProfileDetail) {
				if _, ok := p.(*TeacherProfile); !ok {
					t.Errorf("got %T", p)
				}
			},
		},
		{
			name: "null payload",
			role: RoleAdmin,
			raw:  "null",
			check: func(t *testing.T, p ProfileDetail) {
				if p.Role() != RoleAdmin {
					t.Errorf("Role() = %s", p.Role())
				}
			},
		},
		{name: "unknown role", role: "janitor", raw: "{}", wantErr: ErrInvalidProfile},
		{name: "bad json", role: RoleAdmin, raw: "{", wantErr: ErrInvalidProfile},
		{name: "bad religion", role: RoleAdmin, raw: `{"religion":"pastafarian"}`, wantErr: ErrInvalidProfile},
		{name: "long phone", role: RoleTeacher, raw: `{"phone":"` + strings.Repeat("9", 17) + `"}`, wantErr: ErrInvalidProfile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := DecodeProfile(tt.role, json.RawMessage(tt.raw))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("DecodeProfile() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeProfile() error = %v", err)
			}
			tt.check(t, p)
		})
	}
}

func TestUserJSONOmitsSecrets(t *testing.T) {
	u := User{
		ID:           7,
		UUID:         "u-7",
		Username:     "admin1",
		PasswordHash: "$argon2id$secret",
		Role:         RoleAdmin,
		Profile:      &AdminProfile{StaffProfile{Phone: "0811"}},
	}

	b, err := json.Marshal(u)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	out := string(b)
	if strings.Contains(out, "argon2id") || strings.Contains(out, `"id":7`) {
		t.Errorf("internal fields leaked: %s", out)
	}
	if !strings.Contains(out, `"profile":{"phone":"0811"}`) {
		t.Errorf("profile not embedded: %s", out)
	}
}
