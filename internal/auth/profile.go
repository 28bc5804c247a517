package auth

import (
	"encoding/json"
	"fmt"
	"time"
)

// Gender values accepted in profile details.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// Religion values accepted in profile details.
type Religion string

const (
	ReligionIslam      Religion = "islam"
	ReligionProtestant Religion = "protestant"
	ReligionCatholic   Religion = "catholic"
	ReligionHindu      Religion = "hindu"
	ReligionBuddhist   Religion = "buddhist"
	ReligionConfucian  Religion = "confucian"
)

var validReligions = map[Religion]struct{}{
	ReligionIslam: {}, ReligionProtestant: {}, ReligionCatholic: {},
	ReligionHindu: {}, ReligionBuddhist: {}, ReligionConfucian: {},
}

// Profile field limits.
const (
	maxAddressLength  = 255
	maxPhoneLength    = 16
	maxNameLength     = 128
	maxFileNameLength = 255

	birthDateLayout = "2006-01-02"
)

// ProfileDetail is the role-specific part of a user. Exactly one variant
// exists per user and its Role must equal the user's role.
type ProfileDetail interface {
	Role() Role
	Validate() error
}

// StaffProfile holds the fields shared by every variant.
type StaffProfile struct {
	Gender   Gender   `json:"gender,omitempty"`
	Religion Religion `json:"religion,omitempty"`
	Address  string   `json:"address,omitempty"`
	Phone    string   `json:"phone,omitempty"`
}

// AdminProfile is the detail record of an admin.
type AdminProfile struct {
	StaffProfile
}

// TeacherProfile is the detail record of a teacher.
type TeacherProfile struct {
	StaffProfile
}

// StudentProfile is the detail record of a student.
type StudentProfile struct {
	StaffProfile
	BirthPlace  string `json:"birth_place,omitempty"`
	BirthDate   string `json:"birth_date,omitempty"` // YYYY-MM-DD
	ParentName  string `json:"parent_name,omitempty"`
	ClassroomID *int64 `json:"classroom_id,omitempty"`
	QRFile      string `json:"qr_file,omitempty"`
	PhotoFile   string `json:"photo_file,omitempty"`
	IDCardFile  string `json:"id_card_file,omitempty"`
}

func (*AdminProfile) Role() Role   { return RoleAdmin }
func (*TeacherProfile) Role() Role { return RoleTeacher }
func (*StudentProfile) Role() Role { return RoleStudent }

func (p *AdminProfile) Validate() error   { return p.StaffProfile.validate() }
func (p *TeacherProfile) Validate() error { return p.StaffProfile.validate() }

// Validate checks the student-specific fields on top of the shared ones.
func (p *StudentProfile) Validate() error {
	if err := p.StaffProfile.validate(); err != nil {
		return err
	}
	if p.BirthDate != "" {
		if _, err := time.Parse(birthDateLayout, p.BirthDate); err != nil {
			return fmt.Errorf("%w: birth_date must be YYYY-MM-DD", ErrInvalidProfile)
		}
	}
	if len(p.BirthPlace) > maxNameLength || len(p.ParentName) > maxNameLength {
		return fmt.Errorf("%w: name fields exceed %d characters", ErrInvalidProfile, maxNameLength)
	}
	for _, f := range []string{p.QRFile, p.PhotoFile, p.IDCardFile} {
		if len(f) > maxFileNameLength {
			return fmt.Errorf("%w: file name exceeds %d characters", ErrInvalidProfile, maxFileNameLength)
		}
	}
	return nil
}

func (p *StaffProfile) validate() error {
	if p.Gender != "" && p.Gender != GenderMale && p.Gender != GenderFemale {
		return fmt.Errorf("%w: gender must be male or female", ErrInvalidProfile)
	}
	if p.Religion != "" {
		if _, ok := validReligions[p.Religion]; !ok {
			return fmt.Errorf("%w: unknown religion %q", ErrInvalidProfile, p.Religion)
		}
	}
	if len(p.Address) > maxAddressLength {
		return fmt.Errorf("%w: address exceeds %d characters", ErrInvalidProfile, maxAddressLength)
	}
	if len(p.Phone) > maxPhoneLength {
		return fmt.Errorf("%w: phone exceeds %d characters", ErrInvalidProfile, maxPhoneLength)
	}
	return nil
}

// NewProfile returns an empty detail variant for the role, or nil if the
// role is unknown.
func NewProfile(role Role) ProfileDetail {
	switch role {
	case RoleAdmin:
		return &AdminProfile{}
	case RoleTeacher:
		return &TeacherProfile{}
	case RoleStudent:
		return &StudentProfile{}
	default:
		return nil
	}
}

// DecodeProfile unmarshals raw JSON into the variant selected by role.
// An empty payload yields an empty variant.
func DecodeProfile(role Role, raw json.RawMessage) (ProfileDetail, error) {
	p := NewProfile(role)
	if p == nil {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidProfile, role)
	}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, p); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidProfile, err)
		}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// checkProfile enforces the one-variant-per-role rule, filling in an empty
// variant when none is set.
func checkProfile(user *User) error {
	if user.Profile == nil {
		user.Profile = NewProfile(user.Role)
		if user.Profile == nil {
			return fmt.Errorf("%w: unknown role %q", ErrProfileMismatch, user.Role)
		}
		return nil
	}
	if user.Profile.Role() != user.Role {
		return fmt.Errorf("%w: %s profile on %s account", ErrProfileMismatch, user.Profile.Role(), user.Role)
	}
	return user.Profile.Validate()
}
