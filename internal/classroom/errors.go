package classroom

import "errors"

var (
	// ErrClassroomNotFound is returned when a classroom ID does not exist.
	ErrClassroomNotFound = errors.New("classroom not found")

	// ErrClassroomExists is returned when the name is already taken.
	ErrClassroomExists = errors.New("classroom already exists")

	// ErrInvalidName is returned when a classroom name fails validation.
	ErrInvalidName = errors.New("invalid classroom name")
)
