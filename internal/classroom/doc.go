// Package classroom stores the classroom reference table.
//
// Classrooms are referenced by student profiles. Deleting a classroom
// detaches its students (their classroom_id becomes NULL) rather than
// deleting them.
package classroom
