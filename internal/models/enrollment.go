package models

import "time"

// Enrollment records a student's right to access a course's lessons. The
// (user_id, course_id) pair is unique; the row's existence is the idempotency
// key for repeat purchase attempts.
type Enrollment struct {
	UserID    string    `json:"userId" db:"user_id"`
	CourseID  string    `json:"courseId" db:"course_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// EnrolledCourse is an enrollment joined to its course for listing.
type EnrolledCourse struct {
	Course
	EnrolledAt time.Time `json:"enrolledAt" db:"enrolled_at"`
}
