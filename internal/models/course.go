package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Course is a sellable unit of content. Only published courses are purchasable.
type Course struct {
	ID          string          `json:"id" db:"id"`
	Title       string          `json:"title" db:"title"`
	Description *string         `json:"description,omitempty" db:"description"`
	Price       decimal.Decimal `json:"price" db:"price"`
	Published   bool            `json:"published" db:"published"`
	OwnerID     string          `json:"ownerId" db:"owner_id"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time       `json:"updatedAt" db:"updated_at"`
}

type Lesson struct {
	ID       string  `json:"id" db:"id"`
	CourseID string  `json:"courseId" db:"course_id"`
	Title    string  `json:"title" db:"title"`
	VideoURL *string `json:"videoUrl,omitempty" db:"video_url"`
	Position int     `json:"position" db:"position"`
}
