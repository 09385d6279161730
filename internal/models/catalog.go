package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Course struct {
	ID           int64           `json:"id"`
	Slug         string          `json:"slug"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	InstructorID int64           `json:"instructor_id"`
	Level        string          `json:"level"`
	Price        decimal.Decimal `json:"price"`
	Published    bool            `json:"published"`
	Modules      []Module        `json:"modules,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

type Module struct {
	ID       int64    `json:"id"`
	CourseID int64    `json:"course_id"`
	Title    string   `json:"title"`
	Position int      `json:"position"`
	Lessons  []Lesson `json:"lessons,omitempty"`
}

type Lesson struct {
	ID              int64  `json:"id"`
	ModuleID        int64  `json:"module_id"`
	Title           string `json:"title"`
	VideoURL        string `json:"video_url,omitempty"`
	DurationSeconds int    `json:"duration_seconds"`
	Position        int    `json:"position"`
}

// Resource is a downloadable curriculum item sold in the storefront.
type Resource struct {
	ID          int64           `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	FileKey     string          `json:"-"`
	Published   bool            `json:"published"`
	CreatedAt   time.Time       `json:"created_at"`
}

type Certificate struct {
	ID               int64     `json:"id"`
	UserID           int64     `json:"user_id"`
	CourseID         int64     `json:"course_id"`
	CourseTitle      string    `json:"course_title"`
	RecipientName    string    `json:"recipient_name"`
	VerificationCode string    `json:"verification_code"`
	IssuedAt         time.Time `json:"issued_at"`
}
