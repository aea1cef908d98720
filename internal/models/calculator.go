package models

import (
	"time"
)

// Calculator represents a saved calculator record
type Calculator struct {
	ID          string         `json:"id" db:"id"`
	UserID      string         `json:"user_id" db:"user_id"`
	Title       string         `json:"title" db:"title"`
	Description string         `json:"description,omitempty" db:"description"`
	Prompt      string         `json:"prompt" db:"prompt"`
	Spec        CalculatorSpec `json:"spec" db:"spec"`
	IsPublic    bool           `json:"is_public" db:"is_public"`
	IsTemplate  bool           `json:"is_template" db:"is_template"`
	Category    string         `json:"category,omitempty" db:"category"`
	Tags        []string       `json:"tags" db:"tags"`
	ViewsCount  int            `json:"views_count" db:"views_count"`
	LikesCount  int            `json:"likes_count" db:"likes_count"`
	ForksCount  int            `json:"forks_count" db:"forks_count"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
	Profile     *Profile       `json:"profile,omitempty"`

	// Viewer-relative flags, only populated for authenticated reads
	IsLiked  bool `json:"is_liked"`
	IsForked bool `json:"is_forked"`
}

// Profile is the public author summary attached to calculators
type Profile struct {
	ID        string `json:"id" db:"id"`
	Username  string `json:"username,omitempty" db:"username"`
	FullName  string `json:"full_name,omitempty" db:"full_name"`
	AvatarURL string `json:"avatar_url,omitempty" db:"avatar_url"`
}

// CreateCalculatorInput holds the fields accepted when saving a calculator
type CreateCalculatorInput struct {
	Title       string         `json:"title" binding:"required"`
	Description string         `json:"description"`
	Prompt      string         `json:"prompt"`
	Spec        CalculatorSpec `json:"spec" binding:"required"`
	IsPublic    bool           `json:"is_public"`
	IsTemplate  bool           `json:"is_template"`
	Category    string         `json:"category"`
	Tags        []string       `json:"tags"`
}

// UpdateCalculatorInput carries a partial update; nil fields are left unchanged
type UpdateCalculatorInput struct {
	Title       *string         `json:"title"`
	Description *string         `json:"description"`
	Prompt      *string         `json:"prompt"`
	Spec        *CalculatorSpec `json:"spec"`
	IsPublic    *bool           `json:"is_public"`
	IsTemplate  *bool           `json:"is_template"`
	Category    *string         `json:"category"`
	Tags        []string        `json:"tags"`
}

// ListFilter narrows a calculator listing
type ListFilter struct {
	UserID     string
	IsPublic   *bool
	IsTemplate *bool
	Category   string
	Search     string
	Limit      int
	Offset     int
}
