package domain

import "time"

type User struct {
	UserID       string    `json:"id" dynamodbav:"user_id"`
	Name         string    `json:"name" dynamodbav:"name"`
	Email        string    `json:"email" dynamodbav:"email"`
	LoginID      string    `json:"login_id" dynamodbav:"login_id"`
	Role         string    `json:"role" dynamodbav:"role"`
	Phone        string    `json:"phone,omitempty" dynamodbav:"phone"`
	PasswordHash string    `json:"-" dynamodbav:"password_hash"`
	GoogleSub    string    `json:"-" dynamodbav:"google_sub"`
	CreatedAt    time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt    time.Time `json:"updated" dynamodbav:"updated_at"`
}

// DirectoryEntry maps a login ID to the account it signs in as.
// PK: login_id. Written once at signup, read-only afterwards.
type DirectoryEntry struct {
	LoginID string `json:"login_id" dynamodbav:"login_id"`
	UserID  string `json:"user_id" dynamodbav:"user_id"`
	Email   string `json:"email" dynamodbav:"email"`
	Name    string `json:"name,omitempty" dynamodbav:"name"`
}
