package model

import (
	"time"

	"taskflow/pkg/rbac"
)

const (
	StatusActive   = "Active"
	StatusInactive = "Inactive"

	ProviderLocal  = "local"
	ProviderGoogle = "google"
)

type User struct {
	ID            int64      `json:"id"`
	Email         string     `json:"email"`
	Name          string     `json:"name"`
	PasswordHash  string     `json:"-"`
	Provider      string     `json:"provider"`
	Role          rbac.Role  `json:"role"`
	Status        string     `json:"status"`
	RefreshToken  string     `json:"-"`
	ResetToken    string     `json:"-"`
	ResetTokenExp *time.Time `json:"-"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// UserRef 关联查询时嵌入的用户摘要
type UserRef struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}
