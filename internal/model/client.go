package model

import "time"

type Client struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Company   *string   `json:"company"`
	Phone     *string   `json:"phone"`
	Status    string    `json:"status"`
	UserID    int64     `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// 列表接口附带
	User     *ClientOwner `json:"user,omitempty"`
	Projects []ProjectRef `json:"projects,omitempty"`
}

type ClientOwner struct {
	Email string `json:"email"`
}

type ClientRef struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}
