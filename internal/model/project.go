package model

import "time"

type Project struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Country   *string   `json:"country"`
	Contact   *string   `json:"contact"`
	Status    string    `json:"status"`
	ClientID  *int64    `json:"clientId"`
	UserID    int64     `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Client        *ClientRef `json:"client"`
	Tasks         []Task     `json:"tasks"`
	AssignedUsers []UserRef  `json:"assignedUsers"`
}

type ProjectRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ProjectAccess 判断 USER 可见性所需的最小信息
type ProjectAccess struct {
	ID          int64
	Name        string
	OwnerID     int64
	AssignedIDs []int64
	AssigneeIDs []int64
	TaskCount   int
}

// Visible owner、被分配成员或任务负责人可见
func (p ProjectAccess) Visible(userID int64) bool {
	if p.OwnerID == userID {
		return true
	}
	for _, id := range p.AssignedIDs {
		if id == userID {
			return true
		}
	}
	for _, id := range p.AssigneeIDs {
		if id == userID {
			return true
		}
	}
	return false
}
