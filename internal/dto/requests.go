package dto

// auth

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Name     string `json:"name" binding:"omitempty,min=2"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required,min=6"`
}

type GoogleTokenRequest struct {
	Token string `json:"token"`
}

// users

type CreateUserRequest struct {
	Name     string `json:"name" binding:"required,min=2"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Role     string `json:"role" binding:"omitempty,oneof=USER ADMIN SA"`
	Status   string `json:"status" binding:"omitempty,oneof=Active Inactive"`
}

type UpdateUserRequest struct {
	Name   *string `json:"name" binding:"omitempty,min=2"`
	Role   *string `json:"role" binding:"omitempty,oneof=USER ADMIN SA"`
	Status *string `json:"status" binding:"omitempty,oneof=Active Inactive"`
}

type UpdateUserStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=Active Inactive"`
}

type UpdateUserRoleRequest struct {
	Role string `json:"role" binding:"required,oneof=USER ADMIN SA"`
}

// clients

type CreateClientRequest struct {
	Name    string  `json:"name" binding:"required"`
	Email   string  `json:"email" binding:"required,email"`
	Company *string `json:"company"`
	Phone   *string `json:"phone"`
	Status  string  `json:"status" binding:"omitempty,oneof=Active Inactive"`
}

type UpdateClientRequest struct {
	Name    *string `json:"name" binding:"omitempty,min=1"`
	Email   *string `json:"email" binding:"omitempty,email"`
	Company *string `json:"company"`
	Phone   *string `json:"phone"`
	Status  *string `json:"status" binding:"omitempty,oneof=Active Inactive"`
}

// projects

type CreateProjectRequest struct {
	Name            string  `json:"name" binding:"required,min=2"`
	ClientID        *int64  `json:"clientId" binding:"omitempty,gt=0"`
	Country         *string `json:"country"`
	Contact         *string `json:"contact" binding:"omitempty,email"`
	Status          *string `json:"status" binding:"omitempty,oneof=Active Inactive"`
	AssignedUserIDs []int64 `json:"assignedUserIds" binding:"omitempty,dive,gt=0"`
}

type UpdateProjectRequest struct {
	Name     *string `json:"name" binding:"omitempty,min=2"`
	ClientID *int64  `json:"clientId" binding:"omitempty,gt=0"`
	Country  *string `json:"country"`
	Contact  *string `json:"contact" binding:"omitempty,email"`
	Status   *string `json:"status" binding:"omitempty,oneof=Active Inactive"`
	// nil 表示不修改成员
	AssignedUserIDs *[]int64 `json:"assignedUserIds"`
}

// tasks

type CreateTaskRequest struct {
	Title          string  `json:"title" binding:"required,min=2"`
	Description    *string `json:"description"`
	ProjectID      int64   `json:"projectId" binding:"required,gt=0"`
	ClientID       *int64  `json:"clientId" binding:"omitempty,gt=0"`
	AssigneeID     *int64  `json:"assigneeId" binding:"omitempty,gt=0"`
	StartDate      *string `json:"startDate"`
	EndDate        *string `json:"endDate"`
	EstimatedHours *int    `json:"estimatedHours"`
	TimeSpentHours *int    `json:"timeSpentHours"`
	Progress       *int    `json:"progress" binding:"omitempty,min=0,max=100"`
	Status         *string `json:"status"`
}

type UpdateTaskRequest struct {
	Title          *string    `json:"title" binding:"omitempty,min=2"`
	Description    *string    `json:"description"`
	Done           *bool      `json:"done"`
	Status         *string    `json:"status"`
	StartDate      *string    `json:"startDate"`
	EndDate        *string    `json:"endDate"`
	EstimatedHours *int       `json:"estimatedHours"`
	TimeSpentHours *int       `json:"timeSpentHours"`
	Progress       *int       `json:"progress" binding:"omitempty,min=0,max=100"`
	AssigneeID     OptionalID `json:"assigneeId"`
	ClientID       OptionalID `json:"clientId"`
}

// results / ai

type CreateResultRequest struct {
	Type    string `json:"type"`
	Preview string `json:"preview"`
	Status  string `json:"status"`
}

type TextRequest struct {
	Text string `json:"text"`
}
