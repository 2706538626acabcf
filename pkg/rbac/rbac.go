package rbac

import "strings"

// Role 用户角色
type Role string

// 角色常量
const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
	RoleSA    Role = "SA"
)

// 权限常量
const (
	PermissionProjectRead  = "project:read"
	PermissionProjectWrite = "project:write"
	PermissionTaskWrite    = "task:write"
	PermissionClientManage = "client:manage"
	PermissionUserManage   = "user:manage"
	PermissionUserRole     = "user:role"
	PermissionUserDelete   = "user:delete"
	PermissionAIUse        = "ai:use"
	PermissionOutboxReplay = "outbox:replay"
)

// 角色权限映射
var rolePermissions = map[Role][]string{
	RoleUser: {
		PermissionProjectRead,
		PermissionTaskWrite,
		PermissionAIUse,
	},
	RoleAdmin: {
		PermissionProjectRead,
		PermissionProjectWrite,
		PermissionTaskWrite,
		PermissionClientManage,
		PermissionUserManage,
		PermissionAIUse,
	},
	RoleSA: {
		PermissionProjectRead,
		PermissionProjectWrite,
		PermissionTaskWrite,
		PermissionClientManage,
		PermissionUserManage,
		PermissionUserRole,
		PermissionUserDelete,
		PermissionAIUse,
		PermissionOutboxReplay,
	},
}

// ParseRole 解析角色字符串（大小写不敏感）
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	switch r {
	case RoleUser, RoleAdmin, RoleSA:
		return r, true
	}
	return "", false
}

func (r Role) String() string {
	return string(r)
}

// Privileged ADMIN 和 SA 可以操作他人的数据
func (r Role) Privileged() bool {
	return r == RoleAdmin || r == RoleSA
}

// HasPermission 检查角色是否有指定权限
func HasPermission(role Role, permission string) bool {
	for _, p := range rolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckPermission 返回错误而不是布尔值，便于 handler 统一处理
func CheckPermission(role Role, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{
			Role:       role,
			Permission: permission,
		}
	}
	return nil
}

// PermissionDeniedError 表示权限不足的错误
type PermissionDeniedError struct {
	Role       Role
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return "insufficient permissions"
}

// Actor 当前请求的操作者，来自 access token
type Actor struct {
	ID    int64
	Email string
	Role  Role
	Name  string
}

func (a Actor) IsSA() bool {
	return a.Role == RoleSA
}

// Owns 是否为数据的所有者
func (a Actor) Owns(ownerID int64) bool {
	return a.ID == ownerID
}
