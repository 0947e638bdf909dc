package domain

import "time"

// UserRole 账户角色
type UserRole string

const (
	RoleStandard UserRole = "standard"
	RoleReseller UserRole = "reseller"
	RoleAdmin    UserRole = "admin"
)

// ValidRole 判断角色是否合法
func ValidRole(r UserRole) bool {
	switch r {
	case RoleStandard, RoleReseller, RoleAdmin:
		return true
	}
	return false
}

// User 表示注册账户的业务实体
//
// TokenVersion 用于服务端吊销令牌：踢出（kick）、封禁或修改密码时递增，
// 旧令牌携带的版本号不再匹配即失效。
type User struct {
	ID           string   `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Username     string   `json:"username" gorm:"uniqueIndex;type:varchar(100);not null"`
	Email        string   `json:"email" gorm:"uniqueIndex;type:varchar(255);not null"`
	PasswordHash string   `json:"-" gorm:"type:varchar(255)"` // 不返回给前端
	Role         UserRole `json:"role" gorm:"type:varchar(20);default:'standard';index"`
	IsBanned     bool     `json:"isBanned" gorm:"default:false"`
	TokenVersion int      `json:"-" gorm:"default:0"`

	// 经销商字段（仅 Role == reseller 时有意义）
	Balance         float64  `json:"balance" gorm:"type:decimal(10,2);default:0"`
	AllowedProducts []string `json:"allowedProducts" gorm:"serializer:json"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	LastLoginIP string     `json:"lastLoginIp,omitempty" gorm:"type:varchar(45)"`
}

// IsAdmin 判断账户是否为管理员
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// IsReseller 判断账户是否为经销商
func (u *User) IsReseller() bool {
	return u.Role == RoleReseller
}

// CanIssueProduct 判断经销商是否有权签发指定产品的卡密
func (u *User) CanIssueProduct(product string) bool {
	for _, p := range u.AllowedProducts {
		if p == product {
			return true
		}
	}
	return false
}
