package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// InviteCode 单次使用的注册邀请码
//
// 明文只在生成时返回一次，存储层仅保存哈希。
// IsUsed 单调：只允许 false → true 一次跃迁。
type InviteCode struct {
	ID        string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	CodeHash  string     `json:"hash" gorm:"uniqueIndex;type:varchar(64);not null"`
	IsUsed    bool       `json:"isUsed" gorm:"default:false"`
	UsedBy    *string    `json:"usedBy,omitempty" gorm:"type:varchar(100)"`
	CreatedAt time.Time  `json:"createdAt"`
	UsedAt    *time.Time `json:"usedAt,omitempty"`
	CreatedBy string     `json:"-" gorm:"type:varchar(36)"`
}

// HashInviteCode 计算邀请码的存储哈希
//
// 需要按哈希查找，所以用确定性的 SHA-256 而非加盐哈希。
func HashInviteCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
