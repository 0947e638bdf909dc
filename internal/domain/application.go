package domain

import "time"

// Application 账户下的可选子作用域
//
// 多产品发行方用它来隔离卡密命名空间；每个应用持有自己的不记名令牌。
// 应用归属唯一账户，删除账户时级联删除其应用与卡密。
type Application struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID    string    `json:"userId" gorm:"type:varchar(36);index;not null"`
	Name      string    `json:"name" gorm:"type:varchar(100);not null"`
	Token     string    `json:"token" gorm:"uniqueIndex;type:varchar(64);not null"`
	CreatedAt time.Time `json:"createdAt"`
}
