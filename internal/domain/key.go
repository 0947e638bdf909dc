package domain

import (
	"errors"
	"time"
)

// ErrInvalidDurationUnit 未知的时长单位
var ErrInvalidDurationUnit = errors.New("invalid duration unit")

// DurationUnit 卡密时长单位（封闭枚举，未知单位为校验错误而非回退为零）
type DurationUnit string

const (
	DurationSecond   DurationUnit = "second"
	DurationMinute   DurationUnit = "minute"
	DurationHour     DurationUnit = "hour"
	DurationDay      DurationUnit = "day"
	DurationWeek     DurationUnit = "week"
	DurationMonth    DurationUnit = "month"
	DurationLifetime DurationUnit = "lifetime"
)

// ParseDurationUnit 解析时长单位字符串
func ParseDurationUnit(s string) (DurationUnit, error) {
	u := DurationUnit(s)
	switch u {
	case DurationSecond, DurationMinute, DurationHour, DurationDay,
		DurationWeek, DurationMonth, DurationLifetime:
		return u, nil
	}
	return "", ErrInvalidDurationUnit
}

// Interval 返回单位对应的时间间隔；lifetime 返回 0
func (u DurationUnit) Interval() time.Duration {
	switch u {
	case DurationSecond:
		return time.Second
	case DurationMinute:
		return time.Minute
	case DurationHour:
		return time.Hour
	case DurationDay:
		return 24 * time.Hour
	case DurationWeek:
		return 7 * 24 * time.Hour
	case DurationMonth:
		return 30 * 24 * time.Hour
	default: // DurationLifetime
		return 0
	}
}

// ExpiryFrom 根据时长计算过期时间；lifetime 返回 nil（永不过期）
func ExpiryFrom(start time.Time, unit DurationUnit, amount int) *time.Time {
	if unit == DurationLifetime {
		return nil
	}
	t := start.Add(time.Duration(amount) * unit.Interval())
	return &t
}

// KeyStatus 卡密生命周期状态，只在读取时派生，从不持久化
type KeyStatus string

const (
	StatusActive  KeyStatus = "Active"
	StatusUsed    KeyStatus = "Used"
	StatusExpired KeyStatus = "Expired"
	StatusFrozen  KeyStatus = "Frozen"
)

// LicenseKey 表示一条卡密记录
//
// ExpiresAt 在创建时一次性派生，此后不可变（addtime 除外，见 KeyService）。
// HWID 在一个重置周期内只允许 nil → 已绑定 一次跃迁。
type LicenseKey struct {
	ID             string       `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Key            string       `json:"key" gorm:"column:key_value;uniqueIndex;type:varchar(128);not null"`
	UserID         string       `json:"userId" gorm:"type:varchar(36);index;not null"`
	ApplicationID  *string      `json:"applicationId,omitempty" gorm:"type:varchar(36);index"`
	Product        string       `json:"product,omitempty" gorm:"type:varchar(100);index"`
	DurationUnit   DurationUnit `json:"duration" gorm:"type:varchar(10)"`
	DurationAmount int          `json:"amount"`
	CreatedAt      time.Time    `json:"createdAt"`
	ExpiresAt      *time.Time   `json:"expiresAt,omitempty"`
	HWID           *string      `json:"hwid,omitempty" gorm:"type:varchar(255)"`
	UsedBy         *string      `json:"usedBy,omitempty" gorm:"type:varchar(255)"`
	UsedAt         *time.Time   `json:"usedAt,omitempty"`
	LastCheckAt    *time.Time   `json:"lastCheckAt,omitempty"`
	LastIP         string       `json:"lastIp,omitempty" gorm:"type:varchar(45)"`
	Frozen         bool         `json:"frozen" gorm:"default:false"`
	CreatedBy      string       `json:"createdBy" gorm:"type:varchar(36)"`
}

// Status 派生卡密状态，是 (frozen, usedBy, expiresAt, now) 的纯函数
//
// 优先级：Frozen > Used > Expired > Active。
// 已使用且已过期的卡密仍报告 Used，使用历史不被后续过期掩盖。
func (k *LicenseKey) Status(now time.Time) KeyStatus {
	if k.Frozen {
		return StatusFrozen
	}
	if k.UsedBy != nil {
		return StatusUsed
	}
	if k.ExpiredAt(now) {
		return StatusExpired
	}
	return StatusActive
}

// ExpiredAt 判断卡密在指定时间点是否已过期
func (k *LicenseKey) ExpiredAt(now time.Time) bool {
	return k.ExpiresAt != nil && k.ExpiresAt.Before(now)
}
