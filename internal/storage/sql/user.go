package sql

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"astreon/backend/internal/domain"
	"astreon/backend/internal/storage"
)

// ========== User Repository ==========

const userColumns = `id, username, email, password_hash, role, is_banned, token_version,
       balance, allowed_products, created_at, updated_at, last_login_at, last_login_ip`

// CreateUser 创建新用户
func (s *Store) CreateUser(user *domain.User) error {
	products, err := json.Marshal(user.AllowedProducts)
	if err != nil {
		return err
	}

	query := s.rebind(`
		INSERT INTO users (id, username, email, password_hash, role, is_banned, token_version,
		                   balance, allowed_products, created_at, updated_at, last_login_ip)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err = s.db.Exec(query,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.IsBanned,
		user.TokenVersion,
		user.Balance,
		string(products),
		user.CreatedAt,
		user.UpdatedAt,
		user.LastLoginIP,
	)
	if isDuplicateErr(err) {
		return s.classifyUserConflict(user)
	}
	return err
}

// classifyUserConflict 区分用户名冲突与邮箱冲突
func (s *Store) classifyUserConflict(user *domain.User) error {
	if existing, err := s.GetUserByUsername(user.Username); err == nil && existing.ID != user.ID {
		return storage.ErrUsernameExists
	}
	return storage.ErrEmailExists
}

func (s *Store) scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	var user domain.User
	var products sql.NullString
	var lastLoginAt sql.NullTime
	var lastLoginIP sql.NullString

	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.IsBanned,
		&user.TokenVersion,
		&user.Balance,
		&products,
		&user.CreatedAt,
		&user.UpdatedAt,
		&lastLoginAt,
		&lastLoginIP,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrUserNotFound
		}
		return nil, err
	}

	if products.Valid && products.String != "" {
		_ = json.Unmarshal([]byte(products.String), &user.AllowedProducts)
	}
	if lastLoginAt.Valid {
		user.LastLoginAt = &lastLoginAt.Time
	}
	if lastLoginIP.Valid {
		user.LastLoginIP = lastLoginIP.String
	}
	return &user, nil
}

// GetUserByID 根据 ID 获取用户
func (s *Store) GetUserByID(id string) (*domain.User, error) {
	query := s.rebind(`SELECT ` + userColumns + ` FROM users WHERE id = ?`)
	return s.scanUser(s.db.QueryRow(query, id))
}

// GetUserByUsername 根据用户名获取用户（不区分大小写）
func (s *Store) GetUserByUsername(username string) (*domain.User, error) {
	query := s.rebind(`SELECT ` + userColumns + ` FROM users WHERE lower(username) = lower(?)`)
	return s.scanUser(s.db.QueryRow(query, username))
}

// GetUserByEmail 根据邮箱获取用户
func (s *Store) GetUserByEmail(email string) (*domain.User, error) {
	query := s.rebind(`SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower(?)`)
	return s.scanUser(s.db.QueryRow(query, email))
}

// UpdateUserProfile 更新用户名/邮箱
//
// 只写身份列；余额、角色、封禁、令牌版本走各自的定向 UPDATE，
// 整行写回会覆盖并发的账本扣费。
func (s *Store) UpdateUserProfile(user *domain.User) error {
	query := s.rebind(`UPDATE users SET username = ?, email = ?, updated_at = ? WHERE id = ?`)
	result, err := s.db.Exec(query, user.Username, user.Email, user.UpdatedAt, user.ID)
	if isDuplicateErr(err) {
		return s.classifyUserConflict(user)
	}
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return storage.ErrUserNotFound
	}
	return err
}

// execUserUpdate 执行定向用户 UPDATE，0 行命中视为用户不存在
func (s *Store) execUserUpdate(query string, args ...any) error {
	result, err := s.db.Exec(s.rebind(query), args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return storage.ErrUserNotFound
	}
	return err
}

// UpdateUserPassword 更新密码哈希并递增令牌版本
func (s *Store) UpdateUserPassword(userID, passwordHash string) error {
	return s.execUserUpdate(
		`UPDATE users SET password_hash = ?, token_version = token_version + 1, updated_at = ? WHERE id = ?`,
		passwordHash, time.Now(), userID,
	)
}

// BumpTokenVersion 原子递增令牌版本
func (s *Store) BumpTokenVersion(userID string) error {
	return s.execUserUpdate(
		`UPDATE users SET token_version = token_version + 1, updated_at = ? WHERE id = ?`,
		time.Now(), userID,
	)
}

// SetUserBanned 设置封禁标志
func (s *Store) SetUserBanned(userID string, banned bool) error {
	return s.execUserUpdate(
		`UPDATE users SET is_banned = ?, updated_at = ? WHERE id = ?`,
		banned, time.Now(), userID,
	)
}

// SetUserRole 变更角色
func (s *Store) SetUserRole(userID string, role domain.UserRole) error {
	return s.execUserUpdate(
		`UPDATE users SET role = ?, updated_at = ? WHERE id = ?`,
		string(role), time.Now(), userID,
	)
}

// SetUserBalance 写入余额（调用方需持有账户锁）
func (s *Store) SetUserBalance(userID string, balance float64) error {
	return s.execUserUpdate(
		`UPDATE users SET balance = ?, updated_at = ? WHERE id = ?`,
		balance, time.Now(), userID,
	)
}

// SetUserProducts 写入产品许可列表
func (s *Store) SetUserProducts(userID string, products []string) error {
	encoded, err := json.Marshal(products)
	if err != nil {
		return err
	}
	return s.execUserUpdate(
		`UPDATE users SET allowed_products = ?, updated_at = ? WHERE id = ?`,
		string(encoded), time.Now(), userID,
	)
}

// UpdateLastLogin 记录最近登录时间与 IP
func (s *Store) UpdateLastLogin(userID, ip string) error {
	query := s.rebind(`UPDATE users SET last_login_at = ?, last_login_ip = ? WHERE id = ?`)
	_, err := s.db.Exec(query, time.Now(), ip, userID)
	return err
}

// DeleteUser 删除用户并级联删除其卡密和应用
func (s *Store) DeleteUser(userID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(s.rebind(`DELETE FROM license_keys WHERE user_id = ?`), userID); err != nil {
		return err
	}
	if _, err := tx.Exec(s.rebind(`DELETE FROM applications WHERE user_id = ?`), userID); err != nil {
		return err
	}
	result, err := tx.Exec(s.rebind(`DELETE FROM users WHERE id = ?`), userID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrUserNotFound
	}
	return tx.Commit()
}

// ========== Admin Repository ==========

// ListUsers 分页列出用户
func (s *Store) ListUsers(page, pageSize int, search string, role *domain.UserRole) ([]domain.User, int, error) {
	var conditions []string
	var args []any

	if search != "" {
		conditions = append(conditions, `(lower(username) LIKE ? OR lower(email) LIKE ?)`)
		pattern := "%" + strings.ToLower(search) + "%"
		args = append(args, pattern, pattern)
	}
	if role != nil {
		conditions = append(conditions, `role = ?`)
		args = append(args, string(*role))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := s.rebind(`SELECT COUNT(*) FROM users` + where)
	if err := s.db.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := s.rebind(`SELECT ` + userColumns + ` FROM users` + where + ` ORDER BY created_at DESC LIMIT ? OFFSET ?`)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	users := make([]domain.User, 0, pageSize)
	for rows.Next() {
		user, err := s.scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, *user)
	}
	return users, total, rows.Err()
}

// GetSystemStatistics 全系统统计
func (s *Store) GetSystemStatistics() (*domain.SystemStatistics, error) {
	stats := &domain.SystemStatistics{}

	userQuery := s.rebind(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN role = 'admin' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN role = 'reseller' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN is_banned THEN 1 ELSE 0 END), 0)
		FROM users
	`)
	if err := s.db.QueryRow(userQuery).Scan(&stats.TotalUsers, &stats.TotalAdmins, &stats.TotalReseller, &stats.BannedUsers); err != nil {
		return nil, err
	}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM license_keys`).Scan(&stats.TotalKeys); err != nil {
		return nil, err
	}

	inviteQuery := s.rebind(`
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN is_used THEN 0 ELSE 1 END), 0)
		FROM invite_codes
	`)
	if err := s.db.QueryRow(inviteQuery).Scan(&stats.TotalInvites, &stats.UnusedInvites); err != nil {
		return nil, err
	}

	return stats, nil
}
