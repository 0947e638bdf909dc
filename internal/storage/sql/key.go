package sql

import (
	"database/sql"
	"errors"
	"time"

	"astreon/backend/internal/domain"
	"astreon/backend/internal/storage"
)

// ========== Key Repository ==========

const keyColumns = `id, key_value, user_id, application_id, product, duration_unit, duration_amount,
       created_at, expires_at, hwid, used_by, used_at, last_check_at, last_ip, frozen, created_by`

// SaveKey 保存新卡密（卡密字符串全局唯一）
func (s *Store) SaveKey(key *domain.LicenseKey) error {
	query := s.rebind(`
		INSERT INTO license_keys (id, key_value, user_id, application_id, product, duration_unit,
		                          duration_amount, created_at, expires_at, frozen, created_by, last_ip)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := s.db.Exec(query,
		key.ID,
		key.Key,
		key.UserID,
		key.ApplicationID,
		key.Product,
		key.DurationUnit,
		key.DurationAmount,
		key.CreatedAt,
		key.ExpiresAt,
		key.Frozen,
		key.CreatedBy,
		key.LastIP,
	)
	if isDuplicateErr(err) {
		return storage.ErrKeyExists
	}
	return err
}

func (s *Store) scanKey(row interface{ Scan(...any) error }) (*domain.LicenseKey, error) {
	var key domain.LicenseKey
	var appID, hwid, usedBy, lastIP sql.NullString
	var expiresAt, usedAt, lastCheckAt sql.NullTime

	err := row.Scan(
		&key.ID,
		&key.Key,
		&key.UserID,
		&appID,
		&key.Product,
		&key.DurationUnit,
		&key.DurationAmount,
		&key.CreatedAt,
		&expiresAt,
		&hwid,
		&usedBy,
		&usedAt,
		&lastCheckAt,
		&lastIP,
		&key.Frozen,
		&key.CreatedBy,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrKeyNotFound
		}
		return nil, err
	}

	if appID.Valid {
		key.ApplicationID = &appID.String
	}
	if hwid.Valid {
		key.HWID = &hwid.String
	}
	if usedBy.Valid {
		key.UsedBy = &usedBy.String
	}
	if expiresAt.Valid {
		key.ExpiresAt = &expiresAt.Time
	}
	if usedAt.Valid {
		key.UsedAt = &usedAt.Time
	}
	if lastCheckAt.Valid {
		key.LastCheckAt = &lastCheckAt.Time
	}
	if lastIP.Valid {
		key.LastIP = lastIP.String
	}
	return &key, nil
}

// GetKeyByValue 根据卡密字符串获取记录
func (s *Store) GetKeyByValue(value string) (*domain.LicenseKey, error) {
	query := s.rebind(`SELECT ` + keyColumns + ` FROM license_keys WHERE key_value = ?`)
	return s.scanKey(s.db.QueryRow(query, value))
}

func (s *Store) listKeys(query string, arg string) ([]domain.LicenseKey, error) {
	rows, err := s.db.Query(query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []domain.LicenseKey
	for rows.Next() {
		key, err := s.scanKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, *key)
	}
	return keys, rows.Err()
}

// ListKeysByUserID 返回账户持有的全部卡密
func (s *Store) ListKeysByUserID(userID string) ([]domain.LicenseKey, error) {
	query := s.rebind(`SELECT ` + keyColumns + ` FROM license_keys WHERE user_id = ? ORDER BY created_at DESC`)
	return s.listKeys(query, userID)
}

// ListKeysByCreator 返回账户签发的全部卡密
func (s *Store) ListKeysByCreator(creatorID string) ([]domain.LicenseKey, error) {
	query := s.rebind(`SELECT ` + keyColumns + ` FROM license_keys WHERE created_by = ? ORDER BY created_at DESC`)
	return s.listKeys(query, creatorID)
}

// UpdateKey 更新卡密
func (s *Store) UpdateKey(key *domain.LicenseKey) error {
	query := s.rebind(`
		UPDATE license_keys
		SET application_id = ?, product = ?, duration_unit = ?, duration_amount = ?,
		    expires_at = ?, hwid = ?, used_by = ?, used_at = ?, last_check_at = ?,
		    last_ip = ?, frozen = ?
		WHERE key_value = ?
	`)
	result, err := s.db.Exec(query,
		key.ApplicationID,
		key.Product,
		key.DurationUnit,
		key.DurationAmount,
		key.ExpiresAt,
		key.HWID,
		key.UsedBy,
		key.UsedAt,
		key.LastCheckAt,
		key.LastIP,
		key.Frozen,
		key.Key,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return storage.ErrKeyNotFound
	}
	return err
}

// DeleteKey 删除卡密
func (s *Store) DeleteKey(value string) error {
	result, err := s.db.Exec(s.rebind(`DELETE FROM license_keys WHERE key_value = ?`), value)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return storage.ErrKeyNotFound
	}
	return err
}

// BindHwid 首次硬件绑定
//
// 条件更新：WHERE hwid IS NULL 让数据库裁决并发竞争，
// 恰好一个事务影响行数为 1，其余返回 ErrHwidBound。
func (s *Store) BindHwid(value, hwid, ip string, now time.Time) error {
	query := s.rebind(`
		UPDATE license_keys
		SET hwid = ?, used_by = ?, used_at = ?, last_check_at = ?,
		    last_ip = COALESCE(NULLIF(?, ''), last_ip)
		WHERE key_value = ? AND hwid IS NULL
	`)
	result, err := s.db.Exec(query, hwid, hwid, now, now, ip, value)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}

	// 没有命中：要么卡密不存在，要么已被抢先绑定
	if _, err := s.GetKeyByValue(value); err != nil {
		return err
	}
	_ = s.TouchKeyCheck(value, ip, now)
	return storage.ErrHwidBound
}

// TouchKeyCheck 更新校验簿记；ip 为空时保留上一次记录的 IP
func (s *Store) TouchKeyCheck(value, ip string, now time.Time) error {
	query := s.rebind(`
		UPDATE license_keys
		SET last_check_at = ?, last_ip = COALESCE(NULLIF(?, ''), last_ip)
		WHERE key_value = ?
	`)
	result, err := s.db.Exec(query, now, ip, value)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return storage.ErrKeyNotFound
	}
	return err
}
