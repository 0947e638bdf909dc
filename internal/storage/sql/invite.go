package sql

import (
	"database/sql"
	"errors"
	"time"

	"astreon/backend/internal/domain"
	"astreon/backend/internal/storage"
)

// ========== Invite Repository ==========

const inviteColumns = `id, code_hash, is_used, used_by, created_at, used_at, created_by`

// SaveInvite 保存新邀请码（只存哈希）
func (s *Store) SaveInvite(invite *domain.InviteCode) error {
	query := s.rebind(`
		INSERT INTO invite_codes (id, code_hash, is_used, created_at, created_by)
		VALUES (?, ?, ?, ?, ?)
	`)
	_, err := s.db.Exec(query,
		invite.ID,
		invite.CodeHash,
		invite.IsUsed,
		invite.CreatedAt,
		invite.CreatedBy,
	)
	return err
}

func (s *Store) scanInvite(row interface{ Scan(...any) error }) (*domain.InviteCode, error) {
	var invite domain.InviteCode
	var usedBy sql.NullString
	var usedAt sql.NullTime

	err := row.Scan(
		&invite.ID,
		&invite.CodeHash,
		&invite.IsUsed,
		&usedBy,
		&invite.CreatedAt,
		&usedAt,
		&invite.CreatedBy,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrInviteNotFound
		}
		return nil, err
	}

	if usedBy.Valid {
		invite.UsedBy = &usedBy.String
	}
	if usedAt.Valid {
		invite.UsedAt = &usedAt.Time
	}
	return &invite, nil
}

// GetInviteByHash 根据哈希获取邀请码
func (s *Store) GetInviteByHash(hash string) (*domain.InviteCode, error) {
	query := s.rebind(`SELECT ` + inviteColumns + ` FROM invite_codes WHERE code_hash = ?`)
	return s.scanInvite(s.db.QueryRow(query, hash))
}

// ListInvites 列出全部邀请码（未使用在前，新的在前）
func (s *Store) ListInvites() ([]domain.InviteCode, error) {
	query := `SELECT ` + inviteColumns + ` FROM invite_codes ORDER BY is_used ASC, created_at DESC`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invites []domain.InviteCode
	for rows.Next() {
		invite, err := s.scanInvite(rows)
		if err != nil {
			return nil, err
		}
		invites = append(invites, *invite)
	}
	return invites, rows.Err()
}

// DeleteInvite 删除邀请码
func (s *Store) DeleteInvite(hash string) error {
	result, err := s.db.Exec(s.rebind(`DELETE FROM invite_codes WHERE code_hash = ?`), hash)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return storage.ErrInviteNotFound
	}
	return err
}

// MarkInviteUsed 单调置位
//
// WHERE is_used = FALSE 由数据库裁决竞争：并发注册同一邀请码时
// 恰好一个更新生效。
func (s *Store) MarkInviteUsed(hash, usedBy string, now time.Time) error {
	query := s.rebind(`
		UPDATE invite_codes
		SET is_used = TRUE, used_by = ?, used_at = ?
		WHERE code_hash = ? AND is_used = FALSE
	`)
	result, err := s.db.Exec(query, usedBy, now, hash)
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

	if _, err := s.GetInviteByHash(hash); err != nil {
		return err
	}
	return storage.ErrInviteUsed
}
