package sql

import (
	"database/sql"
	"errors"

	"astreon/backend/internal/domain"
	"astreon/backend/internal/storage"
)

// ========== Application Repository ==========

const applicationColumns = `id, user_id, name, token, created_at`

// SaveApplication 保存应用（插入或整行更新，令牌轮换走这里）
func (s *Store) SaveApplication(app *domain.Application) error {
	update := s.rebind(`UPDATE applications SET name = ?, token = ? WHERE id = ?`)
	result, err := s.db.Exec(update, app.Name, app.Token, app.ID)
	if err != nil {
		return err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 1 {
		return nil
	}

	insert := s.rebind(`
		INSERT INTO applications (id, user_id, name, token, created_at)
		VALUES (?, ?, ?, ?, ?)
	`)
	_, err = s.db.Exec(insert, app.ID, app.UserID, app.Name, app.Token, app.CreatedAt)
	return err
}

func (s *Store) scanApplication(row interface{ Scan(...any) error }) (*domain.Application, error) {
	var app domain.Application
	err := row.Scan(&app.ID, &app.UserID, &app.Name, &app.Token, &app.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrApplicationNotFound
		}
		return nil, err
	}
	return &app, nil
}

// GetApplication 根据 ID 获取应用
func (s *Store) GetApplication(id string) (*domain.Application, error) {
	query := s.rebind(`SELECT ` + applicationColumns + ` FROM applications WHERE id = ?`)
	return s.scanApplication(s.db.QueryRow(query, id))
}

// GetApplicationByToken 根据令牌获取应用
func (s *Store) GetApplicationByToken(token string) (*domain.Application, error) {
	query := s.rebind(`SELECT ` + applicationColumns + ` FROM applications WHERE token = ?`)
	return s.scanApplication(s.db.QueryRow(query, token))
}

// ListApplicationsByUserID 返回账户的全部应用
func (s *Store) ListApplicationsByUserID(userID string) ([]domain.Application, error) {
	query := s.rebind(`SELECT ` + applicationColumns + ` FROM applications WHERE user_id = ? ORDER BY created_at DESC`)
	rows, err := s.db.Query(query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var apps []domain.Application
	for rows.Next() {
		app, err := s.scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, *app)
	}
	return apps, rows.Err()
}

// DeleteApplication 删除应用
func (s *Store) DeleteApplication(id string) error {
	result, err := s.db.Exec(s.rebind(`DELETE FROM applications WHERE id = ?`), id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return storage.ErrApplicationNotFound
	}
	return err
}
