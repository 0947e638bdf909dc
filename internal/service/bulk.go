package service

import (
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"astreon/backend/internal/domain"
)

// bulkConcurrency 批量删除的并发上限
const bulkConcurrency = 8

// BulkResult 批量操作结果
//
// 部分失败不是错误：结果同时报告成功数与总数，
// 由调用方决定如何呈现 "3/5 deleted"。
type BulkResult struct {
	SuccessCount int `json:"successCount"`
	Total        int `json:"total"`
}

// BulkService 卡密批量操作
type BulkService struct {
	keys *KeyService
}

// NewBulkService 创建批量操作服务
func NewBulkService(keys *KeyService) *BulkService {
	return &BulkService{keys: keys}
}

// DeleteKeys 并发删除一组卡密
//
// 每张卡密独立成败：不存在或无权限只计为失败，不中断批次。
func (s *BulkService) DeleteKeys(caller *domain.User, values []string) BulkResult {
	result := BulkResult{Total: len(values)}
	if len(values) == 0 {
		return result
	}

	var success atomic.Int64
	var g errgroup.Group
	g.SetLimit(bulkConcurrency)
	for _, value := range values {
		value := value
		g.Go(func() error {
			if err := s.keys.Delete(caller, value); err == nil {
				success.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	result.SuccessCount = int(success.Load())
	return result
}

// SelectExpired 返回账户中所有已过期卡密的字符串（冻结或永久的不算）
func (s *BulkService) SelectExpired(accountID string, now time.Time) ([]string, error) {
	keys, err := s.keys.List(accountID)
	if err != nil {
		return nil, err
	}
	values := make([]string, 0)
	for i := range keys {
		if keys[i].Status(now) == domain.StatusExpired {
			values = append(values, keys[i].Key)
		}
	}
	return values, nil
}

// SelectAll 返回账户全部卡密的字符串
func (s *BulkService) SelectAll(accountID string) ([]string, error) {
	keys, err := s.keys.List(accountID)
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, len(keys))
	for i := range keys {
		values = append(values, keys[i].Key)
	}
	return values, nil
}
