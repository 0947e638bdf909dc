package service

import (
	"errors"

	"astreon/backend/internal/domain"
	"astreon/backend/internal/storage"
)

var (
	// ErrNotAReseller 账户不是经销商
	ErrNotAReseller = errors.New("account is not a reseller")
	// ErrProductNotAllowed 产品不在经销商的许可列表中
	ErrProductNotAllowed = errors.New("product is not in the reseller's allow-list")
	// ErrInsufficientBalance 余额不足
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInvalidBalance 余额不允许为负
	ErrInvalidBalance = errors.New("balance must not be negative")
)

// defaultUnitPrice 单张卡密的默认价格
const defaultUnitPrice = 1.00

// LedgerService 经销商权益账本
//
// 独占余额变更：扣费与发卡在同一账户锁临界区内完成，
// 生成失败即回滚扣费，绝不出现扣了钱没发卡或发了卡没扣钱。
// 余额写入走定向的 SetUserBalance，其他管理操作不会覆盖扣费。
type LedgerService struct {
	store     storage.Store
	keys      *KeyService
	unitPrice float64
}

// NewLedgerService 创建账本服务（与 KeyService 共享账户锁）
//
// unitPrice 非正数时使用默认单价。
func NewLedgerService(store storage.Store, keys *KeyService, unitPrice float64) *LedgerService {
	if unitPrice <= 0 {
		unitPrice = defaultUnitPrice
	}
	return &LedgerService{
		store:     store,
		keys:      keys,
		unitPrice: unitPrice,
	}
}

// UnitPrice 返回当前生效的发卡单价
func (l *LedgerService) UnitPrice() float64 {
	return l.unitPrice
}

// IssueResult 经销商发卡结果
type IssueResult struct {
	Key     domain.LicenseKey
	Balance float64 // 扣费后的余额
}

// ReserveAndIssue 余额扣减并签发一张卡密（原子）
func (l *LedgerService) ReserveAndIssue(resellerID, product, format string, unit domain.DurationUnit, amount int) (*IssueResult, error) {
	reseller, err := l.store.GetUserByID(resellerID)
	if err != nil {
		return nil, storage.ErrUserNotFound
	}
	if !reseller.IsReseller() {
		return nil, ErrNotAReseller
	}
	if !reseller.CanIssueProduct(product) {
		return nil, ErrProductNotAllowed
	}

	unlock := l.keys.locks.lock(resellerID)
	defer unlock()

	// 锁内重读，余额以临界区内的值为准
	reseller, err = l.store.GetUserByID(resellerID)
	if err != nil {
		return nil, storage.ErrUserNotFound
	}
	if reseller.Balance < l.unitPrice {
		return nil, ErrInsufficientBalance
	}

	debited := reseller.Balance - l.unitPrice
	if err := l.store.SetUserBalance(resellerID, debited); err != nil {
		return nil, err
	}

	created, err := l.keys.generateLocked(GenerateInput{
		AccountID: resellerID,
		Product:   product,
		Format:    format,
		Unit:      unit,
		Amount:    amount,
		Count:     1,
	})
	if err != nil {
		// 没有交付卡密就不收费：回滚扣费（仍在账户锁内）
		_ = l.store.SetUserBalance(resellerID, reseller.Balance)
		return nil, err
	}

	return &IssueResult{Key: created[0], Balance: debited}, nil
}

// Balance 返回经销商当前余额与许可产品
func (l *LedgerService) Balance(resellerID string) (float64, []string, error) {
	user, err := l.store.GetUserByID(resellerID)
	if err != nil {
		return 0, nil, storage.ErrUserNotFound
	}
	if !user.IsReseller() {
		return 0, nil, ErrNotAReseller
	}
	return user.Balance, user.AllowedProducts, nil
}

// SetBalance 管理员直接设置余额（幂等）
func (l *LedgerService) SetBalance(userID string, balance float64) error {
	if balance < 0 {
		return ErrInvalidBalance
	}
	unlock := l.keys.locks.lock(userID)
	defer unlock()

	if err := l.store.SetUserBalance(userID, balance); err != nil {
		return storage.ErrUserNotFound
	}
	return nil
}

// AddBalance 管理员充值（amount 可为负，但结果不允许为负）
func (l *LedgerService) AddBalance(userID string, amount float64) (float64, error) {
	unlock := l.keys.locks.lock(userID)
	defer unlock()

	user, err := l.store.GetUserByID(userID)
	if err != nil {
		return 0, storage.ErrUserNotFound
	}
	next := user.Balance + amount
	if next < 0 {
		return 0, ErrInvalidBalance
	}
	return next, l.store.SetUserBalance(userID, next)
}

// SetAllowedProducts 管理员设置产品许可列表（幂等）
func (l *LedgerService) SetAllowedProducts(userID string, products []string) error {
	if err := l.store.SetUserProducts(userID, products); err != nil {
		return storage.ErrUserNotFound
	}
	return nil
}
