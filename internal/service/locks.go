package service

import "sync"

// accountLocks 按账户 ID 串行化生成与扣费。
//
// 生成（唯一性检查）与余额扣减必须按账户互斥，但无关账户之间
// 不能相互阻塞，所以用键控互斥锁而非全局锁。
type accountLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[string]*sync.Mutex)}
}

// lock 锁定指定账户并返回解锁函数
func (a *accountLocks) lock(accountID string) func() {
	a.mu.Lock()
	m, ok := a.locks[accountID]
	if !ok {
		m = &sync.Mutex{}
		a.locks[accountID] = m
	}
	a.mu.Unlock()

	m.Lock()
	return m.Unlock
}
