package domain

// KeyStatistics 单个账户的卡密状态统计
type KeyStatistics struct {
	Total   int `json:"total"`
	Active  int `json:"active"`
	Used    int `json:"used"`
	Expired int `json:"expired"`
	Frozen  int `json:"frozen"`
}

// SystemStatistics 全系统统计（管理面板）
type SystemStatistics struct {
	TotalUsers    int `json:"totalUsers"`
	TotalAdmins   int `json:"totalAdmins"`
	TotalReseller int `json:"totalResellers"`
	BannedUsers   int `json:"bannedUsers"`
	TotalKeys     int `json:"totalKeys"`
	TotalInvites  int `json:"totalInvites"`
	UnusedInvites int `json:"unusedInvites"`
}
