package model

// DailyCost 按日成本（dailyCosts 按日期升序）
type DailyCost struct {
	Date string  `json:"date"` // YYYY-MM-DD
	Cost float64 `json:"cost"`
}

// DashboardStats 仪表盘聚合快照
// 所有映射均为"键 -> 累加值"，合并时按键相加
type DashboardStats struct {
	TotalCost         float64 `json:"totalCost"`
	TotalRequests     int64   `json:"totalRequests"`
	TotalInputTokens  int64   `json:"totalInputTokens"`
	TotalOutputTokens int64   `json:"totalOutputTokens"`
	TotalTokens       int64   `json:"totalTokens"`

	CostByModel      map[string]float64 `json:"costByModel"`
	CostByCandidate  map[string]float64 `json:"costByCandidate"`
	CostBySearchType map[string]float64 `json:"costBySearchType"`
	DailyCosts       []DailyCost        `json:"dailyCosts"`

	RequestsByModel      map[string]int64 `json:"requestsByModel"`
	RequestsByCandidate  map[string]int64 `json:"requestsByCandidate"`
	RequestsBySearchType map[string]int64 `json:"requestsBySearchType"`
	RequestsByDay        map[string]int64 `json:"requestsByDay"`
}

// NewDashboardStats 返回所有映射已初始化的空快照（JSON输出 {} 而不是 null）
func NewDashboardStats() *DashboardStats {
	return &DashboardStats{
		CostByModel:          make(map[string]float64),
		CostByCandidate:      make(map[string]float64),
		CostBySearchType:     make(map[string]float64),
		DailyCosts:           []DailyCost{},
		RequestsByModel:      make(map[string]int64),
		RequestsByCandidate:  make(map[string]int64),
		RequestsBySearchType: make(map[string]int64),
		RequestsByDay:        make(map[string]int64),
	}
}

// CostBreakdown 单条记录的成本拆分（美元，6位小数）
type CostBreakdown struct {
	InputCost  float64 `json:"inputCost"`
	OutputCost float64 `json:"outputCost"`
	TotalCost  float64 `json:"totalCost"`
}
