package model

// StreamEvent 推送给浏览器的一帧（SSE data: 行的JSON）
type StreamEvent struct {
	Success      bool             `json:"success"`
	Demo         bool             `json:"demo"`
	Progress     int              `json:"progress"` // 0-100
	IsComplete   bool             `json:"isComplete"`
	ProgressOnly bool             `json:"progressOnly,omitempty"` // 演示模式：本步无新数据
	Data         *StreamEventData `json:"data,omitempty"`
	Error        string           `json:"error,omitempty"`
}

// StreamEventData 数据帧负载
// NewRecords 只包含自上一帧以来新增的记录（增量），客户端自行累积
type StreamEventData struct {
	Stats         *DashboardStats `json:"stats"`
	NewRecords    []UsageRecord   `json:"newRecords"`
	TotalRecords  int             `json:"totalRecords"`
	ExpectedTotal int             `json:"expectedTotal"`
}

// UsageResponse 非流式 /api/usage 响应
type UsageResponse struct {
	Success bool              `json:"success"`
	Demo    bool              `json:"demo"`
	Data    UsageResponseData `json:"data"`
}

type UsageResponseData struct {
	Stats   *DashboardStats `json:"stats"`
	Records []UsageRecord   `json:"records"`
}
