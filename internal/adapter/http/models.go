package http

// DispenseRequest 出货请求
// Lane为0时由货道管理器自动选道
type DispenseRequest struct {
	Lane int `json:"lane" binding:"min=0,max=255"`
}

// ResetRequest 货道重置请求
// Lane为0时重置全部货道
type ResetRequest struct {
	Lane int `json:"lane" binding:"min=0,max=255"`
}

// ErrorResponse 统一错误响应
type ErrorResponse struct {
	Success bool   `json:"success" example:"false"`
	Error   string `json:"error"`
}
