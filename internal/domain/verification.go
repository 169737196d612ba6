package domain

// 验证结果三态。
const (
	VerifyNotChecked  = "not_checked"
	VerifyUnreachable = "unreachable"
	VerifyReachable   = "reachable"
)

// Verification 是候选 URL 存在性探测的结果。
//
// 约束：
// - 零值等价于 not_checked（State 为空时按 not_checked 处理）
// - reachable 时 StatusCode/ContentType 来自探测响应
// - unreachable 时 Error 或 StatusCode 说明原因
type Verification struct {
	State         string `json:"state"`
	StatusCode    int    `json:"status_code,omitempty"`
	ContentType   string `json:"content_type,omitempty"`
	ContentLength int64  `json:"content_length,omitempty"`
	Error         string `json:"error,omitempty"`
}

func NotChecked() Verification { return Verification{State: VerifyNotChecked} }

// Checked 表示已实际探测（无论结果）。
func (v Verification) Checked() bool {
	return v.State == VerifyReachable || v.State == VerifyUnreachable
}

// Exists 仅在探测确认可访问时为 true。
func (v Verification) Exists() bool { return v.State == VerifyReachable }
