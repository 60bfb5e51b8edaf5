package service

import "errors"

// 客户端可见的错误。错误文本会原样出现在 HTTP 响应的 error 字段里，
// 所以这里保持和前端约定的措辞，不要随意改动。
var (
	ErrEmailRequired      = errors.New("Email is required")
	ErrUserNotFound       = errors.New("User not found")
	ErrRelationNotFound   = errors.New("Relation not found")
	ErrReminderNotFound   = errors.New("Reminder not found")
	ErrRelationIDRequired = errors.New("relation_id required")
	ErrReminderIDRequired = errors.New("reminder_id required")
	ErrInvalidDescriptor  = errors.New("Invalid face descriptor. Must be 128-dimensional array.")
	ErrInvalidTime        = errors.New("Invalid time format. Use HH:MM")
	ErrEmptyConversation  = errors.New("Transcript or summary required")
)

var invalidInputErrors = []error{
	ErrEmailRequired,
	ErrRelationIDRequired,
	ErrReminderIDRequired,
	ErrInvalidDescriptor,
	ErrInvalidTime,
	ErrEmptyConversation,
}

var notFoundErrors = []error{
	ErrUserNotFound,
	ErrRelationNotFound,
	ErrReminderNotFound,
}

// IsInvalidInput 判断错误是否属于输入校验失败，对应 HTTP 400。
func IsInvalidInput(err error) bool {
	for _, target := range invalidInputErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsNotFound 判断错误是否属于资源不存在，对应 HTTP 404。
// 其余错误一律按存储故障处理，只返回笼统的失败消息。
func IsNotFound(err error) bool {
	for _, target := range notFoundErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
