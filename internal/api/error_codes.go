// internal/api/error_codes.go
package api

// API错误代码常量
const (
	// 通用错误
	ErrorBadRequest    = "BAD_REQUEST"
	ErrorNotFound      = "NOT_FOUND"
	ErrorInternalError = "INTERNAL_ERROR"
	ErrorConflict      = "CONFLICT"
	ErrorRateLimited   = "RATE_LIMIT_EXCEEDED"

	// 文档相关错误
	ErrorDocumentInvalid = "DOCUMENT_INVALID"
	ErrorModeInvalid     = "GRAMMAR_MODE_INVALID"

	// 运行记录相关错误
	ErrorRunNotFound = "RUN_NOT_FOUND"
	ErrorRunInvalid  = "RUN_ID_INVALID"

	// 文件相关错误
	ErrorFileUploadFailed = "FILE_UPLOAD_FAILED"
	ErrorFileInvalid      = "FILE_INVALID"

	// 配置相关错误
	ErrorConfigNotLoaded = "CONFIG_NOT_LOADED"
)
