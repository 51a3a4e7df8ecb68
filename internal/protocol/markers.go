// internal/protocol/markers.go
package protocol

// ProtocolVersion 当前标记集的版本，修改任何标记都需要提升版本
const ProtocolVersion = "1"

// 终止标记与网关输出的固定行
const (
	CompletionMarker = "--- Pipeline Finished ---"
	ErrorMarker      = "Error in"

	StartLine = "🚀 Starting pipeline..."
)

// MarkerSet 与执行后端约定的一组标记
type MarkerSet struct {
	Version     string   `json:"version" yaml:"version"`
	Completion  string   `json:"completion" yaml:"completion"`
	Error       string   `json:"error" yaml:"error"`
	Diagnostics []string `json:"diagnostics" yaml:"diagnostics"`
}

// V1 第一版标记集
var V1 = MarkerSet{
	Version:    ProtocolVersion,
	Completion: CompletionMarker,
	Error:      ErrorMarker,
	Diagnostics: []string{
		"🚀 Starting pipeline",
		"🏗️",
		"📥",
		"✏️",
		"➕",
		"🔄",
		"📤",
		"🏁",
		"===== POLYGLOT",
		"📊 Final variable",
		"📊 No variables persisted",
		"✅ Pipeline completed",
		"Starting fresh",
		"Receiving variables",
		"Variables being modified",
		"Created:",
		"Modified:",
		"Passing to",
		"Pipeline Finished",
		"==================================================",
		"DEBUG Java modified vars:",
		"DEBUG Java code:",
		"---",
		"PIPELINE EXECUTION SUMMARY",
		"POLYGLOT EXECUTION PIPELINE",
	},
}

// Current 当前使用的标记集
func Current() MarkerSet {
	set := V1
	set.Diagnostics = append([]string(nil), V1.Diagnostics...)
	return set
}

// BlockPreparing 网关在调试模式下为每个块输出的开始行
func BlockPreparing(languageID string) string {
	return "--- Preparing to run Block (" + languageID + ") ---"
}

// BlockFinished 网关在调试模式下为每个块输出的结束行
func BlockFinished(languageID string) string {
	return "✅ Block (" + languageID + ") finished."
}

// BlockError 块执行失败时输出的行，包含错误标记
func BlockError(languageID string, err error) string {
	return "❌ " + ErrorMarker + " " + languageID + " block: " + err.Error()
}

// DocumentError 文档无法解析出任何块
const DocumentError = "❌ " + ErrorMarker + " document: could not parse any code blocks."
