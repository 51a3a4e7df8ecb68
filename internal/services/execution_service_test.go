// internal/services/execution_service_test.go
package services

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/Corphon/PolyglotRunner/internal/errors"
	"github.com/Corphon/PolyglotRunner/internal/grammar"
	"github.com/Corphon/PolyglotRunner/internal/models"
	"github.com/Corphon/PolyglotRunner/internal/protocol"
	"github.com/Corphon/PolyglotRunner/internal/storage"
	"github.com/Corphon/PolyglotRunner/internal/utils"
)

func init() {
	utils.SetLogger(zap.NewNop())
}

const nestedRunDocument = `::py
print("outer")
  ::c
  inner();
  ::/c
::/py
::java
last();
::/java`

// recordingExecutor 记录执行顺序，fail 中的语言返回错误
func recordingExecutor(order *[]string, fail map[string]bool) Executor {
	return ExecutorFunc(func(_ context.Context, lang, source string, output func(string) error) error {
		*order = append(*order, lang)
		if fail[lang] {
			return errors.New("exit status 1")
		}
		return output("ran " + lang)
	})
}

func collect(lines *[]string) EmitFunc {
	return func(line string) error {
		*lines = append(*lines, line)
		return nil
	}
}

func newTestStore(t *testing.T) *RunStore {
	t.Helper()
	fs, err := storage.NewFileStorage(t.TempDir())
	require.NoError(t, err)
	return NewRunStore(fs)
}

func TestExecuteChildrenBeforeParentWithDebugLines(t *testing.T) {
	var order, lines []string
	svc := NewExecutionService(recordingExecutor(&order, nil), nil, models.ModeSequential, func() bool { return true })

	record, err := svc.Execute(context.Background(), nestedRunDocument, "test", collect(&lines))
	require.NoError(t, err)

	assert.Equal(t, []string{"c", "py", "java"}, order)
	assert.Equal(t, []string{
		protocol.StartLine,
		protocol.BlockPreparing("c"), "ran c", protocol.BlockFinished("c"),
		protocol.BlockPreparing("py"), "ran py", protocol.BlockFinished("py"),
		protocol.BlockPreparing("java"), "ran java", protocol.BlockFinished("java"),
		protocol.CompletionMarker,
	}, lines)
	assert.Equal(t, models.RunCompleted, record.Outcome)
	assert.Equal(t, 3, record.BlockCount)
	assert.Equal(t, lines, record.Lines)
}

func TestExecuteWithoutDebugOnlyProgramOutput(t *testing.T) {
	var order, lines []string
	svc := NewExecutionService(recordingExecutor(&order, nil), nil, models.ModeSequential, func() bool { return false })

	_, err := svc.Execute(context.Background(), nestedRunDocument, "", collect(&lines))
	require.NoError(t, err)
	assert.Equal(t, []string{protocol.StartLine, "ran c", "ran py", "ran java", protocol.CompletionMarker}, lines)
}

func TestExecuteStopsAfterFailingBlock(t *testing.T) {
	var order, lines []string
	store := newTestStore(t)
	svc := NewExecutionService(recordingExecutor(&order, map[string]bool{"py": true}), store, models.ModeSequential, func() bool { return false })

	record, err := svc.Execute(context.Background(), nestedRunDocument, "", collect(&lines))
	require.NoError(t, err)

	assert.Equal(t, []string{"c", "py"}, order, "失败后不再执行后续块")
	assert.Equal(t, []string{
		protocol.StartLine,
		"ran c",
		protocol.BlockError("py", errors.New("exit status 1")),
		protocol.CompletionMarker,
	}, lines)
	assert.Equal(t, models.RunFailed, record.Outcome)
	assert.Equal(t, protocol.TerminalFailed, protocol.DetectTerminal(lines[2]))

	saved, err := store.Get(record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, saved.Outcome)
	assert.Equal(t, lines, saved.Lines)
}

func TestExecuteDocumentWithoutBlocks(t *testing.T) {
	var order, lines []string
	svc := NewExecutionService(recordingExecutor(&order, nil), nil, models.ModeSequential, nil)

	record, err := svc.Execute(context.Background(), "just prose\n::/py", "", collect(&lines))
	require.NoError(t, err)
	assert.Empty(t, order)
	assert.Equal(t, []string{protocol.StartLine, protocol.DocumentError, protocol.CompletionMarker}, lines)
	assert.Equal(t, models.RunFailed, record.Outcome)
}

func TestExecuteIndentationModeTree(t *testing.T) {
	var order, lines []string
	svc := NewExecutionService(recordingExecutor(&order, nil), nil, models.ModeIndentationNested, func() bool { return false })

	doc := "::py\nx = 1\n  ::c\n  int a;\n  ::js\n  let b;\n::java\nc();"
	_, err := svc.Execute(context.Background(), doc, "", collect(&lines))
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "js", "py", "java"}, order)
}

func TestExecuteAbortsWhenClientDisconnects(t *testing.T) {
	var order []string
	store := newTestStore(t)
	svc := NewExecutionService(recordingExecutor(&order, nil), store, models.ModeSequential, func() bool { return true })

	sent := 0
	emit := func(line string) error {
		if sent == 2 {
			return errors.New("broken pipe")
		}
		sent++
		return nil
	}

	record, err := svc.Execute(context.Background(), nestedRunDocument, "", emit)
	assert.True(t, apperrors.IsChannelLoss(err))
	assert.Equal(t, models.RunAborted, record.Outcome)
	assert.Equal(t, []string{"c"}, order)

	summaries, err := store.List(0)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, models.RunAborted, summaries[0].Outcome)
}

func TestBlockSourceDedents(t *testing.T) {
	seg := grammar.Segment("::py\n\n    if x:\n        y()\n\n::/py", models.ModeSequential)
	block := seg.Blocks()[0]
	assert.Equal(t, "if x:\n    y()", BlockSource(block))

	seg = grammar.Segment("::c\n::/c", models.ModeSequential)
	assert.Equal(t, "", BlockSource(seg.Blocks()[0]))
}

func TestCommandExecutor(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("需要 sh")
	}

	executor := NewCommandExecutor(map[string][]string{"SH": {"sh"}}, 2*time.Second)
	assert.True(t, executor.Supports("sh"))
	assert.False(t, executor.Supports("py"))
	assert.Equal(t, []string{"sh"}, executor.Languages())

	var lines []string
	err := executor.Execute(context.Background(), "sh", "echo hello\necho world", func(line string) error {
		lines = append(lines, line)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"hello", "world"}, lines)

	err = executor.Execute(context.Background(), "sh", "echo oops >&2\nexit 3", func(string) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit status 3")
	assert.Contains(t, err.Error(), "oops")

	err = executor.Execute(context.Background(), "py", "print(1)", func(string) error { return nil })
	assert.ErrorContains(t, err, "no executor configured")

	slow := NewCommandExecutor(map[string][]string{"sh": {"sh"}}, 100*time.Millisecond)
	err = slow.Execute(context.Background(), "sh", "exec sleep 5", func(string) error { return nil })
	assert.ErrorContains(t, err, "timed out")
}
