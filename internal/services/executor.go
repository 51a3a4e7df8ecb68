// internal/services/executor.go
package services

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strings"
	"time"
)

// Executor 执行单个块的源码，输出按行回调
type Executor interface {
	Execute(ctx context.Context, languageID, source string, output func(line string) error) error
	Supports(languageID string) bool
}

// ExecutorFunc 函数形式的执行器，支持所有语言
type ExecutorFunc func(ctx context.Context, languageID, source string, output func(line string) error) error

func (f ExecutorFunc) Execute(ctx context.Context, languageID, source string, output func(line string) error) error {
	return f(ctx, languageID, source, output)
}

func (f ExecutorFunc) Supports(string) bool {
	return true
}

// CommandExecutor 每种语言对应一条命令，源码通过 stdin 传入
type CommandExecutor struct {
	Commands map[string][]string
	Timeout  time.Duration
}

// NewCommandExecutor 创建命令执行器，语言标识不区分大小写
func NewCommandExecutor(commands map[string][]string, timeout time.Duration) *CommandExecutor {
	normalized := make(map[string][]string, len(commands))
	for lang, argv := range commands {
		if len(argv) > 0 {
			normalized[strings.ToLower(lang)] = argv
		}
	}
	return &CommandExecutor{Commands: normalized, Timeout: timeout}
}

// Supports 是否配置了该语言
func (e *CommandExecutor) Supports(languageID string) bool {
	_, ok := e.Commands[strings.ToLower(languageID)]
	return ok
}

// Languages 已配置的语言
func (e *CommandExecutor) Languages() []string {
	languages := make([]string, 0, len(e.Commands))
	for lang := range e.Commands {
		languages = append(languages, lang)
	}
	sort.Strings(languages)
	return languages
}

// Execute 运行命令并逐行转发 stdout；非零退出码时错误中带上 stderr 的最后一行
func (e *CommandExecutor) Execute(ctx context.Context, languageID, source string, output func(line string) error) error {
	argv, ok := e.Commands[strings.ToLower(languageID)]
	if !ok {
		return fmt.Errorf("no executor configured for language %q", languageID)
	}

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = strings.NewReader(source)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	var outputErr error
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if outputErr = output(scanner.Text()); outputErr != nil {
			break
		}
	}
	// 读取方提前退出时排空剩余输出，避免子进程阻塞在写管道上
	_, _ = io.Copy(io.Discard, stdout)

	waitErr := cmd.Wait()
	switch {
	case outputErr != nil:
		return outputErr
	case ctx.Err() == context.DeadlineExceeded:
		return fmt.Errorf("timed out after %s", e.Timeout)
	case waitErr != nil:
		if detail := lastLine(stderr.String()); detail != "" {
			return fmt.Errorf("%w: %s", waitErr, detail)
		}
		return waitErr
	}
	return scanner.Err()
}

func lastLine(text string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
