// internal/session/client_test.go
package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	apperrors "github.com/Corphon/PolyglotRunner/internal/errors"
	"github.com/Corphon/PolyglotRunner/internal/models"
	"github.com/Corphon/PolyglotRunner/internal/protocol"
	"github.com/Corphon/PolyglotRunner/internal/utils"
)

func init() {
	utils.SetLogger(zap.NewNop())
}

// fakeChannel 内存中的有序通道
type fakeChannel struct {
	incoming chan string
	sent     chan string
	closed   chan struct{}
	once     sync.Once
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		incoming: make(chan string, 16),
		sent:     make(chan string, 4),
		closed:   make(chan struct{}),
	}
}

func (f *fakeChannel) Send(_ context.Context, message string) error {
	select {
	case <-f.closed:
		return io.ErrClosedPipe
	default:
	}
	f.sent <- message
	return nil
}

func (f *fakeChannel) Receive(_ context.Context) (string, error) {
	select {
	case line := <-f.incoming:
		return line, nil
	default:
	}
	select {
	case line := <-f.incoming:
		return line, nil
	case <-f.closed:
		return "", io.EOF
	}
}

func (f *fakeChannel) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) handle(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) kinds() []EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	kinds := make([]EventKind, len(l.events))
	for i, e := range l.events {
		kinds[i] = e.Kind
	}
	return kinds
}

func newTestClient(channels ...*fakeChannel) (*Client, *eventLog, *utils.MetricsCollector) {
	var mu sync.Mutex
	next := 0
	dialer := DialerFunc(func(context.Context) (Channel, error) {
		mu.Lock()
		defer mu.Unlock()
		if next >= len(channels) {
			return nil, errors.New("connection refused")
		}
		ch := channels[next]
		next++
		return ch, nil
	})

	events := &eventLog{}
	collector := utils.NewMetricsCollector()
	client := NewClient(dialer,
		WithEventHandler(events.handle),
		WithMetrics(utils.NewRunMetricsWith(collector)))
	return client, events, collector
}

func TestClientRunCompletes(t *testing.T) {
	defer goleak.VerifyNone(t)

	ch := newFakeChannel()
	client, events, collector := newTestClient(ch)

	go func() {
		doc := <-ch.sent
		ch.incoming <- "received " + doc
		ch.incoming <- protocol.CompletionMarker
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := client.Run(ctx, "::c\nprintf(1);")
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, result.Outcome)
	assert.Equal(t, []string{"received ::c\nprintf(1);", protocol.CompletionMarker}, result.Lines)
	assert.Equal(t, StateReady, client.State())
	assert.Equal(t, result.Lines, client.Snapshot().Logs())

	assert.Equal(t, []EventKind{EventState, EventState, EventState, EventLine, EventLine, EventRunFinished}, events.kinds())
	assert.Equal(t, int64(1), collector.GetCounterValue(utils.MetricRunsCompleted))
	assert.Equal(t, int64(2), collector.GetCounterValue(utils.MetricLinesTotal))

	require.NoError(t, client.Close())
	assert.Equal(t, StateIdle, client.State())
	assert.Equal(t, int64(0), collector.GetGauge(utils.MetricActiveChannels))
}

func TestClientChannelLossAbortsRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	ch := newFakeChannel()
	client, _, collector := newTestClient(ch)

	go func() {
		<-ch.sent
		ch.incoming <- "partial output"
	}()

	done := make(chan struct{})
	var result *RunResult
	var err error
	go func() {
		defer close(done)
		result, err = client.Run(context.Background(), "::py\nwhile True: pass")
	}()

	require.Eventually(t, func() bool { return client.Snapshot().LogCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, ch.Close())
	<-done

	require.NotNil(t, result)
	assert.Equal(t, models.RunAborted, result.Outcome)
	assert.True(t, apperrors.IsProtocolAnomaly(err))
	assert.Equal(t, []string{"partial output"}, result.Lines)
	assert.Equal(t, StateIdle, client.State())
	assert.Equal(t, int64(1), collector.GetCounterValue(utils.MetricRunsAborted))
	assert.Equal(t, int64(0), collector.GetCounterValue(utils.MetricRunsCompleted))

	require.NoError(t, client.Close())
}

func TestClientSubmitWhileRunningIsNoop(t *testing.T) {
	defer goleak.VerifyNone(t)

	ch := newFakeChannel()
	client, _, _ := newTestClient(ch)
	ctx := context.Background()

	require.NoError(t, client.Connect(ctx))
	runID, ok, err := client.Submit(ctx, "first")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, runID)

	_, ok, err = client.Submit(ctx, "second")
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, ch.sent, 1, "只发送了一次")
	assert.Equal(t, StateRunning, client.State())

	require.NoError(t, client.Close())
	assert.Equal(t, StateIdle, client.State())
}

func TestClientDialFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	client, events, _ := newTestClient()
	result, err := client.Run(context.Background(), "::c\nint x;")
	assert.Nil(t, result)
	assert.True(t, apperrors.IsChannelLoss(err))
	assert.Equal(t, StateIdle, client.State())
	assert.Equal(t, []EventKind{EventState, EventState}, events.kinds())
	require.NoError(t, client.Close())
}

func TestClientRunWaitHonoursContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	ch := newFakeChannel()
	client, _, _ := newTestClient(ch)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	result, err := client.Run(ctx, "::c\nsleep(10);")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateRunning, client.State(), "取消等待不会取消运行")

	ch.incoming <- protocol.CompletionMarker
	require.Eventually(t, func() bool { return client.State() == StateReady }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, client.Close())
}

func TestClientReconnectKeepsLogs(t *testing.T) {
	defer goleak.VerifyNone(t)

	first, second := newFakeChannel(), newFakeChannel()
	client, _, _ := newTestClient(first, second)
	ctx := context.Background()

	require.NoError(t, client.Connect(ctx))
	first.incoming <- "before"
	require.Eventually(t, func() bool { return client.Snapshot().LogCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, first.Close())
	require.Eventually(t, func() bool { return client.State() == StateIdle }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, client.Connect(ctx))
	assert.Equal(t, StateReady, client.State())
	second.incoming <- "after"
	require.Eventually(t, func() bool { return client.Snapshot().LogCount() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"before", "after"}, client.Snapshot().Logs())

	client.ClearLogs()
	assert.Zero(t, client.Snapshot().LogCount())
	require.NoError(t, client.Close())
}

func TestClientFromReadySnapshotReconnectsAndRuns(t *testing.T) {
	defer goleak.VerifyNone(t)

	first, second := newFakeChannel(), newFakeChannel()
	old, _, _ := newTestClient(first)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, old.Connect(ctx))
	first.incoming <- "earlier"
	require.Eventually(t, func() bool { return old.Snapshot().LogCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	snapshot := old.Snapshot()
	require.Equal(t, StateReady, snapshot.State())
	require.NoError(t, old.Close())

	fresh := NewClient(DialerFunc(func(context.Context) (Channel, error) { return second, nil }),
		WithSession(snapshot), WithMetrics(utils.NewRunMetricsWith(utils.NewMetricsCollector())))
	assert.Equal(t, StateIdle, fresh.State(), "沿用日志但不沿用连接状态")

	var (
		ok  bool
		err error
	)
	require.NotPanics(t, func() { _, ok, err = fresh.Submit(ctx, "::c\nx") })
	assert.NoError(t, err)
	assert.False(t, ok, "未连接时提交为空操作")

	go func() {
		<-second.sent
		second.incoming <- protocol.CompletionMarker
	}()
	result, err := fresh.Run(ctx, "::c\nx")
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, result.Outcome)
	assert.Equal(t, []string{protocol.CompletionMarker}, result.Lines, "本次运行只包含新收到的行")
	assert.Equal(t, []string{"earlier", protocol.CompletionMarker}, fresh.Snapshot().Logs())

	require.NoError(t, fresh.Close())
}

func TestClientFromRunningSnapshotCanSubmitAgain(t *testing.T) {
	defer goleak.VerifyNone(t)

	first, second := newFakeChannel(), newFakeChannel()
	old, _, _ := newTestClient(first)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, old.Connect(ctx))
	_, ok, err := old.Submit(ctx, "::py\nwhile True: pass")
	require.NoError(t, err)
	require.True(t, ok)
	snapshot := old.Snapshot()
	require.Equal(t, StateRunning, snapshot.State())

	fresh := NewClient(DialerFunc(func(context.Context) (Channel, error) { return second, nil }),
		WithSession(snapshot), WithMetrics(utils.NewRunMetricsWith(utils.NewMetricsCollector())))

	go func() {
		<-second.sent
		second.incoming <- protocol.CompletionMarker
	}()
	result, err := fresh.Run(ctx, "::c\nx")
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, result.Outcome)

	require.NoError(t, fresh.Close())
	require.NoError(t, old.Close())
}
