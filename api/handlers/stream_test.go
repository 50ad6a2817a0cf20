package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/overseer/approval"
)

// =============================================================================
// 🧪 事件流 Handler 测试
// =============================================================================

func dialStream(t *testing.T, ctx context.Context, h *StreamHandler) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(h.HandleStream))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })

	return conn
}

func TestStreamHandler_DeliversPendingEvent(t *testing.T) {
	gate := newTestGate(t)
	h := NewStreamHandler(gate, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h.Start(ctx)

	conn := dialStream(t, ctx, h)

	// 给订阅注册留一点时间，避免事件在扇出前发布
	time.Sleep(50 * time.Millisecond)

	handle, err := gate.Suspend(ctx, "thread-1", "borderline result, accept?", map[string]string{
		"subtask": "research",
	})
	require.NoError(t, err)

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var ev approval.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, approval.EventPending, ev.Type)
	require.NotNil(t, ev.Request)
	assert.Equal(t, handle, ev.Request.Handle)
	assert.Equal(t, "thread-1", ev.Request.ThreadID)
}

func TestStreamHandler_DeliversResolvedEvent(t *testing.T) {
	gate := newTestGate(t)
	h := NewStreamHandler(gate, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h.Start(ctx)

	conn := dialStream(t, ctx, h)
	time.Sleep(50 * time.Millisecond)

	handle, err := gate.Suspend(ctx, "thread-1", "ok?", nil)
	require.NoError(t, err)
	require.NoError(t, gate.Resume(ctx, handle, approval.Decision{Approved: true, DecidedBy: "alice"}))

	// 第一条是 pending，第二条是 resolved
	var got []approval.EventType
	for i := 0; i < 2; i++ {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var ev approval.Event
		require.NoError(t, json.Unmarshal(data, &ev))
		got = append(got, ev.Type)
	}

	assert.Equal(t, []approval.EventType{approval.EventPending, approval.EventResolved}, got)
}

func TestStreamHandler_SlowClientDoesNotBlockBroadcast(t *testing.T) {
	gate := newTestGate(t)
	h := NewStreamHandler(gate, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h.Start(ctx)

	// 无订阅者时广播不能阻塞
	for i := 0; i < 100; i++ {
		_, err := gate.Suspend(ctx, "thread-x", "q", nil)
		require.NoError(t, err)
	}
}
