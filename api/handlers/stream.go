package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/overseer/approval"
)

// =============================================================================
// 📡 审批事件流 Handler
// =============================================================================

// StreamHandler 通过 WebSocket 推送审批事件（挂起、裁决、超时）。
// 门的事件通道只有一个消费者，handler 内部做扇出：一个 pump 协程读取
// 事件并广播到所有已连接的客户端。
type StreamHandler struct {
	gate   *approval.Gate
	logger *zap.Logger

	mu          sync.Mutex
	subscribers map[chan approval.Event]struct{}
	started     bool
}

// NewStreamHandler 创建事件流处理器
func NewStreamHandler(gate *approval.Gate, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{
		gate:        gate,
		logger:      logger.With(zap.String("component", "approval_stream")),
		subscribers: make(map[chan approval.Event]struct{}),
	}
}

// Start 启动事件泵。ctx 取消时停止广播并断开所有订阅者。
func (h *StreamHandler) Start(ctx context.Context) {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return
	}
	h.started = true
	h.mu.Unlock()

	go h.pump(ctx)
}

func (h *StreamHandler) pump(ctx context.Context) {
	events := h.gate.Events()
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case ev, ok := <-events:
			if !ok {
				h.closeAll()
				return
			}
			h.broadcast(ev)
		}
	}
}

func (h *StreamHandler) broadcast(ev approval.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subscribers {
		select {
		case sub <- ev:
		default:
			// 慢客户端丢事件，不阻塞广播
		}
	}
}

func (h *StreamHandler) subscribe() chan approval.Event {
	sub := make(chan approval.Event, 16)
	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *StreamHandler) unsubscribe(sub chan approval.Event) {
	h.mu.Lock()
	delete(h.subscribers, sub)
	h.mu.Unlock()
}

func (h *StreamHandler) closeAll() {
	h.mu.Lock()
	for sub := range h.subscribers {
		close(sub)
		delete(h.subscribers, sub)
	}
	h.mu.Unlock()
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// HandleStream 处理 GET /api/v1/approvals/stream（WebSocket 升级）
// @Summary 审批事件流
// @Description 升级为 WebSocket 并推送审批生命周期事件
// @Tags 审批
// @Router /api/v1/approvals/stream [get]
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	sub := h.subscribe()
	defer h.unsubscribe(sub)

	ctx := r.Context()

	// 读协程只用于感知客户端断开
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case <-readDone:
			return
		case ev, ok := <-sub:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "stream closed")
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error("marshal event failed", zap.Error(err))
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err = conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				h.logger.Debug("websocket write failed, dropping client", zap.Error(err))
				return
			}
		}
	}
}
