// Package repository 提供了数据访问层的实现。
package repository

import (
	"container/list"
	"context"
	"sync"

	"costsense-go/internal/model"
	"costsense-go/pkg/log"
)

// 默认容量
const (
	DefaultHistoryLimit     = 20
	DefaultMaxConversations = 1000
	DefaultEvictBatch       = 100
)

// ConversationRepository 定义了对话历史记录的操作接口。
type ConversationRepository interface {
	Get(ctx context.Context, sessionID string) ([]model.ConversationTurn, error)
	Append(ctx context.Context, sessionID string, turn model.ConversationTurn) error
	Clear(ctx context.Context, sessionID string) error
	Count(ctx context.Context) (int, error)
}

type conversation struct {
	elem  *list.Element
	turns []model.ConversationTurn
}

// memoryConversationRepository 把会话保存在进程内存中，进程重启即丢失。
// order 按会话创建顺序记录 sessionID，用于整批淘汰最早的会话。
type memoryConversationRepository struct {
	mu               sync.Mutex
	historyLimit     int
	maxConversations int
	evictBatch       int
	sessions         map[string]*conversation
	order            *list.List
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。参数非正时使用默认值。
func NewConversationRepository(historyLimit, maxConversations, evictBatch int) ConversationRepository {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	if maxConversations <= 0 {
		maxConversations = DefaultMaxConversations
	}
	if evictBatch <= 0 {
		evictBatch = DefaultEvictBatch
	}
	return &memoryConversationRepository{
		historyLimit:     historyLimit,
		maxConversations: maxConversations,
		evictBatch:       evictBatch,
		sessions:         make(map[string]*conversation),
		order:            list.New(),
	}
}

// Get 返回会话历史的副本，会话不存在时返回空切片。
func (r *memoryConversationRepository) Get(_ context.Context, sessionID string) ([]model.ConversationTurn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.sessions[sessionID]
	if !ok {
		return []model.ConversationTurn{}, nil
	}
	return append([]model.ConversationTurn(nil), conv.turns...), nil
}

// Append 追加一条消息并裁剪到上限；新建会话使总数超过上限时淘汰最早的一批会话。
func (r *memoryConversationRepository) Append(_ context.Context, sessionID string, turn model.ConversationTurn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.sessions[sessionID]
	if !ok {
		conv = &conversation{elem: r.order.PushBack(sessionID)}
		r.sessions[sessionID] = conv
	}

	turns := append(conv.turns, turn)
	if len(turns) > r.historyLimit {
		turns = append([]model.ConversationTurn(nil), turns[len(turns)-r.historyLimit:]...)
	}
	conv.turns = turns

	if !ok && len(r.sessions) > r.maxConversations {
		r.evict(sessionID)
	}
	return nil
}

// Clear 删除会话。
func (r *memoryConversationRepository) Clear(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conv, ok := r.sessions[sessionID]; ok {
		r.order.Remove(conv.elem)
		delete(r.sessions, sessionID)
	}
	return nil
}

// Count 返回当前会话数量。
func (r *memoryConversationRepository) Count(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions), nil
}

// evict 必须在持锁时调用，不会淘汰 keep。
func (r *memoryConversationRepository) evict(keep string) {
	evicted := 0
	for e := r.order.Front(); e != nil && evicted < r.evictBatch; {
		next := e.Next()
		id := e.Value.(string)
		if id != keep {
			r.order.Remove(e)
			delete(r.sessions, id)
			evicted++
		}
		e = next
	}
	log.Infow("Evicted oldest conversations", "evicted", evicted, "remaining", len(r.sessions))
}
