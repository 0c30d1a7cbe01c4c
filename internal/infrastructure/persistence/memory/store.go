// Package memory 提供进程内的持久化实现，用于测试与本地开发（database.driver=memory）
package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"spec-forge-api/internal/domain/entity"
	"spec-forge-api/internal/domain/repository"
)

// Store 进程内数据存储，所有仓储共享同一把锁
type Store struct {
	mu sync.RWMutex

	projects  map[string]*entity.Project
	turns     map[string][]*entity.ConversationTurn // project_id -> turns
	research  map[string]*entity.ResearchArtifact   // project_id -> artifact
	documents map[string]*entity.GeneratedDocument  // project_id -> document
	downloads []*entity.DownloadEvent
	usage     []*entity.LLMUsageEvent
}

// NewStore 创建空存储
func NewStore() *Store {
	return &Store{
		projects:  make(map[string]*entity.Project),
		turns:     make(map[string][]*entity.ConversationTurn),
		research:  make(map[string]*entity.ResearchArtifact),
		documents: make(map[string]*entity.GeneratedDocument),
	}
}

// Transactor 进程内事务：事务之间串行执行，fn 返回错误时把 Store 恢复到事务开始前的快照。
// 恢复会覆盖事务期间其他 goroutine 的非事务写入，仅适用于测试与单进程开发环境。
type Transactor struct {
	store *Store
	mu    sync.Mutex
}

// NewTransactor 创建事务管理器
func NewTransactor(store *Store) *Transactor {
	return &Transactor{store: store}
}

type memTx struct{}

// WithTransaction 嵌套调用复用外层事务，由最外层负责回滚
func (t *Transactor) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := repository.TxFrom(ctx).(memTx); ok {
		return fn(ctx)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	snap := t.store.snapshot()
	if err := fn(repository.WithTx(ctx, memTx{})); err != nil {
		t.store.restore(snap)
		return err
	}
	return nil
}

type storeSnapshot struct {
	projects  map[string]*entity.Project
	turns     map[string][]*entity.ConversationTurn
	research  map[string]*entity.ResearchArtifact
	documents map[string]*entity.GeneratedDocument
	downloads []*entity.DownloadEvent
	usage     []*entity.LLMUsageEvent
}

func (s *Store) snapshot() storeSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := storeSnapshot{
		projects:  cloneMap(s.projects),
		turns:     make(map[string][]*entity.ConversationTurn, len(s.turns)),
		research:  cloneMap(s.research),
		documents: cloneMap(s.documents),
		downloads: cloneSlice(s.downloads),
		usage:     cloneSlice(s.usage),
	}
	for id, turns := range s.turns {
		snap.turns[id] = cloneSlice(turns)
	}
	return snap
}

func (s *Store) restore(snap storeSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.projects = snap.projects
	s.turns = snap.turns
	s.research = snap.research
	s.documents = snap.documents
	s.downloads = snap.downloads
	s.usage = snap.usage
}

func cloneMap[T any](m map[string]*T) map[string]*T {
	out := make(map[string]*T, len(m))
	for k, v := range m {
		out[k] = clone(v)
	}
	return out
}

func cloneSlice[T any](in []*T) []*T {
	if in == nil {
		return nil
	}
	out := make([]*T, len(in))
	for i, v := range in {
		out[i] = clone(v)
	}
	return out
}

func newID() string {
	return uuid.NewString()
}

// clone 通过 JSON 往返做深拷贝，调用方拿到的对象与存储互不影响
func clone[T any](v *T) *T {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(err)
	}
	return &out
}
