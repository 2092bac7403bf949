package engine

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"feed-translator/internal/apperr"
	"feed-translator/internal/model"
)

// Options 所有引擎共享的依赖
type Options struct {
	HTTPClient *http.Client
	Logger     *zap.Logger
}

func (o Options) httpClient() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return &http.Client{Timeout: 120 * time.Second}
}

func (o Options) logger() *zap.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return zap.NewNop()
}

// Factory 根据配置记录构造引擎
type Factory func(cfg *model.EngineConfig, opts Options) (Engine, error)

// Registry kind -> Factory。新增服务只需要注册，不需要修改调用方
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	opts      Options
}

// NewRegistry 包含全部内置实现
func NewRegistry(opts Options) *Registry {
	r := &Registry{factories: make(map[string]Factory), opts: opts}
	r.Register(KindOpenAI, NewOpenAI)
	r.Register(KindAnthropic, NewAnthropic)
	r.Register(KindGemini, NewGemini)
	r.Register(KindDeepL, NewDeepL)
	r.Register(KindDeepLX, NewDeepLX)
	r.Register(KindMicrosoft, NewMicrosoft)
	r.Register(KindGoogleWeb, NewGoogleWeb)
	r.Register(KindTest, NewTest)
	return r
}

func (r *Registry) Register(kind string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

// Kinds 已注册的类型，按字母排序
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

func (r *Registry) Build(cfg *model.EngineConfig) (Engine, error) {
	r.mu.RLock()
	f, ok := r.factories[cfg.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, apperr.Configuration("unknown engine kind %q", cfg.Kind)
	}
	e, err := f(cfg, r.opts)
	if err != nil {
		return nil, fmt.Errorf("build engine %q: %w", cfg.Name, err)
	}
	return e, nil
}

type resolved struct {
	updatedAt time.Time
	engine    Engine
}

// Resolver 按 ID 缓存引擎实例，让同一引擎的限速器在各 worker 间共享。
// 配置记录更新后重新构造
type Resolver struct {
	registry *Registry
	mu       sync.Mutex
	engines  map[uint]resolved
}

func NewResolver(registry *Registry) *Resolver {
	return &Resolver{registry: registry, engines: make(map[uint]resolved)}
}

func (r *Resolver) Resolve(cfg *model.EngineConfig) (Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.engines[cfg.ID]; ok && cached.updatedAt.Equal(cfg.UpdatedAt) {
		return cached.engine, nil
	}
	e, err := r.registry.Build(cfg)
	if err != nil {
		return nil, err
	}
	r.engines[cfg.ID] = resolved{updatedAt: cfg.UpdatedAt, engine: e}
	return e, nil
}

// Forget 删除缓存的实例
func (r *Resolver) Forget(id uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.engines, id)
}
