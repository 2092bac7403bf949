package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"feed-translator/internal/apperr"
	"feed-translator/internal/engine"
	"feed-translator/internal/model"
	"feed-translator/internal/store"
)

// EngineSource 按 ID 取得可用的引擎实例
type EngineSource interface {
	Engine(ctx context.Context, id *uint) (engine.Engine, error)
}

// EngineService 引擎配置的读取、创建和显式校验
type EngineService struct {
	repo     *store.Repository
	registry *engine.Registry
	resolver *engine.Resolver
	logger   *zap.Logger
}

func NewEngineService(repo *store.Repository, registry *engine.Registry, resolver *engine.Resolver, logger *zap.Logger) *EngineService {
	return &EngineService{repo: repo, registry: registry, resolver: resolver, logger: logger.Named("engines")}
}

func (s *EngineService) Engine(ctx context.Context, id *uint) (engine.Engine, error) {
	if id == nil {
		return nil, apperr.Configuration("no engine selected")
	}
	cfg, err := s.repo.EngineByID(ctx, *id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Configuration("engine %d not found", *id)
		}
		return nil, err
	}
	return s.resolver.Resolve(cfg)
}

func (s *EngineService) List(ctx context.Context) ([]model.EngineConfig, error) {
	return s.repo.ListEngines(ctx)
}

// Create 先按 kind 构造一次，配置无效时不会写入
func (s *EngineService) Create(ctx context.Context, cfg *model.EngineConfig) error {
	cfg.Name = strings.TrimSpace(cfg.Name)
	if cfg.Name == "" {
		return apperr.Configuration("engine name is empty")
	}
	if _, err := s.registry.Build(cfg); err != nil {
		return err
	}
	cfg.Valid = nil
	return s.repo.CreateEngine(ctx, cfg)
}

// Seed 启动时按名称写入配置文件里的引擎
func (s *EngineService) Seed(ctx context.Context, name, kind string, settings map[string]any) error {
	cfg := &model.EngineConfig{Name: name, Kind: kind}
	if err := cfg.Encode(settings); err != nil {
		return fmt.Errorf("encode settings of %s: %w", name, err)
	}
	if _, err := s.registry.Build(cfg); err != nil {
		return err
	}
	if err := s.repo.UpsertEngine(ctx, cfg); err != nil {
		return err
	}
	if cfg.ID != 0 {
		s.resolver.Forget(cfg.ID)
	}
	return nil
}

// Validate 调用服务确认凭据可用，并写回有效标记。同步流程不会调用它
func (s *EngineService) Validate(ctx context.Context, cfg *model.EngineConfig) (bool, error) {
	eng, err := s.resolver.Resolve(cfg)
	if err != nil {
		return false, err
	}
	valid := eng.Validate(ctx)
	if err := s.repo.SetEngineValid(ctx, cfg, valid); err != nil {
		return valid, err
	}
	s.logger.Info("engine validated", zap.String("engine", cfg.Name), zap.Bool("valid", valid))
	return valid, nil
}

func (s *EngineService) ValidateByID(ctx context.Context, id uint) (bool, error) {
	cfg, err := s.repo.EngineByID(ctx, id)
	if err != nil {
		return false, err
	}
	return s.Validate(ctx, cfg)
}

func (s *EngineService) ValidateByName(ctx context.Context, name string) (bool, error) {
	cfg, err := s.repo.EngineByName(ctx, name)
	if err != nil {
		return false, err
	}
	return s.Validate(ctx, cfg)
}
