package app

import (
	"context"
	"fmt"

	condorcfg "condor/internal/config"
	"condor/internal/dispatch"
	"condor/internal/engine"
	"condor/internal/logger"
	"condor/internal/notify"
	"condor/internal/store"
	apihttp "condor/internal/transport/http"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：加载配置→初始化依赖→启动评估循环与 HTTP 服务。
type App struct {
	cfg        *condorcfg.Config
	store      store.Store
	engine     *engine.Engine
	dispatcher *dispatch.Dispatcher
	notifier   *notify.Dispatcher
	templates  *notify.Registry
	httpServer *apihttp.Server

	closers []func() error
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *condorcfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.SetFormat(cfg.App.LogFormat)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 启动评估引擎、派发循环与 HTTP 服务，直到 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.engine == nil || a.dispatcher == nil {
		return fmt.Errorf("engine not initialized")
	}
	defer a.Close()

	if a.templates != nil {
		if err := a.templates.Watch(); err != nil {
			logger.Warnf("模板热加载未启用 err=%v", err)
		}
	}

	group, ctx := errgroup.WithContext(ctx)

	if a.httpServer != nil {
		group.Go(func() error {
			if err := a.httpServer.Start(ctx); err != nil {
				return fmt.Errorf("http server error: %w", err)
			}
			return nil
		})
		logger.Infof("✓ HTTP 服务监听 %s", a.httpServer.Addr())
	}

	group.Go(func() error {
		a.dispatcher.Run(ctx, a.engine.Triggers())
		return nil
	})

	group.Go(func() error {
		a.engine.Run(ctx)
		return nil
	})

	return group.Wait()
}

// Close releases stores and watchers; safe to call more than once.
func (a *App) Close() {
	if a == nil {
		return
	}
	for _, fn := range a.closers {
		if err := fn(); err != nil {
			logger.Warnf("关闭资源失败 err=%v", err)
		}
	}
	a.closers = nil
}
