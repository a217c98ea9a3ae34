package geofence

import (
	"context"
	"sync"
	"sync/atomic"
)

// Loader：一次性加载边界数据；boundary.Store 满足该接口
type Loader interface {
	Load(ctx context.Context) error
}

// State：预加载状态
type State int32

const (
	StateIdle State = iota
	StateLoading
	StateLoaded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// 文档注释：边界数据预加载器（记忆化单例）
// 背景：区域数据在进程内静态不变，只需加载一次；并发调用方共享同一次进行中的加载，不重复拉取。
// 约束：加载在独立协程中以脱离调用方取消的上下文执行，单个调用方超时不会中断共享加载；失败后下一次 Preload 重试。
// 不做淘汰与 TTL。
type Preloader struct {
	loader Loader
	loads  atomic.Int64

	mu    sync.Mutex
	state State
	cur   *attempt
	err   error
}

// attempt：一次加载；err 在 done 关闭前写入
type attempt struct {
	done chan struct{}
	err  error
}

func NewPreloader(l Loader) *Preloader { return &Preloader{loader: l} }

// Preload：等待数据驻留；已加载时立即返回
func (p *Preloader) Preload(ctx context.Context) error {
	p.mu.Lock()
	switch p.state {
	case StateLoaded:
		p.mu.Unlock()
		return nil
	case StateLoading:
	default:
		p.state = StateLoading
		p.err = nil
		p.cur = &attempt{done: make(chan struct{})}
		go p.run(context.WithoutCancel(ctx), p.cur)
	}
	a := p.cur
	p.mu.Unlock()
	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Preloader) run(ctx context.Context, a *attempt) {
	p.loads.Add(1)
	a.err = p.loader.Load(ctx)
	p.mu.Lock()
	if a.err != nil {
		p.state = StateFailed
		p.err = a.err
	} else {
		p.state = StateLoaded
	}
	close(a.done)
	p.mu.Unlock()
}

// Wait：校验路径使用；加载进行中则等待，未发起或已失败时立即返回 false（由调用方降级）
func (p *Preloader) Wait(ctx context.Context) bool {
	p.mu.Lock()
	st, a := p.state, p.cur
	p.mu.Unlock()
	switch st {
	case StateLoaded:
		return true
	case StateLoading:
		select {
		case <-a.done:
			return a.err == nil
		case <-ctx.Done():
			return false
		}
	default:
		return false
	}
}

func (p *Preloader) IsLoaded() bool { return p.State() == StateLoaded }

func (p *Preloader) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Err：最近一次失败原因
func (p *Preloader) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Loads：实际发起的加载次数
func (p *Preloader) Loads() int64 { return p.loads.Load() }
