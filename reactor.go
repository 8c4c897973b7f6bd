package rio

import (
	"sync"
	"sync/atomic"
	"time"

	E "github.com/sagernet/sing/common/exceptions"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/legamerdc/rio/internal/netutil"
	"github.com/legamerdc/rio/poller"
)

// Reactor 用单一派发 goroutine 复用多个 socket 的就绪事件，
// 并与来自任意线程的读请求协调。多路复用器的注册与兴趣变更
// 仅发生在派发 goroutine；读系统调用本身可在持有 per-socket
// 锁的请求线程上执行。
type Reactor struct {
	cfg Config
	log *logrus.Entry
	pl  poller.Poller

	mu       sync.Mutex // 保护 Start/Stop
	running  bool
	stopping atomic.Bool
	done     chan struct{}

	regQueue    *notifyQueue[*RegistrationRequest]
	resumeQueue *notifyQueue[uint64]

	contexts sync.Map // poller.FD -> *SocketContext
	nextID   atomic.Uint64

	ready   readyRegistry
	pending pendingRegistry
}

// New 构造未启动的反应器。多路复用器创建失败是构造期致命错误。
func New(cfg Config) (*Reactor, error) {
	if cfg.EventBufferSize <= 0 {
		cfg.EventBufferSize = DefaultConfig().EventBufferSize
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = DefaultConfig().StopGrace
	}
	if cfg.Logger == nil {
		cfg.Logger = newLogger()
	}
	pl, err := poller.New()
	if err != nil {
		return nil, E.Cause(err, "rio: unable to initialize the multiplexer")
	}
	return &Reactor{
		cfg:         cfg,
		log:         cfg.Logger,
		pl:          pl,
		regQueue:    newNotifyQueue[*RegistrationRequest](),
		resumeQueue: newNotifyQueue[uint64](),
	}, nil
}

// Start 幂等启动派发 goroutine。
func (r *Reactor) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running || r.stopping.Load() {
		return
	}
	r.done = make(chan struct{})
	go r.loop()
	r.running = true
}

// Stop 幂等停止：唤醒多路复用器，等待事件循环在宽限期内退出，
// 超时则强制关闭多路复用器令其立即失败返回。
func (r *Reactor) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	r.log.Debug("stopping the reactor loop")
	r.stopping.Store(true)
	r.running = false
	_ = r.pl.Wake()
	select {
	case <-r.done:
	case <-time.After(r.cfg.StopGrace):
	}
	_ = r.pl.Close()
}

// RegisterChannel 将注册请求入队并唤醒派发 goroutine，任意线程可调用。
// 注册结果经请求的续体回调通知。
func (r *Reactor) RegisterChannel(req *RegistrationRequest) error {
	if req == nil || req.Ctx == nil || req.Interest == 0 {
		return ErrInvalidArgument
	}
	if r.stopping.Load() {
		return ErrReactorClosed
	}
	r.regQueue.push(req)
	return r.pl.Wake()
}

// UnregisterChannel 取消某个 socket 的就绪键，任意线程可调用。
// 多路复用器层面的删除效果在下一次唤醒后可见。
// 停驻中的读请求被作废并以连接已关闭错误通知，不再无限等待。
func (r *Reactor) UnregisterChannel(ctx *SocketContext) {
	if ctx == nil {
		return
	}
	_ = r.pl.Unregister(ctx.fd)
	r.contexts.Delete(ctx.fd)
	r.ready.delete(ctx.id)
	if p, ok := r.pending.load(ctx.id); ok {
		p.mu.Lock()
		// 锁内复核：在途读取可能已抢先完成该请求
		if cur, ok := r.pending.load(ctx.id); ok && cur == p {
			r.pending.delete(ctx.id)
			p.cb.OnError(newError(KindConnectionClosedDuringRead, "connection closed"))
		}
		p.mu.Unlock()
	}
}

// RequestRead 登记一个读请求：length 为期望读满的字节数，
// NoReadLength 表示任意一段非空数据即可。每个 socket 同时至多
// 一个在途读请求。结果经 cb 恰好通知一次。
func (r *Reactor) RequestRead(ctx *SocketContext, length int, cb ReadCallback) error {
	if ctx == nil || cb == nil || (length <= 0 && length != NoReadLength) {
		return ErrInvalidArgument
	}
	if ctx.id == 0 {
		return ErrNotRegistered
	}
	if r.stopping.Load() {
		return ErrReactorClosed
	}
	p := &pendingRead{ctx: ctx, expected: length, cb: cb}
	if !r.pending.storeIfAbsent(ctx.id, p) {
		return ErrReadPending
	}
	r.invokeRead(ctx.id, ctx.service != nil)
	return nil
}

// FinishDispatch 由连续读消费方在处理完一次 OnReadReady 派发后调用：
// 释放再入守卫，并将该 socket 入队恢复派发（处理期间可能又有数据就绪）。
func (r *Reactor) FinishDispatch(ctx *SocketContext) {
	if ctx == nil {
		return
	}
	ctx.releaseGuard()
	r.resumeQueue.push(ctx.id)
	_ = r.pl.Wake()
}

func (r *Reactor) loop() {
	defer close(r.done)
	events := make([]poller.Event, r.cfg.EventBufferSize)
	for !r.stopping.Load() {
		if !r.iterate(events) {
			return
		}
	}
}

// iterate 执行事件循环的一轮，返回 false 表示循环应当退出。
// 任何单轮内的意外失败都只记录日志，不允许终结反应器。
func (r *Reactor) iterate(events []poller.Event) (next bool) {
	next = true
	defer func() {
		if v := recover(); v != nil {
			r.log.Errorf("an error occurred in reactor loop: %v", v)
		}
	}()
	r.drainRegistrations()
	r.drainResume()
	n, err := r.pl.Wait(events)
	if err != nil {
		if r.stopping.Load() || err == unix.EBADF {
			// 多路复用器已关闭
			return false
		}
		r.log.Errorf("reactor wait: %v", err)
		return true
	}
	for i := 0; i < n; i++ {
		r.handleEvent(events[i])
	}
	return true
}

// drainRegistrations 处理积压的注册请求。注册必须发生在派发 goroutine。
func (r *Reactor) drainRegistrations() {
	for {
		req, ok := r.regQueue.pop()
		if !ok {
			return
		}
		r.register(req)
	}
}

func (r *Reactor) register(req *RegistrationRequest) {
	ctx := req.Ctx
	// 监听与读兴趣在多路复用器层面都表现为可读
	if err := r.pl.Register(ctx.fd, true, false); err != nil {
		if req.OnFailure != nil {
			req.OnFailure(wrapError(KindRegistrationFailed, err, "socket already closed"))
		}
		return
	}
	if ctx.id == 0 {
		ctx.id = r.nextID.Add(1)
	}
	r.contexts.Store(ctx.fd, ctx)
	if req.OnSuccess != nil {
		req.OnSuccess(ctx.service != nil && req.Interest == InterestRead)
	}
}

// drainResume 处理读完成后登记的恢复派发通知；
// 若对应 socket 已无就绪记录则直接跳过。
func (r *Reactor) drainResume() {
	for {
		id, ok := r.resumeQueue.pop()
		if !ok {
			return
		}
		rec, ok := r.ready.load(id)
		if !ok {
			continue
		}
		r.invokeRead(id, rec.ctx.service != nil)
	}
}

func (r *Reactor) handleEvent(ev poller.Event) {
	v, ok := r.contexts.Load(ev.FD)
	if !ok {
		// 陈旧事件：该 fd 已不在册，取消其就绪键
		_ = r.pl.Unregister(ev.FD)
		return
	}
	ctx := v.(*SocketContext)
	if ctx.kind == kindListener {
		if ev.Readable {
			r.acceptLoop(ctx)
		}
		return
	}
	if ev.Readable || ev.Closed {
		r.onReadReady(ctx, ev.Closed)
	}
}

// onReadReady 清除该 socket 的读兴趣直至数据被消费（防止零进度忙轮询），
// 闩存就绪记录并进入 dispatch-or-wait。
func (r *Reactor) onReadReady(ctx *SocketContext, closed bool) {
	if closed {
		// ERR/HUP 不受兴趣掩码约束，必须摘除注册以免忙轮询；
		// 残留数据仍可经闩存的就绪记录读出
		_ = r.pl.Unregister(ctx.fd)
	} else if err := r.pl.Mod(ctx.fd, false, false); err != nil {
		r.log.Debugf("clear read interest fd=%d: %v", ctx.fd, err)
	}
	r.ready.store(ctx.id, &readyRecord{ctx: ctx})
	r.invokeRead(ctx.id, ctx.service != nil)
}

// invokeRead 是 dispatch-or-wait 的入口：就绪到达或读请求发起时都会走到这里。
// 存在在途读请求时，在其 per-socket 锁内确认就绪后执行读取；
// 否则若挂有连续读消费方且就绪已闩存，尝试派发一次。
func (r *Reactor) invokeRead(id uint64, serviceAttached bool) {
	if p, ok := r.pending.load(id); ok {
		p.mu.Lock()
		// 锁内复核：另一线程可能已完成并移除了该请求
		if cur, ok := r.pending.load(id); ok && cur == p {
			// 原子取走就绪记录，确保一次就绪只喂给一次读取
			if _, ok := r.ready.take(id); ok {
				r.read(p)
			}
		}
		p.mu.Unlock()
		return
	}
	if serviceAttached {
		if rec, ok := r.ready.load(id); ok {
			r.dispatchReadReady(rec.ctx)
		}
	}
}

// dispatchReadReady 在非阻塞拿到再入守卫时派发消费回调；
// 拿不到说明已有一次派发在途，跳过。
func (r *Reactor) dispatchReadReady(ctx *SocketContext) {
	if !ctx.tryAcquireGuard() {
		return
	}
	go ctx.service.OnReadReady(ctx)
}

// rearmRead 恢复读兴趣；就绪键曾被摘除（ERR/HUP 路径）时重新注册。
func (r *Reactor) rearmRead(ctx *SocketContext) {
	if err := r.pl.Mod(ctx.fd, true, false); err != nil {
		if err := r.pl.Register(ctx.fd, true, false); err != nil {
			r.log.Debugf("rearm read interest fd=%d: %v", ctx.fd, err)
		}
	}
}

func (r *Reactor) acceptLoop(lctx *SocketContext) {
	for {
		fd, err := acceptConn(lctx.fd)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			r.notifyAcceptError(lctx, err)
			return
		}
		_ = netutil.SetNoDelay(fd, true)
		ctx := NewConnectionContext(fd, lctx.service)
		ctx.id = r.nextID.Add(1)
		// 同线程直接注册，无需经过注册队列
		if err := r.pl.Register(fd, true, false); err != nil {
			r.log.Errorf("register accepted client fd=%d: %v", fd, err)
			_ = netutil.Close(fd)
			continue
		}
		r.contexts.Store(fd, ctx)
		if lctx.service != nil {
			go lctx.service.OnConnect(ctx)
		}
	}
}

func (r *Reactor) notifyAcceptError(lctx *SocketContext, err error) {
	var e *Error
	switch err {
	case unix.EINTR:
		e = newError(KindAcceptInterrupted, "client accept interrupt by another process")
	case unix.ECONNABORTED:
		e = newError(KindAcceptClosedByPeerProcess, "client closed by another process")
	case unix.EBADF, unix.EINVAL:
		e = newError(KindAcceptOnClosedChannel, "client is already closed")
	default:
		r.log.Errorf("an error occurred while accepting new client: %v", err)
		e = wrapError(KindAcceptGenericIO, err, "unable to accept a new client")
	}
	if lctx.service != nil {
		go lctx.service.OnError(lctx, e)
	}
}
