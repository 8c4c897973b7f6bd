//go:build linux || darwin

package rio

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/legamerdc/rio/poller"
)

// stubPoller 把兴趣变更交给测试钩子，用于确定性地制造读取期间的竞争时序。
type stubPoller struct {
	mod func(fd poller.FD, readable, writable bool)
}

func (s *stubPoller) Register(poller.FD, bool, bool) error { return nil }

func (s *stubPoller) Mod(fd poller.FD, readable, writable bool) error {
	if s.mod != nil {
		s.mod(fd, readable, writable)
	}
	return nil
}

func (s *stubPoller) Unregister(poller.FD) error       { return nil }
func (s *stubPoller) Wait([]poller.Event) (int, error) { return 0, nil }
func (s *stubPoller) Wake() error                      { return nil }
func (s *stubPoller) Close() error                     { return nil }

func newStubReactor(pl poller.Poller) *Reactor {
	return &Reactor{
		cfg:         DefaultConfig(),
		log:         newLogger(),
		pl:          pl,
		regQueue:    newNotifyQueue[*RegistrationRequest](),
		resumeQueue: newNotifyQueue[uint64](),
	}
}

// recordingCallback 供单 goroutine 驱动的测试同步记录结果。
type recordingCallback struct {
	data        []byte
	n           int
	errs        []*Error
	fatal       []error
	completions int
}

func (c *recordingCallback) OnComplete(data []byte, n int) {
	c.data = data
	c.n = n
	c.completions++
}

func (c *recordingCallback) OnError(err *Error) { c.errs = append(c.errs, err) }

func (c *recordingCallback) OnFailure(err error) { c.fatal = append(c.fatal, err) }

type panickyCallback struct {
	recordingCallback
}

func (c *panickyCallback) OnComplete([]byte, int) { panic("callback exploded") }

func testSocketpair(t *testing.T) (local, peer int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	local, peer = fds[0], fds[1]
	require.NoError(t, unix.SetNonblock(local, true))
	t.Cleanup(func() {
		unix.Close(local)
		unix.Close(peer)
	})
	return local, peer
}

// 部分读取后、兴趣恢复的瞬间新数据到达且就绪已被事件线程闩存：
// 组装必须续读该就绪，而不是停驻后永远等待。
func TestPartialReadResumesLatchedReadiness(t *testing.T) {
	local, peer := testSocketpair(t)
	stub := &stubPoller{}
	r := newStubReactor(stub)
	ctx := NewConnectionContext(local, nil)
	ctx.id = 1
	r.contexts.Store(local, ctx)

	rearmed := false
	stub.mod = func(_ poller.FD, readable, _ bool) {
		if !readable || rearmed {
			return
		}
		rearmed = true
		_, werr := unix.Write(peer, []byte("llo"))
		require.NoError(t, werr)
		r.ready.store(ctx.id, &readyRecord{ctx: ctx})
	}

	_, err := unix.Write(peer, []byte("he"))
	require.NoError(t, err)

	cb := &recordingCallback{}
	require.NoError(t, r.RequestRead(ctx, 5, cb))
	r.ready.store(ctx.id, &readyRecord{ctx: ctx})
	r.invokeRead(ctx.id, false)

	require.Equal(t, 1, cb.completions)
	require.Equal(t, []byte("hello"), cb.data)
	require.Equal(t, 5, cb.n)
}

// 读取在途期间请求保持在册：竞争的读请求必须得到 ErrReadPending，
// 且原请求不被顶替，后续就绪仍推进它。
func TestRequestReadRejectedWhileReadInFlight(t *testing.T) {
	local, peer := testSocketpair(t)
	stub := &stubPoller{}
	r := newStubReactor(stub)
	ctx := NewConnectionContext(local, nil)
	ctx.id = 1
	r.contexts.Store(local, ctx)

	var racing error
	raced := false
	stub.mod = func(_ poller.FD, readable, _ bool) {
		if !readable || raced {
			return
		}
		raced = true
		racing = r.RequestRead(ctx, 1, &recordingCallback{})
	}

	_, err := unix.Write(peer, []byte("he"))
	require.NoError(t, err)

	cb := &recordingCallback{}
	require.NoError(t, r.RequestRead(ctx, 5, cb))
	r.ready.store(ctx.id, &readyRecord{ctx: ctx})
	r.invokeRead(ctx.id, false)

	require.ErrorIs(t, racing, ErrReadPending)
	require.Zero(t, cb.completions)

	_, err = unix.Write(peer, []byte("llo"))
	require.NoError(t, err)
	r.ready.store(ctx.id, &readyRecord{ctx: ctx})
	r.invokeRead(ctx.id, false)

	require.Equal(t, 1, cb.completions)
	require.Equal(t, []byte("hello"), cb.data)
}

// 完成回调抛出时经失败通道上报，且请求从注册表摘除。
func TestReadCallbackPanicReportsFailure(t *testing.T) {
	local, peer := testSocketpair(t)
	r := newStubReactor(&stubPoller{})
	ctx := NewConnectionContext(local, nil)
	ctx.id = 1
	r.contexts.Store(local, ctx)

	_, err := unix.Write(peer, []byte("ping"))
	require.NoError(t, err)

	cb := &panickyCallback{}
	require.NoError(t, r.RequestRead(ctx, NoReadLength, cb))
	r.ready.store(ctx.id, &readyRecord{ctx: ctx})
	r.invokeRead(ctx.id, false)

	require.Len(t, cb.fatal, 1)
	var e *Error
	require.ErrorAs(t, cb.fatal[0], &e)
	require.Equal(t, KindUnexpectedReadFailure, e.Kind)
	_, ok := r.pending.load(ctx.id)
	require.False(t, ok)
}

func TestReadErrorKinds(t *testing.T) {
	r := newStubReactor(&stubPoller{})
	require.Equal(t, KindNotYetConnected, r.readError(unix.ENOTCONN).Kind)
	require.Equal(t, KindConnectionClosedDuringRead, r.readError(unix.ECONNRESET).Kind)
	require.Equal(t, KindConnectionClosedDuringRead, r.readError(unix.EPIPE).Kind)
	require.Equal(t, KindConnectionClosedDuringRead, r.readError(unix.EBADF).Kind)
	require.Equal(t, KindReadGenericIO, r.readError(unix.EIO).Kind)
}
