package rio

import "sync"

// readyRecord 记录一次已触发但尚未被消费的读就绪。
type readyRecord struct {
	ctx *SocketContext
}

// pendingRead 是一次在途的显式读请求。
// mu 由派发线程与读请求线程共享，读系统调用在其保护下执行。
type pendingRead struct {
	mu       sync.Mutex
	ctx      *SocketContext
	expected int // NoReadLength 表示未指定长度
	data     []byte
	cb       ReadCallback
}

// readyRegistry 按 socket id 保存就绪记录，多线程访问。
type readyRegistry struct {
	m sync.Map // uint64 -> *readyRecord
}

func (r *readyRegistry) store(id uint64, rec *readyRecord) {
	r.m.Store(id, rec)
}

func (r *readyRegistry) load(id uint64) (*readyRecord, bool) {
	v, ok := r.m.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*readyRecord), true
}

// take 原子地取走就绪记录，保证就绪与读请求的匹配互斥。
func (r *readyRegistry) take(id uint64) (*readyRecord, bool) {
	v, ok := r.m.LoadAndDelete(id)
	if !ok {
		return nil, false
	}
	return v.(*readyRecord), true
}

func (r *readyRegistry) delete(id uint64) {
	r.m.Delete(id)
}

// pendingRegistry 按 socket id 保存在途读请求，多线程访问。
type pendingRegistry struct {
	m sync.Map // uint64 -> *pendingRead
}

// storeIfAbsent 保证每个 socket 至多一个在途读请求。
func (r *pendingRegistry) storeIfAbsent(id uint64, p *pendingRead) bool {
	_, loaded := r.m.LoadOrStore(id, p)
	return !loaded
}

func (r *pendingRegistry) store(id uint64, p *pendingRead) {
	r.m.Store(id, p)
}

func (r *pendingRegistry) load(id uint64) (*pendingRead, bool) {
	v, ok := r.m.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*pendingRead), true
}

func (r *pendingRegistry) delete(id uint64) {
	r.m.Delete(id)
}
