package poller

// FD 表示文件描述符。
type FD = int

// Event 是一次就绪事件。
// Closed 表示内核报告了 ERR/HUP 类状态，已到达的数据可能仍可读出。
type Event struct {
	FD       FD
	Readable bool
	Writable bool
	Closed   bool
}

// Poller 提供注册/兴趣修改与阻塞等待。所有实现均为水平触发：
// 上层通过清除读兴趣避免零进度的重复唤醒。
// Register/Mod/Unregister/Wake 为内核级线程安全；Wait 只允许单一 goroutine 调用。
type Poller interface {
	Register(fd FD, readable, writable bool) error
	Mod(fd FD, readable, writable bool) error
	Unregister(fd FD) error
	Wait(events []Event) (int, error)
	Wake() error
	Close() error
}
