package rio

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Interest 是注册时声明的关注事件集。
type Interest uint8

const (
	// InterestAccept 监听 socket：关注新连接到达
	InterestAccept Interest = iota + 1
	// InterestRead 已连接 socket：关注数据可读
	InterestRead
)

// NoReadLength 表示读请求未指定长度：任意一段非空数据即可完成。
const NoReadLength = -1

// Service 为某个 socket 关联的消费方回调集合。
// 监听 socket 携带的 Service 会被新接入的连接继承。
// OnReadReady 为连续读消费回调：由反应器在数据就绪且再入守卫空闲时
// 派发（至多同时一个在途），消费方处理完毕后必须调用 Reactor.FinishDispatch。
type Service interface {
	OnConnect(ctx *SocketContext)
	OnError(ctx *SocketContext, err *Error)
	OnReadReady(ctx *SocketContext)
}

// ReadCallback 接收一次读请求的最终结果，三者恰有其一被调用一次。
// OnError 表示可报告的 socket 层错误（正常返回路径）；
// OnFailure 表示未预期的致命失败，调用方不应自动重试。
type ReadCallback interface {
	OnComplete(data []byte, n int)
	OnError(err *Error)
	OnFailure(err error)
}

// RegistrationRequest 是投递给反应器线程的注册请求。
// 由任意线程创建，反应器线程恰好消费一次；在续体回调触发之前
// 不得假定注册已生效。
type RegistrationRequest struct {
	Ctx      *SocketContext
	Interest Interest
	// OnSuccess 的实参表示该 socket 是否挂有连续读消费方
	OnSuccess func(serviceAttached bool)
	OnFailure func(err *Error)
}

// Config 为反应器配置
type Config struct {
	EventBufferSize int           // 单次等待可取出的最大事件数
	StopGrace       time.Duration // Stop 等待事件循环退出的宽限期，超时后强制关闭多路复用器
	Logger          *logrus.Entry
}

// DefaultConfig 提供一组可工作的默认值
func DefaultConfig() Config {
	return Config{
		EventBufferSize: 1024,
		StopGrace:       time.Second,
	}
}

func newLogger() *logrus.Entry {
	return logrus.NewEntry(logrus.StandardLogger()).WithField("tag", "rio")
}
