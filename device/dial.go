package device

import (
	"context"
	"time"

	zenohrpc "github.com/AkihiroUeda35/zenoh-rpc-go"
)

// SessionFactory 建立一条会话
type SessionFactory func() (zenohrpc.Session, error)

// Dial 反复尝试建立会话直到成功或 ctx 取消。
// 设备侧对端可能后启动，失败后等 backoff 再试
func Dial(ctx context.Context, factory SessionFactory, backoff time.Duration, logger zenohrpc.Logger) (zenohrpc.Session, error) {
	if logger == nil {
		logger = zenohrpc.DefaultLogger
	}
	if backoff <= 0 {
		backoff = time.Second
	}

	for {
		session, err := factory()
		if err == nil {
			return session, nil
		}
		logger.Warnf("device: session open failed: %v, retry in %s", err, backoff)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
}
