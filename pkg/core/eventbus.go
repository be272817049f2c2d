package core

import (
	"github.com/asaskevich/EventBus"
	"go.uber.org/zap"
)

var Bus = EventBus.New()

const (
	EventStarted  = "sys.started"
	EventStopping = "sys.stopping"
	// EventLockAcquired and EventLockReleased carry the resource name.
	EventLockAcquired = "locker.acquired"
	EventLockReleased = "locker.released"
)

type SystenEvent func()

func OnServiceStopping(fn SystenEvent) {
	if err := Bus.SubscribeOnce(EventStopping, fn); err != nil {
		zap.L().Error("subscribe stopping event failed", zap.Error(err))
	}
}
