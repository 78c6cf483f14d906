package svc

import "errors"

// ErrNoConsumersEnabled 错误：没有启用任何消费者
var ErrNoConsumersEnabled = errors.New("no consumers enabled")

// ErrUnknownFeed is returned when feed.name has no registered factory.
var ErrUnknownFeed = errors.New("unknown price feed")
