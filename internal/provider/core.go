package provider

import (
	"github.com/google/wire"
	"github.com/hybridkit/ota-agent/internal/adapter"
	"github.com/hybridkit/ota-agent/internal/notifier"
	"github.com/hybridkit/ota-agent/internal/remote"
	"github.com/hybridkit/ota-agent/internal/scheduler"
	"github.com/hybridkit/ota-agent/internal/updater"
)

var CoreSet = wire.NewSet(
	remote.NewClient,
	adapter.New,
	notifier.New,
	updater.New,
	scheduler.New,
	scheduler.NewTickerWake,
	scheduler.NewTimeoutWindow,
)
