package collector

import common "github.com/notifydone/notifyd/collector/common"

const (
	KindExec = common.KindExec
	KindExit = common.KindExit
)

var ErrLinuxOnly = common.ErrLinuxOnly

type Kind = common.Kind
type Event = common.Event
type Config = common.Config
type Stats = common.Stats
type Collector = common.Collector
