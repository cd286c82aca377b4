//go:build linux

package collector

import linuxcollector "github.com/notifydone/notifyd/collector/linux"

func New(cfg Config) Collector {
	return linuxcollector.NewCollector(cfg)
}
