package state

import "time"

const (
	// MaxLinkCost bounds a single link so that path sums cannot overflow.
	MaxLinkCost = Cost(1 << 32)
	// NoPort is returned for lookups that find no attached link.
	NoPort = Port(-1)
)

var (
	DefaultHeartbeat = time.Second * 1
	TickDelay        = time.Millisecond * 100
	DefaultTTL       = 64
	DefaultLatency   = time.Millisecond * 1

	// realtime network
	ProbeTimeout    = time.Second * 3
	DeliveryWorkers = 256
	DispatchBacklog = 128

	// log rotation
	LogMaxSizeMB  = 16
	LogMaxBackups = 3
)
