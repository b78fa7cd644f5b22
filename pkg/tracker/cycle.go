package tracker

import "time"

// Cycle summarises one finished refresh
type Cycle struct {
	StartedAt  time.Time
	FinishedAt time.Time

	Mode    Mode
	Cleared bool

	Vehicles   int
	Updated    int
	Removed    int
	Missing    int
	FailedKeys []string

	Err error
}

// CycleObserver is told about every refresh the coordinator runs, failed or not
type CycleObserver interface {
	OnRefreshCycle(cycle Cycle)
}

type CycleObserverFunc func(cycle Cycle)

func (f CycleObserverFunc) OnRefreshCycle(cycle Cycle) {
	f(cycle)
}
