package utils

import (
	"sync"

	"github.com/meetkit/meetkit-client/pkg/logger"
)

type OpsQueueParams struct {
	Name        string
	Size        int
	FlushOnStop bool
	Logger      logger.Logger
}

// OpsQueue serializes deferred operations onto a single worker goroutine.
// Operations enqueued from different goroutines run in enqueue order, which
// is what keeps concurrently-initiated sender parameter updates from
// interleaving.
type OpsQueue struct {
	params OpsQueueParams

	lock      sync.RWMutex
	ops       chan func()
	isStarted bool
	isStopped bool
}

func NewOpsQueue(params OpsQueueParams) *OpsQueue {
	if params.Logger == nil {
		params.Logger = logger.GetLogger()
	}
	if params.Size <= 0 {
		params.Size = 16
	}
	return &OpsQueue{
		params: params,
		ops:    make(chan func(), params.Size),
	}
}

func (oq *OpsQueue) Start() {
	oq.lock.Lock()
	defer oq.lock.Unlock()

	if oq.isStarted || oq.isStopped {
		return
	}
	oq.isStarted = true

	go oq.process()
}

func (oq *OpsQueue) Stop() {
	oq.lock.Lock()
	defer oq.lock.Unlock()

	if oq.isStopped {
		return
	}
	oq.isStopped = true

	if !oq.params.FlushOnStop {
		// drain whatever is queued without running it
		for {
			select {
			case <-oq.ops:
			default:
				close(oq.ops)
				return
			}
		}
	}
	close(oq.ops)
}

// Enqueue adds an operation, dropping it with an error log if the queue is
// full. A full queue means the worker is wedged and losing one deferred
// parameter update is preferable to blocking the caller.
func (oq *OpsQueue) Enqueue(op func()) {
	oq.lock.RLock()
	defer oq.lock.RUnlock()

	if oq.isStopped {
		return
	}

	select {
	case oq.ops <- op:
	default:
		oq.params.Logger.Errorw("ops queue full", nil, "name", oq.params.Name, "size", oq.params.Size)
	}
}

func (oq *OpsQueue) process() {
	for op := range oq.ops {
		op()
	}
}
