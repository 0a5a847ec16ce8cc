// Package bridge funnels items from any number of producers into a single goroutine that owns a buffer.
package bridge

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/G-Research/indexq/internal/indexq/buffer"
)

const (
	DefaultCapacity = 1000
	DefaultIdleWait = 100 * time.Millisecond
)

type stopSignal struct{}

// Stop marks the end of input. Once the consumer has seen it and the channel is empty, the buffer is
// finalized and the consumer exits.
var Stop interface{} = stopSignal{}

// Adder is what the consumer drains into; normally a buffer.Buffer created with buffer.NewExclusive.
type Adder interface {
	Add(item interface{}, finalize bool, onFlush buffer.FlushCallback) (buffer.AddResult, error)
}

type Options struct {
	// Items that can be queued before Put blocks
	Capacity int
	// How long the consumer waits on an empty channel before checking whether it has been stopped
	IdleWait time.Duration
	Clock    clock.Clock
}

type Bridge struct {
	items    chan interface{}
	adder    Adder
	idleWait time.Duration
	clock    clock.Clock
	done     chan struct{}
	start    sync.Once
	log      *log.Entry

	// Only touched by the consumer until done is closed
	stopping bool
	errs     *multierror.Error
	added    int
}

func New(adder Adder, opts Options) *Bridge {
	if opts.Capacity < 0 {
		opts.Capacity = 0
	}
	if opts.IdleWait <= 0 {
		opts.IdleWait = DefaultIdleWait
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	return &Bridge{
		items:    make(chan interface{}, opts.Capacity),
		adder:    adder,
		idleWait: opts.IdleWait,
		clock:    opts.Clock,
		done:     make(chan struct{}),
		log:      log.WithField("bridge", uuid.NewString()),
	}
}

// Start launches the consumer. Calling it more than once has no effect.
func (b *Bridge) Start() {
	b.start.Do(func() {
		b.log.Debug("Starting bridge consumer")
		go b.run()
	})
}

// Put hands an item to the consumer, blocking while the channel is full. Items must not be put after Stop.
func (b *Bridge) Put(item interface{}) error {
	select {
	case <-b.done:
		return errors.New("bridge consumer has stopped")
	default:
	}
	select {
	case b.items <- item:
		return nil
	case <-b.done:
		return errors.New("bridge consumer has stopped")
	}
}

// Join blocks until the consumer has seen Stop, drained the channel and flushed the buffer. It returns every
// error the buffer reported along the way.
func (b *Bridge) Join() error {
	<-b.done
	return b.errs.ErrorOrNil()
}

// Close sends Stop and waits for the consumer to finish.
func (b *Bridge) Close() error {
	_ = b.Put(Stop)
	return b.Join()
}

// Done is closed once the consumer has exited.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

func (b *Bridge) run() {
	defer close(b.done)
	for {
		select {
		case item := <-b.items:
			if _, ok := item.(stopSignal); ok {
				b.stopping = true
				if len(b.items) == 0 {
					b.finalize()
					return
				}
				continue
			}
			b.add(item)
		case <-b.clock.After(b.idleWait):
			if b.stopping && len(b.items) == 0 {
				b.finalize()
				return
			}
		}
	}
}

func (b *Bridge) add(item interface{}) {
	b.added++
	if _, err := b.adder.Add(item, false, nil); err != nil {
		b.log.WithError(err).Error("Failed to buffer item")
		b.errs = multierror.Append(b.errs, err)
	}
}

func (b *Bridge) finalize() {
	if _, err := b.adder.Add(nil, true, nil); err != nil {
		b.log.WithError(err).Error("Failed to flush buffer on stop")
		b.errs = multierror.Append(b.errs, err)
	}
	b.log.Infof("Bridge stopped after consuming %d items", b.added)
}
