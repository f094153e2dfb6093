package events

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// Dispatcher publishes document events without blocking request handlers: a bounded local queue
// drained by workers that retry on an exponential policy. When Kafka stalls the queue absorbs the
// burst; once it is full Enqueue waits until its context expires and the event is dropped.
type Dispatcher struct {
	producer sarama.SyncProducer
	topic    string
	queue    chan DocEvent
	sem      *Semaphore
	workers  int
	policy   func() backoff.BackOff

	wg        sync.WaitGroup
	closeOnce sync.Once
}

type Options struct {
	QueueSize   int
	Workers     int
	MaxRetry    int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 1024
	}
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.MaxRetry < 0 {
		o.MaxRetry = 0
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = 100 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 2 * time.Second
	}
	return o
}

// retryPolicy doubles the wait from BaseBackoff up to MaxBackoff and stops after MaxRetry retries.
func (o Options) retryPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.BaseBackoff
	b.MaxInterval = o.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(o.MaxRetry))
}

func NewDispatcher(producer sarama.SyncProducer, topic string, sem *Semaphore, opt Options) *Dispatcher {
	opt = opt.withDefaults()
	d := &Dispatcher{
		producer: producer,
		topic:    topic,
		queue:    make(chan DocEvent, opt.QueueSize),
		sem:      sem,
		workers:  opt.Workers,
		policy:   opt.retryPolicy,
	}
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func(id int) {
			defer d.wg.Done()
			for evt := range d.queue {
				d.publish(id, evt)
			}
		}(i)
	}
	return d
}

// Enqueue stamps evt and queues it.
func (d *Dispatcher) Enqueue(ctx context.Context, evt DocEvent) error {
	if evt.EventID == "" {
		evt.EventID = uuid.NewString()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	select {
	case d.queue <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events and waits for the queue to drain.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() { close(d.queue) })
	d.wg.Wait()
}

func (d *Dispatcher) publish(worker int, evt DocEvent) {
	if d.producer == nil || d.topic == "" {
		return
	}
	value, err := json.Marshal(evt)
	if err != nil {
		log.Printf("encode event error (doc=%s, id=%s): %v", evt.DocID, evt.EventID, err)
		return
	}
	msg := &sarama.ProducerMessage{
		Topic: d.topic,
		Key:   sarama.StringEncoder(evt.DocID),
		Value: sarama.ByteEncoder(value),
	}

	attempt := 0
	send := func() error {
		attempt++
		if d.sem != nil {
			if err := d.sem.Acquire(context.Background()); err != nil {
				return err
			}
			defer d.sem.Release()
		}
		_, _, err := d.producer.SendMessage(msg)
		return err
	}
	if err := backoff.Retry(send, d.policy()); err != nil {
		log.Printf("kafka send error, drop event (doc=%s, type=%s, id=%s, worker=%d, attempts=%d): %v",
			evt.DocID, evt.EventType, evt.EventID, worker, attempt, err)
	}
}
