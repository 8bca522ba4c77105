package bus

import (
	"fmt"
	"log"
	"sync"
	"time"

	"FlowRollup/internal/metrics"
	"FlowRollup/internal/model"

	"github.com/nats-io/nats.go"
)

// ackStore tracks the in-flight JetStream message for every (partition,
// offset) pair delivered but not yet committed, so Commit can look up the
// right message to Ack.
type ackStore struct {
	mu      sync.Mutex
	pending map[ackKey]*nats.Msg
}

type ackKey struct {
	partition int
	offset    uint64
}

func newAckStore() *ackStore {
	return &ackStore{pending: make(map[ackKey]*nats.Msg)}
}

func (s *ackStore) store(partition int, offset uint64, msg *nats.Msg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[ackKey{partition, offset}] = msg
}

func (s *ackStore) take(partition int, offset uint64) (*nats.Msg, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ackKey{partition, offset}
	msg, ok := s.pending[key]
	if ok {
		delete(s.pending, key)
	}
	return msg, ok
}

// JetStreamSource consumes flow records from a NATS JetStream stream using a
// durable pull consumer, generalizing the source system's Kafka-flavored
// "bootstrap servers / topic / group" vocabulary onto JetStream's
// stream/consumer model. Each JetStream subject maps to a partition number
// for watermark purposes (see internal/watermark).
type JetStreamSource struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	sub     *nats.Subscription
	topic   string
	groupID string

	acks    *ackStore
	records chan Record
	stopped chan struct{}
}

// NewJetStreamSource connects to the NATS cluster at url and creates (or
// attaches to) a durable pull consumer named groupID on topic. When
// autoCommit is true, messages are acked on delivery instead of waiting for
// an explicit Commit call.
func NewJetStreamSource(url, topic, groupID string, autoCommit bool) (*JetStreamSource, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	log.Printf("bus: connected to NATS JetStream at %s", url)

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("open jetstream context: %w", err)
	}

	ackOpt := nats.AckExplicit()
	if autoCommit {
		ackOpt = nats.AckNone()
	}

	sub, err := js.PullSubscribe(topic, groupID, ackOpt)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("pull subscribe to %s: %w", topic, err)
	}

	s := &JetStreamSource{
		nc:      nc,
		js:      js,
		sub:     sub,
		topic:   topic,
		groupID: groupID,
		acks:    newAckStore(),
		records: make(chan Record, 256),
		stopped: make(chan struct{}),
	}
	go s.pumpLoop(autoCommit)
	return s, nil
}

// pumpLoop repeatedly fetches a batch of pending messages and decodes them
// onto the records channel, tracking each message's ack handle so Commit can
// acknowledge it once the pipeline has flushed the derived summaries.
func (s *JetStreamSource) pumpLoop(autoCommit bool) {
	defer close(s.records)
	for {
		select {
		case <-s.stopped:
			return
		default:
		}

		msgs, err := s.sub.Fetch(64, nats.MaxWait(time.Second))
		if err != nil {
			if err == nats.ErrTimeout {
				continue
			}
			log.Printf("bus: fetch error on %s: %v", s.topic, err)
			continue
		}

		for _, msg := range msgs {
			flow, err := model.DecodeFlowBytes(msg.Data)
			if err != nil {
				metrics.FlowsMalformed.Inc()
				log.Printf("bus: dropping malformed flow record: %v", err)
				_ = msg.Ack()
				continue
			}
			meta, err := msg.Metadata()
			if err != nil {
				log.Printf("bus: dropping record with unreadable metadata: %v", err)
				_ = msg.Ack()
				continue
			}

			partition := partitionOf(msg.Subject)
			offset := meta.Sequence.Stream
			if autoCommit {
				_ = msg.Ack()
			} else {
				s.acks.store(partition, offset, msg)
			}

			select {
			case s.records <- Record{Partition: partition, Offset: offset, Flow: flow}:
			case <-s.stopped:
				return
			}
		}
	}
}

// partitionOf derives a stable partition number from a JetStream subject,
// mirroring how a Kafka topic-partition pair would be addressed.
func partitionOf(subject string) int {
	h := 0
	for i := 0; i < len(subject); i++ {
		h = h*31 + int(subject[i])
	}
	if h < 0 {
		h = -h
	}
	return h % 256
}

func (s *JetStreamSource) Records() <-chan Record {
	return s.records
}

// Commit acknowledges every message still held for partition at or below
// offset, letting JetStream advance the consumer's durable position. A
// no-op if the source was opened with autoCommit, since those messages were
// already acked on delivery.
func (s *JetStreamSource) Commit(partition int, offset uint64) error {
	s.acks.mu.Lock()
	var msgs []*nats.Msg
	for key, msg := range s.acks.pending {
		if key.partition == partition && key.offset <= offset {
			msgs = append(msgs, msg)
			delete(s.acks.pending, key)
		}
	}
	s.acks.mu.Unlock()

	var firstErr error
	for _, msg := range msgs {
		if err := msg.Ack(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *JetStreamSource) Close() error {
	close(s.stopped)
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Close()
	}
	return nil
}

// JetStreamTopicSink republishes flow summaries onto a JetStream subject as
// the same flat JSON document the document sink writes, keyed null (NATS
// subjects carry no message key).
type JetStreamTopicSink struct {
	nc      *nats.Conn
	subject string
}

// NewJetStreamTopicSink connects to url and prepares to publish onto subject.
func NewJetStreamTopicSink(url, subject string) (*JetStreamTopicSink, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &JetStreamTopicSink{nc: nc, subject: subject}, nil
}

func (s *JetStreamTopicSink) Publish(summary *model.FlowSummary) error {
	data, err := summary.EncodeJSON()
	if err != nil {
		return err
	}
	return s.nc.Publish(s.subject, data)
}

func (s *JetStreamTopicSink) Close() error {
	if s.nc != nil {
		s.nc.Drain()
	}
	return nil
}
