package queue

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/streadway/amqp"
)

// Topic names for run lifecycle events.
const (
	TopicRunEvents     = "run_events"
	TopicLeadContacted = "lead_contacted"
)

// RunEvent is published when reconciliation moves a run terminal.
type RunEvent struct {
	RunID       string `json:"run_id"`
	Event       string `json:"event"` // completed, failed
	SentCount   int    `json:"sent_count"`
	FailedCount int    `json:"failed_count"`
}

// LeadContactedEvent is published when a sent result advances a lead.
type LeadContactedEvent struct {
	RunID  string `json:"run_id"`
	LeadID int    `json:"lead_id"`
}

// Publisher is the narrow dependency services need.
type Publisher interface {
	Publish(topic string, payload any) error
}

// Queue interface
type Queue interface {
	Publisher
	Subscribe(topic string, handler func(payload any) error) error
}

// InMemoryQueue is an in-memory queue with retry, used in tests and when no
// broker is configured.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]func(payload any) error
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		handlers: make(map[string][]func(payload any) error),
	}
}

// JobPayload wraps a message payload with retry info
type JobPayload struct {
	Payload    any
	RetryCount int
	MaxRetries int
}

// Publish sends a message to all subscribers
func (q *InMemoryQueue) Publish(topic string, payload any) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	job := JobPayload{
		Payload:    payload,
		RetryCount: 0,
		MaxRetries: 3,
	}

	for _, handler := range handlers {
		go q.processJob(handler, job)
	}

	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(handler func(payload any) error, job JobPayload) {
	for job.RetryCount <= job.MaxRetries {
		err := handler(job.Payload)
		if err == nil {
			return // ACK
		}

		job.RetryCount++
		log.Printf("Job failed (attempt %d/%d): %+v, error: %v\n", job.RetryCount, job.MaxRetries, job.Payload, err)

		if job.RetryCount > job.MaxRetries {
			log.Printf("Job permanently failed after %d attempts: %+v\n", job.MaxRetries, job.Payload)
			return // No requeue
		}

		// Exponential backoff before retry
		time.Sleep(time.Duration(job.RetryCount*500) * time.Millisecond)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler func(payload any) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// StartNotificationSubscriber logs run lifecycle notifications in-process.
// cmd/worker does the same against RabbitMQ for deployments with a broker.
func StartNotificationSubscriber(q Queue) {
	go func() {
		err := q.Subscribe(TopicRunEvents, func(payload any) error {
			ev, ok := payload.(RunEvent)
			if !ok {
				log.Println("⚠️ Invalid payload type, expected RunEvent")
				return nil
			}
			log.Printf("📣 Run %s %s: %d sent, %d failed\n", ev.RunID, ev.Event, ev.SentCount, ev.FailedCount)
			return nil
		})
		if err != nil {
			log.Println("⚠️ Failed to start subscriber for", TopicRunEvents, ":", err)
		}

		err = q.Subscribe(TopicLeadContacted, func(payload any) error {
			ev, ok := payload.(LeadContactedEvent)
			if !ok {
				log.Println("⚠️ Invalid payload type, expected LeadContactedEvent")
				return nil
			}
			log.Printf("📞 Lead %d contacted in run %s\n", ev.LeadID, ev.RunID)
			return nil
		})
		if err != nil {
			log.Println("⚠️ Failed to start subscriber for", TopicLeadContacted, ":", err)
		}
	}()
}

//////////////////////////
// RabbitMQ publisher   //
//////////////////////////

// AMQPQueue publishes events to RabbitMQ. Consumption happens in cmd/worker.
type AMQPQueue struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQPQueue(url string) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	for _, topic := range []string{TopicRunEvents, TopicLeadContacted} {
		_, err := ch.QueueDeclare(
			topic,
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			ch.Close()
			conn.Close()
			return nil, err
		}
	}

	return &AMQPQueue{conn: conn, ch: ch}, nil
}

func (q *AMQPQueue) Publish(topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return q.ch.Publish(
		"",
		topic,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}

func (q *AMQPQueue) Close() {
	q.ch.Close()
	q.conn.Close()
}

var _ Publisher = (*AMQPQueue)(nil)
var _ Queue = (*InMemoryQueue)(nil)
