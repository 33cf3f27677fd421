package documents

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher enqueues ingest jobs by id.
type Publisher interface {
	PublishJob(ctx context.Context, jobID string) error
}

type RabbitPublisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

const jobMessageType = "document_ingest"

type JobMessage struct {
	JobID string `json:"job_id"`
}

// DeclareQueues declares the main queue plus its retry and dead-letter
// companions. Both the server and the worker call it so either can start first.
func DeclareQueues(ch *amqp.Channel, queue string) error {
	retryQ := queue + ".retry"
	dlqQ := queue + ".dlq"

	if _, err := ch.QueueDeclare(
		dlqQ,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false,
		nil,
	); err != nil {
		return err
	}

	// Retry queue: message TTL -> dead-letter back to main queue
	if _, err := ch.QueueDeclare(
		retryQ,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": queue,
		},
	); err != nil {
		return err
	}

	// Main queue: dead-letter to DLQ on reject/nack(requeue=false)
	_, err := ch.QueueDeclare(
		queue,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": dlqQ,
		},
	)
	return err
}

func NewRabbitPublisher(url, queue string) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := DeclareQueues(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &RabbitPublisher{conn: conn, ch: ch, queue: queue}, nil
}

func (p *RabbitPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

func (p *RabbitPublisher) PublishJob(ctx context.Context, jobID string) error {
	msg, err := JobPublishing(jobID)
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// default exchange, routing key = queue
	return p.ch.PublishWithContext(cctx, "", p.queue, false, false, msg)
}

// JobPublishing builds the persistent message for a job. MessageId carries
// the job id so consumers can tell redeliveries of the same job apart.
func JobPublishing(jobID string) (amqp.Publishing, error) {
	if jobID == "" {
		return amqp.Publishing{}, errEmptyJobID
	}
	body, err := json.Marshal(JobMessage{JobID: jobID})
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    jobID,
		Type:         jobMessageType,
		AppId:        "learnbot",
		Body:         body,
		Timestamp:    time.Now(),
	}, nil
}

// DecodeJobMessage parses a delivery body produced by PublishJob.
func DecodeJobMessage(body []byte) (string, error) {
	var m JobMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return "", err
	}
	if m.JobID == "" {
		return "", errEmptyJobID
	}
	return m.JobID, nil
}
