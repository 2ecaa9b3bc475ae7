package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/kailas-cloud/bookmarkd/internal/usecase/ingest"
)

// publisher is the slice of jetstream.JetStream the dispatcher needs.
type publisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Dispatcher publishes ingestion jobs. The job id doubles as Nats-Msg-Id so
// a republished job is dropped by the stream's duplicate window.
type Dispatcher struct {
	js      publisher
	subject string
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(js publisher, subject string) *Dispatcher {
	return &Dispatcher{js: js, subject: subject}
}

// Dispatch publishes job and waits for the stream ack.
func (d *Dispatcher) Dispatch(ctx context.Context, job ingest.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	if _, err := d.js.Publish(ctx, d.subject, data, jetstream.WithMsgID(job.ID)); err != nil {
		return fmt.Errorf("publish %s: %w", d.subject, err)
	}
	return nil
}
