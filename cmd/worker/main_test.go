package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"

	"resume-pipeline/internal/applications"
	"resume-pipeline/internal/queue"
)

type ackCall struct {
	ack     bool
	requeue bool
}

type fakeAcknowledger struct {
	calls []ackCall
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.calls = append(f.calls, ackCall{ack: true})
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	f.calls = append(f.calls, ackCall{requeue: requeue})
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	f.calls = append(f.calls, ackCall{requeue: requeue})
	return nil
}

type fakeProcessor struct {
	err error
	ids []string
}

func (f *fakeProcessor) ProcessApplication(ctx context.Context, applicationID string) error {
	f.ids = append(f.ids, applicationID)
	return f.err
}

func delivery(t *testing.T, ack amqp.Acknowledger, body []byte, redelivered bool) amqp.Delivery {
	t.Helper()
	return amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  1,
		MessageId:    "m1",
		Redelivered:  redelivered,
		Body:         body,
	}
}

func advanceBody(t *testing.T, id string) []byte {
	t.Helper()
	body, err := queue.EncodeMessage(queue.NewAdvanceMessage(id, "req-1"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return body
}

func TestWorkerAcksOnSuccess(t *testing.T) {
	ack := &fakeAcknowledger{}
	proc := &fakeProcessor{}

	handleDelivery(context.Background(), proc, delivery(t, ack, advanceBody(t, "app-1"), false))

	if len(proc.ids) != 1 || proc.ids[0] != "app-1" {
		t.Fatalf("expected app-1 processed, got %v", proc.ids)
	}
	if len(ack.calls) != 1 || !ack.calls[0].ack {
		t.Fatalf("expected ack, got %+v", ack.calls)
	}
}

func TestWorkerRequeuesFirstFailureOnly(t *testing.T) {
	proc := &fakeProcessor{err: errors.New("db down")}

	ack := &fakeAcknowledger{}
	handleDelivery(context.Background(), proc, delivery(t, ack, advanceBody(t, "app-2"), false))
	if len(ack.calls) != 1 || ack.calls[0].ack || !ack.calls[0].requeue {
		t.Fatalf("expected requeue, got %+v", ack.calls)
	}

	ack = &fakeAcknowledger{}
	handleDelivery(context.Background(), proc, delivery(t, ack, advanceBody(t, "app-2"), true))
	if len(ack.calls) != 1 || ack.calls[0].ack || ack.calls[0].requeue {
		t.Fatalf("expected drop after redelivery, got %+v", ack.calls)
	}
}

func TestWorkerDropsMissingApplication(t *testing.T) {
	ack := &fakeAcknowledger{}
	proc := &fakeProcessor{err: fmt.Errorf("load: %w", applications.ErrNotFound)}

	handleDelivery(context.Background(), proc, delivery(t, ack, advanceBody(t, "gone"), false))

	if len(ack.calls) != 1 || ack.calls[0].ack || ack.calls[0].requeue {
		t.Fatalf("expected drop, got %+v", ack.calls)
	}
}

func TestWorkerRequeuesInterruptedJob(t *testing.T) {
	ack := &fakeAcknowledger{}
	proc := &fakeProcessor{err: context.Canceled}

	handleDelivery(context.Background(), proc, delivery(t, ack, advanceBody(t, "app-3"), true))

	if len(ack.calls) != 1 || !ack.calls[0].requeue {
		t.Fatalf("expected requeue, got %+v", ack.calls)
	}
}

func TestWorkerDropsInvalidJSON(t *testing.T) {
	ack := &fakeAcknowledger{}
	proc := &fakeProcessor{}

	handleDelivery(context.Background(), proc, delivery(t, ack, []byte("{bad-json"), false))

	if len(proc.ids) != 0 {
		t.Fatalf("expected no processing, got %v", proc.ids)
	}
	if len(ack.calls) != 1 || ack.calls[0].ack || ack.calls[0].requeue {
		t.Fatalf("expected drop, got %+v", ack.calls)
	}
}
