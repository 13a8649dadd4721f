package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"resume-pipeline/internal/applications"
	"resume-pipeline/internal/bootstrap"
	"resume-pipeline/internal/shared/config"
	"resume-pipeline/internal/shared/metrics"
	"resume-pipeline/internal/shared/telemetry"
	"resume-pipeline/internal/workerproc"
)

const consumerName = "resume-pipeline-worker"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := telemetry.Init(cfg.LogLevel); err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer telemetry.Sync()

	if cfg.RabbitMQURL == "" {
		log.Fatal("RABBITMQ_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(cfg)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}
	defer app.Close()

	deliveries, err := app.Rabbit.Consume(consumerName, cfg.WorkerConcurrency)
	if err != nil {
		log.Fatalf("consume: %v", err)
	}

	sem := make(chan struct{}, cfg.WorkerConcurrency)
	var wg sync.WaitGroup

	telemetry.Info("worker.start", map[string]any{"queue": app.Rabbit.Queue(), "concurrency": cfg.WorkerConcurrency})

consumeLoop:
	for {
		select {
		case <-ctx.Done():
			break consumeLoop
		case d, ok := <-deliveries:
			if !ok {
				telemetry.Warn("worker.deliveries_closed", nil)
				break consumeLoop
			}
			select {
			case <-ctx.Done():
				_ = d.Nack(false, true)
				break consumeLoop
			case sem <- struct{}{}:
			}
			metrics.IncJob("received")
			wg.Add(1)
			go func(d amqp.Delivery) {
				defer wg.Done()
				defer func() { <-sem }()
				handleDelivery(ctx, app, d)
			}(d)
		}
	}

	telemetry.Info("worker.shutdown", map[string]any{"timeout": cfg.ShutdownTimeout.String()})
	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(cfg.ShutdownTimeout):
		telemetry.Warn("worker.shutdown_timeout", nil)
	}
}

// handleDelivery acks on success, drops payloads that can never succeed and requeues everything else once.
func handleDelivery(ctx context.Context, processor workerproc.Processor, d amqp.Delivery) {
	body := string(d.Body)
	decoded, meta, err := workerproc.ParseMessage(body)
	if err != nil {
		fields := baseFields(d, decoded.ApplicationID, decoded.RequestID)
		fields["body_len"] = meta.BodyLen
		if meta.BodySHA != "" {
			fields["body_sha256"] = meta.BodySHA
		}
		fields["error"] = err.Error()
		telemetry.Error("worker.job.unrecoverable", fields)
		settle(d, fields, false)
		metrics.IncJob("dropped")
		return
	}

	fields := baseFields(d, decoded.ApplicationID, decoded.RequestID)
	telemetry.Info("worker.job.received", fields)

	err = workerproc.HandleMessage(workerproc.WithParsedMessage(ctx, decoded), processor, body)
	switch {
	case err == nil:
		if ackErr := d.Ack(false); ackErr != nil {
			fields["error"] = ackErr.Error()
			telemetry.Error("worker.job.ack_failed", fields)
			return
		}
		telemetry.Info("worker.job.completed", fields)
		metrics.IncJob("completed")
	case errors.Is(err, applications.ErrNotFound) || workerproc.Unrecoverable(err):
		fields["error"] = err.Error()
		telemetry.Error("worker.job.unrecoverable", fields)
		settle(d, fields, false)
		metrics.IncJob("dropped")
	case errors.Is(err, context.Canceled):
		fields["error"] = err.Error()
		telemetry.Warn("worker.job.interrupted", fields)
		settle(d, fields, true)
		metrics.IncJob("requeued")
	default:
		fields["error"] = err.Error()
		telemetry.Error("worker.job.failed", fields)
		requeue := !d.Redelivered
		settle(d, fields, requeue)
		if requeue {
			metrics.IncJob("requeued")
		} else {
			metrics.IncJob("failed")
		}
	}
}

func settle(d amqp.Delivery, fields map[string]any, requeue bool) {
	if err := d.Nack(false, requeue); err != nil {
		fields["nack_error"] = err.Error()
		telemetry.Error("worker.job.nack_failed", fields)
	}
}

func baseFields(d amqp.Delivery, applicationID, requestID string) map[string]any {
	fields := map[string]any{
		"application_id": applicationID,
		"message_id":     d.MessageId,
		"delivery_tag":   d.DeliveryTag,
		"redelivered":    d.Redelivered,
	}
	if requestID != "" {
		fields["request_id"] = requestID
	}
	return fields
}
