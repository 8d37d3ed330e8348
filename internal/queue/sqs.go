// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/ManuGH/vodpipe/internal/metrics"
)

// SQSSender is the subset of the SQS client the producer needs.
type SQSSender interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSProducer publishes jobs to an SQS queue. SQS has no priorities or
// retained history; priority and attempts travel as message attributes and
// retries are left to the queue's redrive policy.
type SQSProducer struct {
	client   SQSSender
	queueURL string
	name     string
}

var _ Producer = (*SQSProducer)(nil)

// Envelope is the message body written to SQS.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewSQSProducer wraps an existing client.
func NewSQSProducer(client SQSSender, queueURL, name string) *SQSProducer {
	return &SQSProducer{client: client, queueURL: queueURL, name: name}
}

// NewSQSProducerFromEnv loads the default AWS config chain.
func NewSQSProducerFromEnv(ctx context.Context, region, queueURL, name string) (*SQSProducer, error) {
	if queueURL == "" {
		return nil, errors.New("queue: sqs queue url is required")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("queue: load aws config: %w", err)
	}
	otelaws.AppendMiddlewares(&cfg.APIOptions)
	return NewSQSProducer(sqs.NewFromConfig(cfg), queueURL, name), nil
}

func (p *SQSProducer) Enqueue(ctx context.Context, jobType string, payload []byte, opts Options) (Ack, error) {
	opts = opts.withDefaults()

	if !json.Valid(payload) {
		return Ack{}, fmt.Errorf("queue: %s payload is not valid JSON", jobType)
	}
	body, err := json.Marshal(Envelope{Type: jobType, Payload: payload})
	if err != nil {
		return Ack{}, fmt.Errorf("queue: encode envelope: %w", err)
	}

	attrs := map[string]types.MessageAttributeValue{
		"job_type":     {DataType: aws.String("String"), StringValue: aws.String(jobType)},
		"priority":     {DataType: aws.String("Number"), StringValue: aws.String(strconv.Itoa(opts.Priority))},
		"max_attempts": {DataType: aws.String("Number"), StringValue: aws.String(strconv.Itoa(opts.Attempts))},
	}
	// Workers extract the trace context from the message attributes.
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	for k, v := range carrier {
		attrs[k] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
	}

	out, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(p.queueURL),
		MessageBody:       aws.String(string(body)),
		MessageAttributes: attrs,
	})
	if err != nil {
		metrics.RecordJobEnqueued("sqs", "error")
		return Ack{}, fmt.Errorf("queue: sqs send %s: %w", jobType, err)
	}

	metrics.RecordJobEnqueued("sqs", "ok")
	return Ack{Queue: p.name, JobID: aws.ToString(out.MessageId)}, nil
}
