package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSQS struct {
	in  *sqs.SendMessageInput
	err error
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSQSProducer_Enqueue(t *testing.T) {
	fake := &fakeSQS{}
	p := NewSQSProducer(fake, "https://sqs.test/123/video-processing", "video-processing")

	ack, err := p.Enqueue(context.Background(), "transcode", []byte(`{"videoId":"v1"}`), transcodeOpts)
	require.NoError(t, err)
	assert.Equal(t, Ack{Queue: "video-processing", JobID: "msg-1"}, ack)

	require.NotNil(t, fake.in)
	assert.Equal(t, "https://sqs.test/123/video-processing", aws.ToString(fake.in.QueueUrl))

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(fake.in.MessageBody)), &env))
	assert.Equal(t, "transcode", env.Type)
	assert.JSONEq(t, `{"videoId":"v1"}`, string(env.Payload))
	assert.Equal(t, "1", aws.ToString(fake.in.MessageAttributes["priority"].StringValue))
	assert.Equal(t, "3", aws.ToString(fake.in.MessageAttributes["max_attempts"].StringValue))
}

func TestSQSProducer_Errors(t *testing.T) {
	fake := &fakeSQS{err: errors.New("throttled")}
	p := NewSQSProducer(fake, "u", "q")

	_, err := p.Enqueue(context.Background(), "transcode", []byte(`{}`), Options{})
	assert.Error(t, err)

	_, err = p.Enqueue(context.Background(), "transcode", []byte(`not json`), Options{})
	assert.Error(t, err)
}
