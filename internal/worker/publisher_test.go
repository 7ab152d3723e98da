package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	body        []byte
	contentType string
	err         error
}

func (p *capturePublisher) PublishWithRetry(_ context.Context, body []byte, contentType string) error {
	p.body, p.contentType = body, contentType
	return p.err
}

func TestQueuePublisher_Dispatch(t *testing.T) {
	pub := &capturePublisher{}
	q := NewQueuePublisher(pub, testLogger())

	require.NoError(t, q.Dispatch(context.Background(), "7b6a0c8e-8d3e-4a8e-9d59-0f0b3c2f4a11"))
	assert.JSONEq(t, `{"job_id":"7b6a0c8e-8d3e-4a8e-9d59-0f0b3c2f4a11"}`, string(pub.body))
	assert.Equal(t, "application/json", pub.contentType)

	msg, err := parseDelivery(pub.body)
	require.NoError(t, err)
	assert.Equal(t, "7b6a0c8e-8d3e-4a8e-9d59-0f0b3c2f4a11", msg.JobID)
}

func TestQueuePublisher_PropagatesErrors(t *testing.T) {
	q := NewQueuePublisher(&capturePublisher{err: errors.New("channel closed")}, testLogger())
	err := q.Dispatch(context.Background(), "job-1")
	assert.ErrorContains(t, err, "channel closed")
}
