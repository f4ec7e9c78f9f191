package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	exportDomain "github.com/movielib/golang_services/internal/export_service/domain"
	"github.com/movielib/golang_services/internal/platform/messagebroker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// memoryQueue is an in-process stand-in for the durable queue: it satisfies
// both Publisher and MessageSource.
type memoryQueue struct {
	ch  chan messagebroker.Message
	err error

	mu        sync.Mutex
	published []*fakeMessage
}

func newMemoryQueue(size int) *memoryQueue {
	return &memoryQueue{ch: make(chan messagebroker.Message, size)}
}

func (q *memoryQueue) Publish(_ context.Context, body []byte) error {
	if q.err != nil {
		return q.err
	}
	q.mu.Lock()
	msg := &fakeMessage{body: append([]byte(nil), body...), id: fmt.Sprintf("msg-%d", len(q.published)+1)}
	q.published = append(q.published, msg)
	q.mu.Unlock()
	q.ch <- msg
	return nil
}

func (q *memoryQueue) Consume(context.Context) (<-chan messagebroker.Message, error) {
	if q.err != nil {
		return nil, q.err
	}
	return q.ch, nil
}

func (q *memoryQueue) close() { close(q.ch) }

func (q *memoryQueue) sent() []*fakeMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*fakeMessage(nil), q.published...)
}

func TestExportPipeline_PublishThenConsume(t *testing.T) {
	queue := newMemoryQueue(1)
	catalog := new(MockCatalogRepository)
	mailer := new(MockMailer)

	producer := NewExportProducer(queue, nil, discardLogger())
	consumer := NewExportConsumer(queue, catalog, mailer, 2, discardLogger())

	catalog.On("ListMovies", mock.Anything).Return(sampleCatalog(), nil).Once()
	mailer.On("Send", mock.Anything, "a@x.com", ExportSubject, ExportHTMLBody, csvAttachmentWithRows(3)).
		Return(&exportDomain.DeliveryInfo{MessageID: "<1@movielib>", Accepted: []string{"a@x.com"}}, nil).Once()

	require.NoError(t, producer.RequestExport(context.Background(), exportDomain.ExportRequest{UserEmail: "a@x.com", UserID: 1}))
	require.NoError(t, consumer.StartConsuming(context.Background()))
	queue.close()
	consumer.Wait()

	catalog.AssertExpectations(t)
	mailer.AssertExpectations(t)

	sent := mailer.Calls[0].Arguments.Get(4).([]exportDomain.Attachment)[0].Content
	assert.Len(t, strings.Split(strings.TrimSuffix(string(sent), "\n"), "\n"), 4)

	msgs := queue.sent()
	require.Len(t, msgs, 1)
	acks, nacks, _ := msgs[0].settled()
	assert.Equal(t, 1, acks)
	assert.Zero(t, nacks)
}

func TestExportPipeline_MailDownThenRetryByNewRequest(t *testing.T) {
	queue := newMemoryQueue(2)
	catalog := new(MockCatalogRepository)
	mailer := new(MockMailer)

	producer := NewExportProducer(queue, nil, discardLogger())
	consumer := NewExportConsumer(queue, catalog, mailer, 1, discardLogger())

	catalog.On("ListMovies", mock.Anything).Return(sampleCatalog(), nil)
	mailer.On("Send", mock.Anything, "a@x.com", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, assert.AnError).Once()
	mailer.On("Send", mock.Anything, "a@x.com", mock.Anything, mock.Anything, mock.Anything).
		Return(&exportDomain.DeliveryInfo{}, nil).Once()

	req := exportDomain.ExportRequest{UserEmail: "a@x.com", UserID: 1}
	require.NoError(t, producer.RequestExport(context.Background(), req))
	require.NoError(t, producer.RequestExport(context.Background(), req))
	require.NoError(t, consumer.StartConsuming(context.Background()))
	queue.close()
	consumer.Wait()

	mailer.AssertNumberOfCalls(t, "Send", 2)
	msgs := queue.sent()
	require.Len(t, msgs, 2)

	firstAcks, firstNacks, firstRequeue := msgs[0].settled()
	assert.Zero(t, firstAcks)
	assert.Equal(t, 1, firstNacks)
	assert.Equal(t, []bool{false}, firstRequeue)

	secondAcks, secondNacks, _ := msgs[1].settled()
	assert.Equal(t, 1, secondAcks)
	assert.Zero(t, secondNacks)
}
