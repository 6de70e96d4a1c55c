package notify

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carpool/internal/modules/identity"
	"carpool/internal/types"
)

type chanQueue struct {
	ch      chan Notification
	pushErr error
	block   chan struct{}
}

func newChanQueue() *chanQueue {
	return &chanQueue{ch: make(chan Notification, 16)}
}

func (q *chanQueue) Push(ctx context.Context, n Notification) error {
	if q.block != nil {
		select {
		case <-q.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if q.pushErr != nil {
		return q.pushErr
	}
	q.ch <- n
	return nil
}

func (q *chanQueue) Pop(ctx context.Context, wait time.Duration) (Notification, error) {
	select {
	case n := <-q.ch:
		return n, nil
	case <-ctx.Done():
		return Notification{}, ctx.Err()
	case <-time.After(wait):
		return Notification{}, ErrEmpty
	}
}

type recipients map[types.ID]*identity.User

func (r recipients) Get(_ context.Context, id types.ID) (*identity.User, error) {
	if u, ok := r[id]; ok {
		return u, nil
	}
	return nil, identity.ErrNotFound
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []Message
	err  error
	got  chan struct{}
}

func newRecordingMailer() *recordingMailer {
	return &recordingMailer{got: make(chan struct{}, 16)}
}

func (m *recordingMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	m.got <- struct{}{}
	return m.err
}

var testRecipients = recipients{
	"u1": {ID: "u1", Name: "Ann", Email: "ann@example.com"},
}

func TestNotifyEnqueues(t *testing.T) {
	q := newChanQueue()
	svc := NewService(q, testRecipients, newRecordingMailer(), true, zap.NewNop())

	svc.Notify(context.Background(), Notification{Kind: KindBookingConfirmed, RecipientID: "u1"})
	svc.Flush()

	require.Len(t, q.ch, 1)
	n := <-q.ch
	assert.Equal(t, KindBookingConfirmed, n.Kind)
	assert.False(t, n.CreatedAt.IsZero())
}

func TestNotifyDisabledOrNoRecipient(t *testing.T) {
	q := newChanQueue()
	NewService(q, testRecipients, newRecordingMailer(), false, zap.NewNop()).
		Notify(context.Background(), Notification{Kind: KindBookingConfirmed, RecipientID: "u1"})

	svc := NewService(q, testRecipients, newRecordingMailer(), true, zap.NewNop())
	svc.Notify(context.Background(), Notification{Kind: KindBookingConfirmed})
	svc.Flush()

	assert.Empty(t, q.ch)
}

func TestNotifyDoesNotBlockOrSurviveCancellation(t *testing.T) {
	q := newChanQueue()
	q.block = make(chan struct{})
	svc := NewService(q, testRecipients, newRecordingMailer(), true, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	begin := time.Now()
	svc.Notify(ctx, Notification{Kind: KindBookingRejected, RecipientID: "u1"})
	assert.Less(t, time.Since(begin), 100*time.Millisecond)

	// the request finishing must not abort the pending push
	cancel()
	close(q.block)
	svc.Flush()
	assert.Len(t, q.ch, 1)
}

func TestNotifySwallowsQueueErrors(t *testing.T) {
	q := newChanQueue()
	q.pushErr = errors.New("redis down")
	svc := NewService(q, testRecipients, newRecordingMailer(), true, zap.NewNop())

	assert.NotPanics(t, func() {
		svc.Notify(context.Background(), Notification{Kind: KindBookingRequested, RecipientID: "u1"})
		svc.Flush()
	})
}

func TestWorkerDeliversQueuedJobs(t *testing.T) {
	q := newChanQueue()
	mailer := newRecordingMailer()
	svc := NewService(q, testRecipients, mailer, true, zap.NewNop())

	q.ch <- Notification{
		Kind:        KindBookingRequested,
		RecipientID: "u1",
		Data:        map[string]string{KeyActorName: "Bo", KeyPickup: "Taipei", KeyDropoff: "Hsinchu", KeyDeparture: "Mon"},
	}
	q.ch <- Notification{Kind: KindBookingConfirmed, RecipientID: "ghost"}
	q.ch <- Notification{Kind: KindRideCompleted, RecipientID: "u1"}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.RunWorker(ctx)
		close(done)
	}()

	for i := 0; i < 2; i++ {
		select {
		case <-mailer.got:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for delivery")
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}

	mailer.mu.Lock()
	defer mailer.mu.Unlock()
	require.Len(t, mailer.sent, 2, "unknown recipient is dropped")
	assert.Equal(t, "ann@example.com", mailer.sent[0].To)
	assert.Equal(t, "New booking request", mailer.sent[0].Subject)
	assert.Contains(t, mailer.sent[0].Body, "Bo requested a seat on your ride from Taipei to Hsinchu")
	assert.Equal(t, "Your ride is complete", mailer.sent[1].Subject)
}

func TestDeliverSwallowsSendErrors(t *testing.T) {
	mailer := newRecordingMailer()
	mailer.err = errors.New("relay refused")
	svc := NewService(newChanQueue(), testRecipients, mailer, true, zap.NewNop())

	assert.NotPanics(t, func() {
		svc.Deliver(context.Background(), Notification{Kind: KindBookingRejected, RecipientID: "u1"})
	})
	assert.Len(t, mailer.sent, 1)
}

func TestRender(t *testing.T) {
	for kind := range templates {
		msg, err := Render(Notification{Kind: kind}, "Ann", "ann@example.com")
		require.NoError(t, err, kind)
		assert.NotEmpty(t, msg.Subject)
		assert.NotContains(t, msg.Body, "<no value>", kind)
	}

	msg, err := Render(Notification{
		Kind: KindReviewReceived,
		Data: map[string]string{KeyActorName: "Bo", KeyRating: "4", KeyComment: "great", KeyPickup: "A", KeyDropoff: "B"},
	}, "Ann", "ann@example.com")
	require.NoError(t, err)
	assert.Contains(t, msg.Body, "Bo rated your ride from A to B 4/5.")
	assert.Contains(t, msg.Body, `"great"`)

	_, err = Render(Notification{Kind: "unknown"}, "Ann", "ann@example.com")
	assert.Error(t, err)
}

func TestSMTPMailerFormatsMessage(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "u", Password: "p", From: "no-reply@carpool.local"})
	var gotAddr string
	var gotTo []string
	var gotMsg []byte
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, msg
		assert.NotNil(t, a)
		assert.Equal(t, "no-reply@carpool.local", from)
		return nil
	}

	err := m.Send(context.Background(), Message{To: "ann@example.com", Subject: "Hello", Body: "line1\nline2"})
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, []string{"ann@example.com"}, gotTo)
	s := string(gotMsg)
	assert.True(t, strings.HasPrefix(s, "From: no-reply@carpool.local\r\n"))
	assert.Contains(t, s, "Subject: Hello\r\n")
	assert.True(t, strings.HasSuffix(s, "line1\r\nline2"))
}
