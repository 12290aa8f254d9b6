package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nestfolio/backend/internal/models"
	"github.com/nestfolio/backend/pkg/queue"
)

type sentMail struct {
	to      string
	subject string
	body    string
}

type fakeMailer struct {
	enabled bool
	err     error
	sent    []sentMail
}

func (m *fakeMailer) Enabled() bool { return m.enabled }

func (m *fakeMailer) Send(to, subject, htmlBody string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: htmlBody})
	return nil
}

type fakeEmailStore struct {
	logs []models.EmailLog
}

func (s *fakeEmailStore) Create(_ context.Context, el *models.EmailLog) error {
	el.ID = uuid.New()
	s.logs = append(s.logs, *el)
	return nil
}

type fakePhotoStore struct {
	deleted []string
	fail    map[string]bool
}

func (s *fakePhotoStore) DeletePhoto(_ context.Context, key string) error {
	if s.fail[key] {
		return errors.New("access denied")
	}
	s.deleted = append(s.deleted, key)
	return nil
}

func invitationJob(t *testing.T) (*queue.Job, queue.InvitationEmailPayload) {
	t.Helper()
	payload := queue.InvitationEmailPayload{
		InvitationID:     uuid.New(),
		OrganizationID:   uuid.New(),
		OrganizationName: "Harbor Realty",
		RecipientEmail:   "new.agent@example.com",
		InviterName:      "Dana",
		Role:             "member",
		AcceptURL:        "https://app.example.com/invitations/accept?token=abc",
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return &queue.Job{ID: uuid.New().String(), Type: queue.JobTypeInvitationEmail, Payload: raw}, payload
}

func TestProcessInvitationEmail(t *testing.T) {
	t.Run("sent", func(t *testing.T) {
		mail := &fakeMailer{enabled: true}
		store := &fakeEmailStore{}
		p := NewProcessor(nil, mail, store, nil, zap.NewNop())
		job, payload := invitationJob(t)

		require.NoError(t, p.Process(context.Background(), job))

		require.Len(t, mail.sent, 1)
		require.Equal(t, payload.RecipientEmail, mail.sent[0].to)
		require.Contains(t, mail.sent[0].subject, "Harbor Realty")
		require.Contains(t, mail.sent[0].body, payload.AcceptURL)

		require.Len(t, store.logs, 1)
		el := store.logs[0]
		require.Equal(t, models.EmailLogStatusSent, el.Status)
		require.NotNil(t, el.SentAt)
		require.Equal(t, payload.RecipientEmail, el.RecipientEmail)
		require.Equal(t, models.EmailTypeInvitation, el.EmailType)
		require.Equal(t, payload.OrganizationID, *el.OrganizationID)
	})

	t.Run("smtp unconfigured records failure without retry", func(t *testing.T) {
		mail := &fakeMailer{enabled: false}
		store := &fakeEmailStore{}
		p := NewProcessor(nil, mail, store, nil, zap.NewNop())
		job, _ := invitationJob(t)

		require.NoError(t, p.Process(context.Background(), job))

		require.Empty(t, mail.sent)
		require.Len(t, store.logs, 1)
		require.Equal(t, models.EmailLogStatusFailed, store.logs[0].Status)
		require.Equal(t, "smtp not configured", store.logs[0].ErrorMessage)
	})

	t.Run("send failure records and returns error", func(t *testing.T) {
		mail := &fakeMailer{enabled: true, err: errors.New("connection refused")}
		store := &fakeEmailStore{}
		p := NewProcessor(nil, mail, store, nil, zap.NewNop())
		job, _ := invitationJob(t)

		require.Error(t, p.Process(context.Background(), job))

		require.Len(t, store.logs, 1)
		require.Equal(t, models.EmailLogStatusFailed, store.logs[0].Status)
		require.Contains(t, store.logs[0].ErrorMessage, "connection refused")
	})
}

func TestProcessPhotoCleanup(t *testing.T) {
	cleanupJob := func(t *testing.T, keys []string) *queue.Job {
		t.Helper()
		raw, err := json.Marshal(queue.PhotoCleanupPayload{Keys: keys})
		require.NoError(t, err)
		return &queue.Job{ID: uuid.New().String(), Type: queue.JobTypePhotoCleanup, Payload: raw}
	}

	t.Run("deletes all keys", func(t *testing.T) {
		photos := &fakePhotoStore{}
		p := NewProcessor(nil, nil, nil, photos, zap.NewNop())
		keys := []string{"photos/a/1.jpg", "photos/a/2.jpg"}

		require.NoError(t, p.Process(context.Background(), cleanupJob(t, keys)))
		require.Equal(t, keys, photos.deleted)
	})

	t.Run("partial failure still deletes the rest", func(t *testing.T) {
		photos := &fakePhotoStore{fail: map[string]bool{"photos/a/1.jpg": true}}
		p := NewProcessor(nil, nil, nil, photos, zap.NewNop())

		err := p.Process(context.Background(), cleanupJob(t, []string{"photos/a/1.jpg", "photos/a/2.jpg"}))
		require.Error(t, err)
		require.Equal(t, []string{"photos/a/2.jpg"}, photos.deleted)
	})

	t.Run("no object store drops job", func(t *testing.T) {
		p := NewProcessor(nil, nil, nil, nil, zap.NewNop())
		require.NoError(t, p.Process(context.Background(), cleanupJob(t, []string{"photos/a/1.jpg"})))
	})
}

func TestProcessUnknownJobType(t *testing.T) {
	p := NewProcessor(nil, nil, nil, nil, zap.NewNop())
	err := p.Process(context.Background(), &queue.Job{ID: "x", Type: "recount_votes"})
	require.Error(t, err)
}
