package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nestfolio/backend/internal/models"
	"github.com/nestfolio/backend/pkg/mailer"
	"github.com/nestfolio/backend/pkg/queue"
)

// EmailSender delivers rendered messages. Implemented by *mailer.Mailer.
type EmailSender interface {
	Enabled() bool
	Send(to, subject, htmlBody string) error
}

// EmailLogStore records delivery outcomes. Implemented by
// *emaillogs.Repository.
type EmailLogStore interface {
	Create(ctx context.Context, el *models.EmailLog) error
}

// PhotoStore deletes objects left behind by removed listings.
// Implemented by *storage.S3.
type PhotoStore interface {
	DeletePhoto(ctx context.Context, key string) error
}

// Processor executes notification and cleanup jobs from the queue.
type Processor struct {
	queue  *queue.Queue
	mail   EmailSender
	emails EmailLogStore
	photos PhotoStore
	logger *zap.Logger
}

// NewProcessor creates a job processor.
func NewProcessor(q *queue.Queue, mail EmailSender, emails EmailLogStore, photos PhotoStore, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{queue: q, mail: mail, emails: emails, photos: photos, logger: logger}
}

// Process executes one job.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeInvitationEmail:
		return p.processInvitationEmail(ctx, job)
	case queue.JobTypePhotoCleanup:
		return p.processPhotoCleanup(ctx, job)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

func (p *Processor) processInvitationEmail(ctx context.Context, job *queue.Job) error {
	var payload queue.InvitationEmailPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	subject, html, err := mailer.InvitationEmail(payload.OrganizationName, payload.InviterName, payload.Role, payload.AcceptURL)
	if err != nil {
		return fmt.Errorf("render invitation: %w", err)
	}

	el := &models.EmailLog{
		OrganizationID: &payload.OrganizationID,
		InvitationID:   &payload.InvitationID,
		EmailType:      models.EmailTypeInvitation,
		RecipientEmail: payload.RecipientEmail,
		Subject:        subject,
	}

	// Missing SMTP config is permanent, record the failure and drop
	// the job instead of retrying.
	if !p.mail.Enabled() {
		el.Status = models.EmailLogStatusFailed
		el.ErrorMessage = "smtp not configured"
		p.recordLog(ctx, el)
		p.logger.Warn("smtp not configured, invitation not sent",
			zap.String("invitation_id", payload.InvitationID.String()),
			zap.String("recipient", payload.RecipientEmail))
		return nil
	}

	if err := p.mail.Send(payload.RecipientEmail, subject, html); err != nil {
		el.Status = models.EmailLogStatusFailed
		el.ErrorMessage = err.Error()
		p.recordLog(ctx, el)
		return fmt.Errorf("send invitation: %w", err)
	}

	now := time.Now()
	el.Status = models.EmailLogStatusSent
	el.SentAt = &now
	p.recordLog(ctx, el)
	p.logger.Info("invitation email sent",
		zap.String("invitation_id", payload.InvitationID.String()),
		zap.String("recipient", payload.RecipientEmail))
	return nil
}

func (p *Processor) processPhotoCleanup(ctx context.Context, job *queue.Job) error {
	var payload queue.PhotoCleanupPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if p.photos == nil {
		p.logger.Warn("object storage not configured, dropping cleanup job", zap.Int("keys", len(payload.Keys)))
		return nil
	}
	failed := 0
	for _, key := range payload.Keys {
		if err := p.photos.DeletePhoto(ctx, key); err != nil {
			p.logger.Warn("photo delete failed", zap.String("key", key), zap.Error(err))
			failed++
		}
	}
	if failed > 0 {
		// retrying the whole key set is safe, S3 deletes are idempotent
		return fmt.Errorf("%d of %d photo deletes failed", failed, len(payload.Keys))
	}
	p.logger.Info("photo cleanup completed", zap.Int("keys", len(payload.Keys)))
	return nil
}

func (p *Processor) recordLog(ctx context.Context, el *models.EmailLog) {
	if err := p.emails.Create(ctx, el); err != nil {
		p.logger.Error("record email log failed", zap.Error(err), zap.String("recipient", el.RecipientEmail))
	}
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}
