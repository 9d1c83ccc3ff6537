package webhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/TechLoui/Vagafogo-sub000/internal/audit"
	"github.com/TechLoui/Vagafogo-sub000/internal/clock"
	"github.com/TechLoui/Vagafogo-sub000/internal/dedup"
	"github.com/TechLoui/Vagafogo-sub000/internal/domain"
	"github.com/TechLoui/Vagafogo-sub000/internal/notify"
	"github.com/TechLoui/Vagafogo-sub000/internal/observability"
	"github.com/TechLoui/Vagafogo-sub000/internal/repository"
)

// Notifier sends the confirmation message for a booking.
type Notifier interface {
	SendConfirmation(ctx context.Context, booking *domain.Booking, message string) (notify.Result, error)
}

// Auditor records terminal processing outcomes.
type Auditor interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Processor handles one inbound event end to end:
// classify → fetch booking → mark paid → dedup check → render → send →
// record notification. It is the queue's Processor implementation.
//
// Errors returned from Process are retryable task failures; terminal
// conditions (irrelevant event, unknown booking, business-reason send
// skips) return nil so the queue discards the task.
type Processor struct {
	bookings repository.BookingRepository
	settings repository.SettingsRepository
	notifier Notifier
	clock    clock.Clock
	logger   *slog.Logger

	metrics *observability.Metrics
	guard   dedup.Guard
	auditor Auditor
}

func NewProcessor(
	bookings repository.BookingRepository,
	settings repository.SettingsRepository,
	notifier Notifier,
	clk clock.Clock,
	logger *slog.Logger,
) *Processor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Processor{
		bookings: bookings,
		settings: settings,
		notifier: notifier,
		clock:    clk,
		logger:   logger,
	}
}

// WithMetrics enables Prometheus metrics collection.
func (p *Processor) WithMetrics(m *observability.Metrics) *Processor {
	p.metrics = m
	return p
}

// WithDedupGuard enables the redis redelivery guard. The guard fails open:
// lookup errors are logged and processing continues.
func (p *Processor) WithDedupGuard(g dedup.Guard) *Processor {
	p.guard = g
	return p
}

// WithAuditor enables outcome publishing. Publish failures are logged,
// never propagated.
func (p *Processor) WithAuditor(a Auditor) *Processor {
	p.auditor = a
	return p
}

func (p *Processor) Process(ctx context.Context, event *domain.InboundEvent) error {
	if !ShouldProcess(event.Event, event.Payment) {
		p.logger.Info("ignoring gateway event", "event", event.Event)
		p.countIgnored()
		p.record(ctx, event, "", audit.OutcomeIgnored, "not a payment confirmation")
		return nil
	}

	reference := event.Reference()
	if reference == "" {
		return fmt.Errorf("event %s carries no external reference: %w", event.Event, domain.ErrInvalidInput)
	}

	if p.guard != nil && event.PaymentID() != "" {
		seen, err := p.guard.Seen(ctx, event.PaymentID())
		if err != nil {
			p.logger.Warn("redelivery guard unavailable", "error", err)
		} else if seen {
			p.logger.Info("payment already fully processed, skipping redelivery",
				"payment_id", event.PaymentID(),
				"booking_id", reference,
			)
			return nil
		}
	}

	booking, err := p.bookings.GetByID(ctx, reference)
	if errors.Is(err, domain.ErrNotFound) {
		// A booking that does not exist now will not appear later; the
		// event is permanently irrelevant, not worth retrying.
		p.logger.Warn("no booking for payment reference",
			"booking_id", reference,
			"event", event.Event,
		)
		p.record(ctx, event, reference, audit.OutcomeOrphaned, "booking not found")
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetch booking %s: %w", reference, err)
	}

	booking.MarkPaid(p.clock.Now())
	if err := p.bookings.UpdatePayment(ctx, booking); err != nil {
		return fmt.Errorf("mark booking %s paid: %w", booking.ID, err)
	}
	p.countPaid()
	p.logger.Info("booking marked paid",
		"booking_id", booking.ID,
		"event", event.Event,
		"billing_type", event.Payment.BillingType,
	)

	// Dedup check sits right before the send, on the freshest state we
	// have: the single worker serializes in-process events, but the
	// gateway itself may deliver the same payment twice.
	if booking.NotificationSent {
		p.logger.Info("confirmation already sent, not resending", "booking_id", booking.ID)
		p.markProcessed(ctx, event)
		p.record(ctx, event, booking.ID, audit.OutcomeConfirmed, "notification already sent")
		return nil
	}

	settings, err := p.settings.GetNotificationSettings(ctx)
	if err != nil {
		return fmt.Errorf("load notification settings: %w", err)
	}
	if !settings.Enabled {
		p.skip(ctx, event, booking, "notifications disabled")
		return nil
	}

	message := settings.Render(booking)
	if message == "" {
		p.skip(ctx, event, booking, "empty message template")
		return nil
	}

	result, err := p.notifier.SendConfirmation(ctx, booking, message)
	if err != nil {
		return fmt.Errorf("send confirmation for booking %s: %w", booking.ID, err)
	}
	if !result.Sent {
		p.skip(ctx, event, booking, result.Reason)
		return nil
	}

	booking.MarkNotified(message, result.Recipient, p.clock.Now())
	if err := p.bookings.UpdateNotification(ctx, booking); err != nil {
		return fmt.Errorf("record notification for booking %s: %w", booking.ID, err)
	}

	p.countSent()
	p.logger.Info("confirmation sent",
		"booking_id", booking.ID,
		"recipient", result.Recipient,
	)
	p.markProcessed(ctx, event)
	p.record(ctx, event, booking.ID, audit.OutcomeConfirmed, "")
	return nil
}

// skip finalizes a task whose payment committed but whose notification was
// not sent for a business reason. The paid status stays; the task is done.
// The redelivery guard is deliberately not marked here: notificationSent is
// still false, so a gateway redelivery must get another chance to send once
// the condition clears.
func (p *Processor) skip(ctx context.Context, event *domain.InboundEvent, booking *domain.Booking, reason string) {
	p.logger.Info("confirmation not sent",
		"booking_id", booking.ID,
		"reason", reason,
	)
	p.countSkipped(reason)
	p.record(ctx, event, booking.ID, audit.OutcomeSkipped, reason)
}

func (p *Processor) markProcessed(ctx context.Context, event *domain.InboundEvent) {
	if p.guard == nil || event.PaymentID() == "" {
		return
	}
	if err := p.guard.Mark(ctx, event.PaymentID()); err != nil {
		p.logger.Warn("failed to mark payment in redelivery guard", "error", err)
	}
}

func (p *Processor) record(ctx context.Context, event *domain.InboundEvent, bookingID string, outcome audit.Outcome, reason string) {
	if p.auditor == nil {
		return
	}
	entry := audit.Entry{
		PaymentID: event.PaymentID(),
		EventType: event.Event,
		BookingID: bookingID,
		Outcome:   outcome,
		Reason:    reason,
		At:        p.clock.Now(),
	}
	if err := p.auditor.Record(ctx, entry); err != nil {
		p.logger.Warn("failed to record audit entry", "error", err)
	}
}

func (p *Processor) countIgnored() {
	if p.metrics != nil {
		p.metrics.EventsIgnored.Inc()
	}
}

func (p *Processor) countPaid() {
	if p.metrics != nil {
		p.metrics.BookingsPaid.Inc()
	}
}

func (p *Processor) countSent() {
	if p.metrics != nil {
		p.metrics.NotificationsSent.Inc()
	}
}

func (p *Processor) countSkipped(reason string) {
	if p.metrics != nil {
		p.metrics.NotificationsSkipped.WithLabelValues(reason).Inc()
	}
}
