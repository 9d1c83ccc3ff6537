package webhook

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/TechLoui/Vagafogo-sub000/internal/audit"
	"github.com/TechLoui/Vagafogo-sub000/internal/clock"
	"github.com/TechLoui/Vagafogo-sub000/internal/domain"
	"github.com/TechLoui/Vagafogo-sub000/internal/notify"
)

type mockBookingRepo struct {
	bookings map[string]*domain.Booking

	getCalls                int
	updatePaymentCalls      int
	updateNotificationCalls int

	getErr                error
	updatePaymentErr      error
	updateNotificationErr error
}

func newMockBookingRepo(bookings ...*domain.Booking) *mockBookingRepo {
	m := &mockBookingRepo{bookings: make(map[string]*domain.Booking)}
	for _, b := range bookings {
		m.bookings[b.ID] = b
	}
	return m
}

func (m *mockBookingRepo) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	m.getCalls++
	if m.getErr != nil {
		return nil, m.getErr
	}
	if b, ok := m.bookings[id]; ok {
		clone := *b
		return &clone, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockBookingRepo) UpdatePayment(ctx context.Context, booking *domain.Booking) error {
	m.updatePaymentCalls++
	if m.updatePaymentErr != nil {
		return m.updatePaymentErr
	}
	m.bookings[booking.ID] = booking
	return nil
}

func (m *mockBookingRepo) UpdateNotification(ctx context.Context, booking *domain.Booking) error {
	m.updateNotificationCalls++
	if m.updateNotificationErr != nil {
		return m.updateNotificationErr
	}
	m.bookings[booking.ID] = booking
	return nil
}

type mockSettingsRepo struct {
	settings *domain.NotificationSettings
	err      error
}

func (m *mockSettingsRepo) GetNotificationSettings(ctx context.Context) (*domain.NotificationSettings, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.settings == nil {
		return &domain.NotificationSettings{}, nil
	}
	return m.settings, nil
}

type mockNotifier struct {
	calls    int
	messages []string
	result   notify.Result
	err      error
}

func (m *mockNotifier) SendConfirmation(ctx context.Context, booking *domain.Booking, message string) (notify.Result, error) {
	m.calls++
	m.messages = append(m.messages, message)
	if m.err != nil {
		return notify.Result{}, m.err
	}
	return m.result, nil
}

type mockGuard struct {
	seen      map[string]bool
	seenErr   error
	markCalls int
}

func (m *mockGuard) Seen(ctx context.Context, paymentID string) (bool, error) {
	if m.seenErr != nil {
		return false, m.seenErr
	}
	return m.seen[paymentID], nil
}

func (m *mockGuard) Mark(ctx context.Context, paymentID string) error {
	m.markCalls++
	if m.seen == nil {
		m.seen = make(map[string]bool)
	}
	m.seen[paymentID] = true
	return nil
}

type mockAuditor struct {
	entries []audit.Entry
}

func (m *mockAuditor) Record(ctx context.Context, entry audit.Entry) error {
	m.entries = append(m.entries, entry)
	return nil
}

func enabledSettings() *mockSettingsRepo {
	return &mockSettingsRepo{settings: &domain.NotificationSettings{
		Enabled:         true,
		MessageTemplate: "Olá {nome}, sua reserva de {atividade} em {data} às {hora} está confirmada!",
	}}
}

func awaitingBooking(id string) *domain.Booking {
	return &domain.Booking{
		ID:           id,
		CustomerName: "Maria Silva",
		Phone:        "(62) 99888-7766",
		Activity:     "Trilha do Santuário",
		Date:         "2026-09-12",
		Time:         "09:00",
		Value:        150,
		Status:       domain.BookingStatusAwaiting,
	}
}

func cardConfirmedEvent(reference string) *domain.InboundEvent {
	return &domain.InboundEvent{
		Event: "PAYMENT_CONFIRMED",
		Payment: &domain.Payment{
			ID:                "pay_001",
			Status:            "CONFIRMED",
			BillingType:       "CREDIT_CARD",
			ExternalReference: reference,
		},
	}
}

func newTestProcessor(repo *mockBookingRepo, settings *mockSettingsRepo, notifier *mockNotifier) *Processor {
	return NewProcessor(repo, settings, notifier, &clock.MockClock{NowTime: time.Now()}, nil)
}

func TestProcessor_CardPaymentConfirmed(t *testing.T) {
	repo := newMockBookingRepo(awaitingBooking("abc123"))
	notifier := &mockNotifier{result: notify.Result{Sent: true, Recipient: "5562998887766"}}
	p := newTestProcessor(repo, enabledSettings(), notifier)

	if err := p.Process(context.Background(), cardConfirmedEvent("abc123")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	b := repo.bookings["abc123"]
	if b.Status != domain.BookingStatusPaid {
		t.Errorf("expected status paid, got %s", b.Status)
	}
	if b.PaidAt == nil {
		t.Error("expected PaidAt to be set")
	}
	if notifier.calls != 1 {
		t.Errorf("expected 1 send, got %d", notifier.calls)
	}
	if !b.NotificationSent {
		t.Error("expected NotificationSent to be true")
	}
	if b.NotificationRecipient == nil || *b.NotificationRecipient != "5562998887766" {
		t.Error("expected recipient to be recorded")
	}
	if b.NotificationMessage == nil || *b.NotificationMessage == "" {
		t.Error("expected rendered message to be recorded")
	}
}

func TestProcessor_PixReceived(t *testing.T) {
	repo := newMockBookingRepo(awaitingBooking("xyz"))
	notifier := &mockNotifier{result: notify.Result{Sent: true, Recipient: "5562998887766"}}
	p := newTestProcessor(repo, enabledSettings(), notifier)

	event := &domain.InboundEvent{
		Event: "PAYMENT_RECEIVED",
		Payment: &domain.Payment{
			Status:            "RECEIVED",
			BillingType:       "PIX",
			ExternalReference: "xyz",
		},
	}

	if err := p.Process(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if repo.bookings["xyz"].Status != domain.BookingStatusPaid {
		t.Error("expected booking marked paid")
	}
	if notifier.calls != 1 {
		t.Errorf("expected 1 send, got %d", notifier.calls)
	}
}

func TestProcessor_IrrelevantEvent_NoStoreCalls(t *testing.T) {
	repo := newMockBookingRepo(awaitingBooking("xyz"))
	notifier := &mockNotifier{}
	p := newTestProcessor(repo, enabledSettings(), notifier)

	event := &domain.InboundEvent{
		Event: "PAYMENT_OVERDUE",
		Payment: &domain.Payment{
			Status:            "OVERDUE",
			BillingType:       "PIX",
			ExternalReference: "xyz",
		},
	}

	if err := p.Process(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if repo.getCalls != 0 {
		t.Errorf("expected no store reads, got %d", repo.getCalls)
	}
	if repo.updatePaymentCalls != 0 {
		t.Errorf("expected no store writes, got %d", repo.updatePaymentCalls)
	}
	if notifier.calls != 0 {
		t.Errorf("expected no sends, got %d", notifier.calls)
	}
}

func TestProcessor_MissingReference_FailsWithoutStoreCall(t *testing.T) {
	repo := newMockBookingRepo()
	p := newTestProcessor(repo, enabledSettings(), &mockNotifier{})

	event := &domain.InboundEvent{
		Event:   "PAYMENT_CONFIRMED",
		Payment: &domain.Payment{Status: "CONFIRMED"},
	}

	err := p.Process(context.Background(), event)
	if err == nil {
		t.Fatal("expected error for missing external reference")
	}
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if repo.getCalls != 0 {
		t.Errorf("expected GetByID not to be called, got %d calls", repo.getCalls)
	}
}

func TestProcessor_BookingAbsent_CompletesWithoutRetry(t *testing.T) {
	repo := newMockBookingRepo()
	notifier := &mockNotifier{}
	p := newTestProcessor(repo, enabledSettings(), notifier)

	if err := p.Process(context.Background(), cardConfirmedEvent("ghost")); err != nil {
		t.Fatalf("expected nil error (not retryable), got %v", err)
	}

	if repo.updatePaymentCalls != 0 {
		t.Error("expected no update for missing booking")
	}
	if notifier.calls != 0 {
		t.Error("expected no notification for missing booking")
	}
}

func TestProcessor_AlreadyNotified_DoesNotResend(t *testing.T) {
	b := awaitingBooking("abc123")
	b.Status = domain.BookingStatusPaid
	b.NotificationSent = true

	repo := newMockBookingRepo(b)
	notifier := &mockNotifier{result: notify.Result{Sent: true}}
	p := newTestProcessor(repo, enabledSettings(), notifier)

	if err := p.Process(context.Background(), cardConfirmedEvent("abc123")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if notifier.calls != 0 {
		t.Errorf("expected zero sends for already-notified booking, got %d", notifier.calls)
	}
	// The paid write still happens; it is an idempotent no-op.
	if repo.updatePaymentCalls != 1 {
		t.Errorf("expected the idempotent paid write, got %d", repo.updatePaymentCalls)
	}
	if repo.updateNotificationCalls != 0 {
		t.Errorf("expected no notification write, got %d", repo.updateNotificationCalls)
	}
}

func TestProcessor_Idempotent_SameEventTwice(t *testing.T) {
	repo := newMockBookingRepo(awaitingBooking("abc123"))
	notifier := &mockNotifier{result: notify.Result{Sent: true, Recipient: "5562998887766"}}
	p := newTestProcessor(repo, enabledSettings(), notifier)

	event := cardConfirmedEvent("abc123")
	if err := p.Process(context.Background(), event); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if err := p.Process(context.Background(), event); err != nil {
		t.Fatalf("second pass: %v", err)
	}

	if notifier.calls != 1 {
		t.Errorf("expected exactly one send across redeliveries, got %d", notifier.calls)
	}
}

func TestProcessor_NotificationsDisabled_PaidStillCommits(t *testing.T) {
	repo := newMockBookingRepo(awaitingBooking("abc123"))
	notifier := &mockNotifier{}
	settings := &mockSettingsRepo{settings: &domain.NotificationSettings{Enabled: false, MessageTemplate: "x"}}
	p := newTestProcessor(repo, settings, notifier)

	if err := p.Process(context.Background(), cardConfirmedEvent("abc123")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if repo.bookings["abc123"].Status != domain.BookingStatusPaid {
		t.Error("expected booking paid even with notifications disabled")
	}
	if notifier.calls != 0 {
		t.Error("expected no send when disabled")
	}
	if repo.bookings["abc123"].NotificationSent {
		t.Error("NotificationSent must stay false without a successful send")
	}
}

func TestProcessor_SendSkipped_NotMarkedSent(t *testing.T) {
	repo := newMockBookingRepo(awaitingBooking("abc123"))
	notifier := &mockNotifier{result: notify.Result{Sent: false, Reason: "invalid phone"}}
	p := newTestProcessor(repo, enabledSettings(), notifier)

	if err := p.Process(context.Background(), cardConfirmedEvent("abc123")); err != nil {
		t.Fatalf("a business-reason skip must not fail the task: %v", err)
	}

	if repo.bookings["abc123"].NotificationSent {
		t.Error("NotificationSent must not be set after a skipped send")
	}
	if repo.updateNotificationCalls != 0 {
		t.Error("expected no notification write after a skip")
	}
}

func TestProcessor_TransportError_IsRetryable(t *testing.T) {
	repo := newMockBookingRepo(awaitingBooking("abc123"))
	notifier := &mockNotifier{err: errors.New("connection refused")}
	p := newTestProcessor(repo, enabledSettings(), notifier)

	if err := p.Process(context.Background(), cardConfirmedEvent("abc123")); err == nil {
		t.Fatal("expected transport error to propagate as task failure")
	}

	if repo.bookings["abc123"].NotificationSent {
		t.Error("NotificationSent must stay false after a failed send")
	}
}

func TestProcessor_StoreError_IsRetryable(t *testing.T) {
	repo := newMockBookingRepo(awaitingBooking("abc123"))
	repo.getErr = errors.New("store unavailable")
	p := newTestProcessor(repo, enabledSettings(), &mockNotifier{})

	if err := p.Process(context.Background(), cardConfirmedEvent("abc123")); err == nil {
		t.Fatal("expected store error to propagate as task failure")
	}
}

func TestProcessor_RedeliveryGuard_ShortCircuits(t *testing.T) {
	repo := newMockBookingRepo(awaitingBooking("abc123"))
	notifier := &mockNotifier{result: notify.Result{Sent: true, Recipient: "5562998887766"}}
	guard := &mockGuard{}
	p := newTestProcessor(repo, enabledSettings(), notifier).WithDedupGuard(guard)

	event := cardConfirmedEvent("abc123")
	if err := p.Process(context.Background(), event); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if guard.markCalls != 1 {
		t.Fatalf("expected guard marked once, got %d", guard.markCalls)
	}

	if err := p.Process(context.Background(), event); err != nil {
		t.Fatalf("second pass: %v", err)
	}

	// Redelivery after a fully processed payment never reaches the store.
	if repo.getCalls != 1 {
		t.Errorf("expected a single store read, got %d", repo.getCalls)
	}
	if notifier.calls != 1 {
		t.Errorf("expected a single send, got %d", notifier.calls)
	}
}

func TestProcessor_RedeliveryAfterSkip_RetriesSend(t *testing.T) {
	repo := newMockBookingRepo(awaitingBooking("abc123"))
	notifier := &mockNotifier{result: notify.Result{Sent: false, Reason: "gateway not connected"}}
	guard := &mockGuard{}
	p := newTestProcessor(repo, enabledSettings(), notifier).WithDedupGuard(guard)

	event := cardConfirmedEvent("abc123")
	if err := p.Process(context.Background(), event); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	// The guard only remembers fully delivered payments; a skipped send
	// must leave the redelivery path open.
	if guard.markCalls != 0 {
		t.Fatalf("guard must not be marked after a skipped send, got %d marks", guard.markCalls)
	}

	notifier.result = notify.Result{Sent: true, Recipient: "5562998887766"}
	if err := p.Process(context.Background(), event); err != nil {
		t.Fatalf("second pass: %v", err)
	}

	if notifier.calls != 2 {
		t.Errorf("expected the redelivery to retry the send, got %d calls", notifier.calls)
	}
	if !repo.bookings["abc123"].NotificationSent {
		t.Error("expected NotificationSent after the redelivered send succeeded")
	}
	if guard.markCalls != 1 {
		t.Errorf("expected guard marked once the send succeeded, got %d", guard.markCalls)
	}
}

func TestProcessor_GuardError_FailsOpen(t *testing.T) {
	repo := newMockBookingRepo(awaitingBooking("abc123"))
	notifier := &mockNotifier{result: notify.Result{Sent: true, Recipient: "5562998887766"}}
	guard := &mockGuard{seenErr: errors.New("redis down")}
	p := newTestProcessor(repo, enabledSettings(), notifier).WithDedupGuard(guard)

	if err := p.Process(context.Background(), cardConfirmedEvent("abc123")); err != nil {
		t.Fatalf("guard errors must not fail the task: %v", err)
	}
	if notifier.calls != 1 {
		t.Errorf("expected processing to continue past guard error, got %d sends", notifier.calls)
	}
}

func TestProcessor_AuditOutcomes(t *testing.T) {
	repo := newMockBookingRepo(awaitingBooking("abc123"))
	notifier := &mockNotifier{result: notify.Result{Sent: true, Recipient: "5562998887766"}}
	auditor := &mockAuditor{}
	p := newTestProcessor(repo, enabledSettings(), notifier).WithAuditor(auditor)

	if err := p.Process(context.Background(), cardConfirmedEvent("abc123")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Process(context.Background(), &domain.InboundEvent{Event: "PAYMENT_OVERDUE", Payment: &domain.Payment{}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(auditor.entries) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(auditor.entries))
	}
	if auditor.entries[0].Outcome != audit.OutcomeConfirmed {
		t.Errorf("expected confirmed outcome, got %s", auditor.entries[0].Outcome)
	}
	if auditor.entries[1].Outcome != audit.OutcomeIgnored {
		t.Errorf("expected ignored outcome, got %s", auditor.entries[1].Outcome)
	}
}
