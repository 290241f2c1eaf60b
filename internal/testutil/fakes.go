package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/javajoker/wavhaven-backend/internal/services"
)

// ValidSignature is the only webhook signature FakePayments accepts.
const ValidSignature = "t=1,v1=valid"

// FakePayments records calls and returns canned processor responses.
// Webhook payloads are services.PaymentEvent values encoded as JSON.
type FakePayments struct {
	mu sync.Mutex

	Sessions    []services.CheckoutSessionRequest
	Refunds     []string
	Accounts    []uuid.UUID
	CheckoutErr error
	AccountErr  error
	RefundErr   error
}

var _ services.PaymentProcessor = (*FakePayments)(nil)

func (f *FakePayments) CreateCheckoutSession(_ context.Context, req services.CheckoutSessionRequest) (*services.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CheckoutErr != nil {
		return nil, f.CheckoutErr
	}
	f.Sessions = append(f.Sessions, req)
	id := fmt.Sprintf("cs_test_%d", len(f.Sessions))
	return &services.CheckoutSession{ID: id, URL: "https://checkout.test/" + id}, nil
}

func (f *FakePayments) CreateConnectedAccount(_ context.Context, userID uuid.UUID, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AccountErr != nil {
		return "", f.AccountErr
	}
	f.Accounts = append(f.Accounts, userID)
	return "acct_" + userID.String()[:8], nil
}

func (f *FakePayments) CreateOnboardingLink(_ context.Context, accountID, _, _ string) (string, error) {
	return "https://connect.test/onboarding/" + accountID, nil
}

func (f *FakePayments) CreateLoginLink(_ context.Context, accountID string) (string, error) {
	return "https://connect.test/login/" + accountID, nil
}

func (f *FakePayments) Refund(_ context.Context, paymentIntentID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RefundErr != nil {
		return f.RefundErr
	}
	f.Refunds = append(f.Refunds, paymentIntentID)
	return nil
}

func (f *FakePayments) ParseWebhookEvent(payload []byte, signature string) (*services.PaymentEvent, error) {
	if signature != ValidSignature {
		return nil, services.ErrInvalidWebhookSignature
	}
	var event services.PaymentEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

func (f *FakePayments) SessionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Sessions)
}

// FakeStorage keeps uploaded objects in memory.
type FakeStorage struct {
	mu      sync.Mutex
	Objects map[string][]byte
	Deleted []string
}

var _ services.FileStorage = (*FakeStorage)(nil)

func NewFakeStorage() *FakeStorage {
	return &FakeStorage{Objects: make(map[string][]byte)}
}

func (s *FakeStorage) Upload(_ context.Context, key string, body io.Reader, _ string, _ bool) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Objects[key] = data
	return nil
}

func (s *FakeStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Objects, key)
	s.Deleted = append(s.Deleted, key)
	return nil
}

func (s *FakeStorage) SignedURL(_ context.Context, key string, expiry time.Duration, downloadName string) (string, error) {
	q := url.Values{"name": {downloadName}, "expires": {expiry.String()}}
	return "https://signed.test/" + key + "?" + q.Encode(), nil
}

func (s *FakeStorage) PublicURL(key string) string {
	return "https://cdn.test/" + key
}

func (s *FakeStorage) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.Objects[key]
	return ok
}

// SentMail is one message captured by FakeMailer.
type SentMail struct {
	To      string
	Subject string
	Body    string
}

type FakeMailer struct {
	mu   sync.Mutex
	sent []SentMail
}

var _ services.Mailer = (*FakeMailer)(nil)

func (m *FakeMailer) Send(to, subject, htmlBody string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentMail{To: to, Subject: subject, Body: htmlBody})
	return nil
}

func (m *FakeMailer) Sent() []SentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMail(nil), m.sent...)
}

// Env is a fully wired service registry over an in-memory database.
type Env struct {
	DB       *gorm.DB
	Services *services.Registry
	Payments *FakePayments
	Storage  *FakeStorage
	Mailer   *FakeMailer
}

func NewEnv(t *testing.T) *Env {
	t.Helper()

	env := &Env{
		DB:       NewDB(t),
		Payments: &FakePayments{},
		Storage:  NewFakeStorage(),
		Mailer:   &FakeMailer{},
	}
	env.Services = services.NewRegistry(env.DB, Config(), services.Backends{
		Payments: env.Payments,
		Storage:  env.Storage,
		Mailer:   env.Mailer,
	})
	return env
}
