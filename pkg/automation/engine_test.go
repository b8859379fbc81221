package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/perkflow/perkflow/pkg/model"
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.now
}

type fakeAutomations struct {
	automations []model.Automation
	err         error
}

func (f *fakeAutomations) ListActive(ctx context.Context) ([]model.Automation, error) {
	return f.automations, f.err
}

type fakeProfiles struct {
	profiles []model.Profile
}

func (f *fakeProfiles) filter(specificUserID *uuid.UUID, keep func(model.Profile) bool) []model.Profile {
	var out []model.Profile
	for _, p := range f.profiles {
		if specificUserID != nil && p.ID != *specificUserID {
			continue
		}
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

func (f *fakeProfiles) FindCreatedSince(ctx context.Context, since time.Time, specificUserID *uuid.UUID) ([]model.Profile, error) {
	return f.filter(specificUserID, func(p model.Profile) bool {
		return p.Email != nil && !p.CreatedAt.Before(since)
	}), nil
}

func (f *fakeProfiles) FindConsented(ctx context.Context, specificUserID *uuid.UUID) ([]model.Profile, error) {
	return f.filter(specificUserID, func(p model.Profile) bool {
		return p.MarketingConsent && p.Email != nil
	}), nil
}

func (f *fakeProfiles) FindBirthdayCandidates(ctx context.Context, specificUserID *uuid.UUID) ([]model.Profile, error) {
	return f.filter(specificUserID, func(p model.Profile) bool {
		return p.MarketingConsent && p.Email != nil && p.Birthday != nil
	}), nil
}

func (f *fakeProfiles) GetByID(ctx context.Context, id uuid.UUID) (*model.Profile, error) {
	for i := range f.profiles {
		if f.profiles[i].ID == id {
			return &f.profiles[i], nil
		}
	}
	return nil, errNotFound
}

type fakeCheckIns struct {
	byUser map[uuid.UUID][]time.Time
}

func (f *fakeCheckIns) UserIDsSince(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for id, visits := range f.byUser {
		for _, at := range visits {
			if !at.Before(cutoff) {
				out = append(out, id)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeCheckIns) UserIDsWithVisits(ctx context.Context) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for id, visits := range f.byUser {
		if len(visits) > 0 {
			out = append(out, id)
		}
	}
	return out, nil
}

type claimKey struct {
	automationID uuid.UUID
	userID       uuid.UUID
	window       string
}

type fakeLedgerStore struct {
	rows     map[claimKey]time.Time
	claimErr error
}

func newFakeLedgerStore() *fakeLedgerStore {
	return &fakeLedgerStore{rows: make(map[claimKey]time.Time)}
}

func (f *fakeLedgerStore) Claim(ctx context.Context, automationID, userID uuid.UUID, windowKey string, executedAt time.Time, expireBefore *time.Time) (bool, error) {
	if f.claimErr != nil {
		return false, f.claimErr
	}
	key := claimKey{automationID, userID, windowKey}
	if expireBefore != nil {
		if at, ok := f.rows[key]; ok && at.Before(*expireBefore) {
			delete(f.rows, key)
		}
	}
	if _, ok := f.rows[key]; ok {
		return false, nil
	}
	f.rows[key] = executedAt
	return true, nil
}

func (f *fakeLedgerStore) Release(ctx context.Context, automationID, userID uuid.UUID, windowKey string) error {
	delete(f.rows, claimKey{automationID, userID, windowKey})
	return nil
}

func (f *fakeLedgerStore) ForceRelease(ctx context.Context, automationID, userID uuid.UUID) error {
	for key := range f.rows {
		if key.automationID == automationID && key.userID == userID {
			delete(f.rows, key)
		}
	}
	return nil
}

type sentEmail struct {
	to      string
	subject string
	body    string
}

type fakeEmailSender struct {
	sent    []sentEmail
	failFor map[string]error
}

func (f *fakeEmailSender) Send(ctx context.Context, to, subject, html string) error {
	if err, ok := f.failFor[to]; ok {
		return err
	}
	f.sent = append(f.sent, sentEmail{to: to, subject: subject, body: html})
	return nil
}

type fakePushSender struct {
	sent int
}

func (f *fakePushSender) Send(ctx context.Context, userID uuid.UUID, title, body, url string) {
	f.sent++
}

type fakeAlerter struct {
	alerts []string
}

func (f *fakeAlerter) Alert(ctx context.Context, subject, detail string) {
	f.alerts = append(f.alerts, subject)
}

type fakeRewards struct {
	rewards     map[uuid.UUID]*model.Reward
	redemptions []model.Redemption
	insertErr   error
}

func (f *fakeRewards) GetByID(ctx context.Context, id uuid.UUID) (*model.Reward, error) {
	if reward, ok := f.rewards[id]; ok {
		return reward, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRewards) CreateRedemption(ctx context.Context, redemption *model.Redemption) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.redemptions = append(f.redemptions, *redemption)
	return nil
}

type fakeEvents struct {
	recorded []string
}

func (f *fakeEvents) Record(ctx context.Context, eventType string, payload model.JSONB) error {
	f.recorded = append(f.recorded, eventType)
	return nil
}

type engineFixture struct {
	engine   *Engine
	clock    *fixedClock
	profiles *fakeProfiles
	checkIns *fakeCheckIns
	ledger   *fakeLedgerStore
	email    *fakeEmailSender
	push     *fakePushSender
	alerts   *fakeAlerter
	rewards  *fakeRewards
	events   *fakeEvents
}

func newEngineFixture(automations []model.Automation) *engineFixture {
	clock := &fixedClock{now: time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)}
	profiles := &fakeProfiles{}
	checkIns := &fakeCheckIns{byUser: make(map[uuid.UUID][]time.Time)}
	ledgerStore := newFakeLedgerStore()
	email := &fakeEmailSender{failFor: make(map[string]error)}
	push := &fakePushSender{}
	alerts := &fakeAlerter{}
	rewards := &fakeRewards{rewards: make(map[uuid.UUID]*model.Reward)}
	events := &fakeEvents{}

	logger := zap.NewNop()
	evaluator := NewEvaluator(profiles, checkIns, clock, 3, 30)
	ledger := NewLedger(ledgerStore, clock, 90)
	executor := NewExecutor(rewards, ledger, email, push, alerts, "https://perkflow.example/unsubscribe", logger)
	engine := NewEngine(&fakeAutomations{automations: automations}, evaluator, ledger, executor, events, clock, time.Second, logger)

	return &engineFixture{
		engine:   engine,
		clock:    clock,
		profiles: profiles,
		checkIns: checkIns,
		ledger:   ledgerStore,
		email:    email,
		push:     push,
		alerts:   alerts,
		rewards:  rewards,
		events:   events,
	}
}

var errNotFound = errors.New("record not found")

func strPtr(s string) *string { return &s }

func newMember(email string, createdAt time.Time) model.Profile {
	return model.Profile{
		ID:               uuid.New(),
		Email:            strPtr(email),
		FullName:         "Alex Doe",
		MarketingConsent: true,
		CreatedAt:        createdAt,
	}
}

func welcomeAutomation() model.Automation {
	return model.Automation{
		ID:           uuid.New(),
		Name:         "Welcome Series",
		Type:         model.AutomationWelcome,
		Active:       true,
		EmailSubject: "Welcome!",
		EmailBody:    "<p>Hi {{name}}, thanks for joining.</p>",
	}
}

func TestWelcomeRunSendsOnce(t *testing.T) {
	fx := newEngineFixture([]model.Automation{welcomeAutomation()})
	member := newMember("new@example.com", fx.clock.now.AddDate(0, 0, -1))
	fx.profiles.profiles = []model.Profile{member}

	result, err := fx.engine.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(result.Results) != 1 || result.Results[0].SentCount != 1 {
		t.Fatalf("expected sentCount 1, got %+v", result.Results)
	}
	if len(fx.email.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(fx.email.sent))
	}
	if !strings.Contains(fx.email.sent[0].body, "Hi Alex Doe") {
		t.Fatalf("expected rendered name in body, got %q", fx.email.sent[0].body)
	}
	if !strings.Contains(fx.email.sent[0].body, "unsubscribe") {
		t.Fatalf("expected unsubscribe footer in body")
	}

	// Second invocation: the claim is held, so nothing is re-sent.
	result, err = fx.engine.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if result.Results[0].SentCount != 0 {
		t.Fatalf("expected sentCount 0 on rerun, got %d", result.Results[0].SentCount)
	}
	if len(fx.email.sent) != 1 {
		t.Fatalf("expected no additional email, got %d", len(fx.email.sent))
	}

	found := false
	for _, line := range result.Log {
		if strings.Contains(line, "already executed in window") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected skip entry in run log, got %v", result.Log)
	}

	// A third invocation still sends nothing: exactly one email total no
	// matter how often the scheduler fires inside the window.
	result, err = fx.engine.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("third run failed: %v", err)
	}
	if result.Results[0].SentCount != 0 || len(fx.email.sent) != 1 {
		t.Fatalf("expected exactly one email across repeated runs, got %d", len(fx.email.sent))
	}
}

func TestForcedRunBypassesClaim(t *testing.T) {
	fx := newEngineFixture([]model.Automation{welcomeAutomation()})
	member := newMember("new@example.com", fx.clock.now.AddDate(0, 0, -1))
	fx.profiles.profiles = []model.Profile{member}

	if _, err := fx.engine.Run(context.Background(), nil); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	result, err := fx.engine.Run(context.Background(), &member.ID)
	if err != nil {
		t.Fatalf("forced run failed: %v", err)
	}
	if result.Results[0].SentCount != 1 {
		t.Fatalf("expected forced re-send, got %+v", result.Results)
	}
	if len(fx.email.sent) != 2 {
		t.Fatalf("expected 2 emails after forced run, got %d", len(fx.email.sent))
	}
}

func TestEmailFailureReleasesClaim(t *testing.T) {
	fx := newEngineFixture([]model.Automation{welcomeAutomation()})
	member := newMember("flaky@example.com", fx.clock.now.AddDate(0, 0, -1))
	fx.profiles.profiles = []model.Profile{member}
	fx.email.failFor["flaky@example.com"] = errors.New("smtp unavailable")

	result, err := fx.engine.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Results[0].SentCount != 0 {
		t.Fatalf("expected no sends, got %+v", result.Results)
	}
	if len(fx.ledger.rows) != 0 {
		t.Fatalf("expected claim released after send failure, ledger has %d rows", len(fx.ledger.rows))
	}
	if len(fx.alerts.alerts) == 0 {
		t.Fatalf("expected operator alert on send failure")
	}

	// The provider recovers; the next run retries the same user.
	delete(fx.email.failFor, "flaky@example.com")
	result, err = fx.engine.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("retry run failed: %v", err)
	}
	if result.Results[0].SentCount != 1 {
		t.Fatalf("expected retry send, got %+v", result.Results)
	}
}

func TestBatchIsolation(t *testing.T) {
	fx := newEngineFixture([]model.Automation{welcomeAutomation()})
	broken := newMember("broken@example.com", fx.clock.now.AddDate(0, 0, -1))
	healthy := newMember("healthy@example.com", fx.clock.now.AddDate(0, 0, -1))
	fx.profiles.profiles = []model.Profile{broken, healthy}
	fx.email.failFor["broken@example.com"] = errors.New("mailbox full")

	result, err := fx.engine.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Results[0].SentCount != 1 {
		t.Fatalf("expected healthy member still processed, got %+v", result.Results)
	}
	if len(fx.email.sent) != 1 || fx.email.sent[0].to != "healthy@example.com" {
		t.Fatalf("expected send to healthy member only, got %+v", fx.email.sent)
	}
}

func TestClaimErrorSkipsSideEffects(t *testing.T) {
	fx := newEngineFixture([]model.Automation{welcomeAutomation()})
	member := newMember("new@example.com", fx.clock.now.AddDate(0, 0, -1))
	fx.profiles.profiles = []model.Profile{member}
	fx.ledger.claimErr = errors.New("connection refused")

	result, err := fx.engine.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Results[0].SentCount != 0 {
		t.Fatalf("expected no sends when claim fails, got %+v", result.Results)
	}
	if len(fx.email.sent) != 0 {
		t.Fatalf("expected no email without a claim, got %d", len(fx.email.sent))
	}
}

func TestRewardGrantedBeforeEmail(t *testing.T) {
	auto := welcomeAutomation()
	rewardID := uuid.New()
	auto.RewardID = &rewardID

	fx := newEngineFixture([]model.Automation{auto})
	fx.rewards.rewards[rewardID] = &model.Reward{ID: rewardID, Name: "Free Coffee", PointsCost: 100}
	member := newMember("new@example.com", fx.clock.now.AddDate(0, 0, -1))
	fx.profiles.profiles = []model.Profile{member}

	result, err := fx.engine.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Results[0].SentCount != 1 {
		t.Fatalf("expected send, got %+v", result.Results)
	}
	if len(fx.rewards.redemptions) != 1 {
		t.Fatalf("expected 1 redemption, got %d", len(fx.rewards.redemptions))
	}

	redemption := fx.rewards.redemptions[0]
	if redemption.PointsSpent != 0 {
		t.Fatalf("automation grants must cost zero points, got %d", redemption.PointsSpent)
	}
	if redemption.Status != model.RedemptionApproved {
		t.Fatalf("expected auto-approved redemption, got %q", redemption.Status)
	}
	if !strings.HasPrefix(redemption.VoucherCode, "AUTO-") || len(redemption.VoucherCode) != 11 {
		t.Fatalf("unexpected voucher code %q", redemption.VoucherCode)
	}
	if fx.push.sent != 1 {
		t.Fatalf("expected reward push notification, got %d", fx.push.sent)
	}
}

func TestMissingRewardParksUserWithAlert(t *testing.T) {
	auto := welcomeAutomation()
	rewardID := uuid.New()
	auto.RewardID = &rewardID

	fx := newEngineFixture([]model.Automation{auto})
	member := newMember("new@example.com", fx.clock.now.AddDate(0, 0, -1))
	fx.profiles.profiles = []model.Profile{member}

	result, err := fx.engine.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Results[0].SentCount != 0 {
		t.Fatalf("expected no sends with missing reward, got %+v", result.Results)
	}
	if len(fx.email.sent) != 0 {
		t.Fatalf("expected no email when reward grant fails")
	}
	if len(fx.ledger.rows) != 0 {
		t.Fatalf("expected claim released after reward failure")
	}

	found := false
	for _, line := range result.Log {
		if strings.Contains(line, "permanent") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected permanent failure in run log, got %v", result.Log)
	}
}

func TestEventRecordedPerSend(t *testing.T) {
	fx := newEngineFixture([]model.Automation{welcomeAutomation()})
	fx.profiles.profiles = []model.Profile{
		newMember("a@example.com", fx.clock.now.AddDate(0, 0, -1)),
		newMember("b@example.com", fx.clock.now.AddDate(0, 0, -2)),
	}

	if _, err := fx.engine.Run(context.Background(), nil); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(fx.events.recorded) != 2 {
		t.Fatalf("expected 2 recorded events, got %d", len(fx.events.recorded))
	}
	for _, eventType := range fx.events.recorded {
		if eventType != "automation_executed" {
			t.Fatalf("unexpected event type %q", eventType)
		}
	}
}

func TestListFailureAbortsRun(t *testing.T) {
	clock := &fixedClock{now: time.Now()}
	logger := zap.NewNop()
	engine := NewEngine(
		&fakeAutomations{err: fmt.Errorf("db down")},
		NewEvaluator(&fakeProfiles{}, &fakeCheckIns{}, clock, 3, 30),
		NewLedger(newFakeLedgerStore(), clock, 90),
		nil, nil, clock, time.Second, logger,
	)

	if _, err := engine.Run(context.Background(), nil); err == nil {
		t.Fatalf("expected error when automation listing fails")
	}
}
