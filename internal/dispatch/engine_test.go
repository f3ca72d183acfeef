package dispatch

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"RosterMail/internal/compose"
	"RosterMail/internal/ledger"
	"RosterMail/internal/models"
	"RosterMail/internal/transport"
)

type fakeTransport struct {
	mu          sync.Mutex
	inFlight    int
	maxInFlight int
	calls       []*compose.Payload
	failOn      map[int]error // 1-based call index -> error
}

func (f *fakeTransport) Method() models.SendMethod { return models.MethodAPI }

func (f *fakeTransport) Send(_ context.Context, p *compose.Payload) error {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.calls = append(f.calls, p)
	idx := len(f.calls)
	err := f.failOn[idx]
	f.mu.Unlock()

	time.Sleep(2 * time.Millisecond)

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
	return err
}

type fakeTokens struct {
	valid       bool
	invalidated bool
	reauthErr   error
	reauthCalls int
}

func (f *fakeTokens) HasValidCredential() bool { return f.valid }
func (f *fakeTokens) Invalidate()              { f.valid = false; f.invalidated = true }
func (f *fakeTokens) Reauthorize(context.Context) error {
	f.reauthCalls++
	if f.reauthErr != nil {
		return f.reauthErr
	}
	f.valid = true
	return nil
}

func testEntries(n int) *models.EntryList {
	list := models.NewEntryList()
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("r%d", i+1)
		list.Add(&models.DraftEntry{
			RecipientID: id,
			Recipient:   models.Recipient{ID: id, Name: "Persona " + id, Email: id + "@example.cl"},
			Mode:        models.ModePrimary,
			Subject:     "Asunto " + id,
			Body:        "<p>cuerpo</p>",
			State:       models.StatePending,
		})
	}
	return list
}

func newTestEngine(t *fakeTransport, tokens *fakeTokens, led ledger.Ledger) *Engine {
	e := New(led, t, tokens, zap.NewNop())
	e.Interval = time.Millisecond
	return e
}

func TestSendAllHappyPath(t *testing.T) {
	ctx := context.Background()
	led := ledger.NewMemory()
	campaign, _ := led.CreateCampaign(ctx, "c")
	ft := &fakeTransport{}
	e := newTestEngine(ft, &fakeTokens{valid: true}, led)

	entries := testEntries(3)
	var progresses []Progress
	summary, err := e.SendAll(ctx, campaign.ID, entries, nil, func(p Progress) {
		progresses = append(progresses, p)
	})
	if err != nil {
		t.Fatal(err)
	}

	if summary.Sent != 3 || summary.Failed != 0 || summary.Cancelled {
		t.Fatalf("summary = %+v", summary)
	}
	if len(summary.Outcomes) != 3 {
		t.Fatalf("outcomes = %d", len(summary.Outcomes))
	}
	for i, out := range summary.Outcomes {
		want := fmt.Sprintf("r%d", i+1)
		if out.RecipientID != want || !out.OK {
			t.Errorf("outcome %d = %+v", i, out)
		}
	}
	for _, entry := range entries.All() {
		if !entry.Sent || entry.State != models.StateSent {
			t.Errorf("entry %s not sent: %+v", entry.RecipientID, entry)
		}
	}
	if len(progresses) != 3 || progresses[2].Completed != 3 || progresses[2].Total != 3 {
		t.Errorf("progress stream wrong: %+v", progresses)
	}
	got, _ := led.Campaign(ctx, campaign.ID)
	if len(got.Logs) != 3 {
		t.Errorf("logs = %d", len(got.Logs))
	}
}

func TestSendAllSequential(t *testing.T) {
	ctx := context.Background()
	led := ledger.NewMemory()
	campaign, _ := led.CreateCampaign(ctx, "c")
	ft := &fakeTransport{}
	e := newTestEngine(ft, &fakeTokens{valid: true}, led)

	if _, err := e.SendAll(ctx, campaign.ID, testEntries(5), nil, nil); err != nil {
		t.Fatal(err)
	}
	if ft.maxInFlight != 1 {
		t.Fatalf("max in-flight sends = %d, want 1", ft.maxInFlight)
	}
}

func TestSendAllBeaconSharesLogID(t *testing.T) {
	ctx := context.Background()
	led := ledger.NewMemory()
	campaign, _ := led.CreateCampaign(ctx, "c")
	ft := &fakeTransport{}
	e := newTestEngine(ft, &fakeTokens{valid: true}, led)
	e.TrackingBase = "https://track.example.cl"
	e.DatasetID = "db1"

	if _, err := e.SendAll(ctx, campaign.ID, testEntries(1), nil, nil); err != nil {
		t.Fatal(err)
	}

	lidRe := regexp.MustCompile(`lid=([^&"]+)`)
	m := lidRe.FindSubmatch(ft.calls[0].Raw)
	if m == nil {
		t.Fatal("beacon url not found in raw payload")
	}
	beaconLogID := string(m[1])

	got, _ := led.Campaign(ctx, campaign.ID)
	if len(got.Logs) != 1 || got.Logs[0].ID != beaconLogID {
		t.Fatalf("log id %q does not match beacon lid %q", got.Logs[0].ID, beaconLogID)
	}
}

func TestSendAllSkipsSentAndUnaddressed(t *testing.T) {
	ctx := context.Background()
	led := ledger.NewMemory()
	campaign, _ := led.CreateCampaign(ctx, "c")
	ft := &fakeTransport{}
	e := newTestEngine(ft, &fakeTokens{valid: true}, led)

	entries := testEntries(2)
	already, _ := entries.Get("r1")
	already.Sent = true
	already.State = models.StateSent
	entries.Add(&models.DraftEntry{
		RecipientID: "r3",
		Recipient:   models.Recipient{ID: "r3"}, // no address in any mode
		Mode:        models.ModePrimary,
	})

	summary, err := e.SendAll(ctx, campaign.ID, entries, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(summary.Outcomes) != 1 || summary.Outcomes[0].RecipientID != "r2" {
		t.Fatalf("outcomes = %+v", summary.Outcomes)
	}
	// the excluded entries were never attempted, not failed
	if len(ft.calls) != 1 {
		t.Errorf("transport calls = %d", len(ft.calls))
	}
	skipped, _ := entries.Get("r3")
	if skipped.State == models.StateFailed {
		t.Error("unaddressed entry marked failed")
	}
}

func TestSendAllAuthExpiredMidBatch(t *testing.T) {
	ctx := context.Background()
	led := ledger.NewMemory()
	campaign, _ := led.CreateCampaign(ctx, "c")
	ft := &fakeTransport{failOn: map[int]error{2: errors.New("el token ha expirado")}}
	tokens := &fakeTokens{valid: true}
	e := newTestEngine(ft, tokens, led)

	entries := testEntries(3)
	summary, err := e.SendAll(ctx, campaign.ID, entries, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	if len(summary.Outcomes) != 3 {
		t.Fatalf("outcomes = %d, want 3 (batch must continue past failures)", len(summary.Outcomes))
	}
	if !summary.Outcomes[0].OK || summary.Outcomes[1].OK || !summary.Outcomes[2].OK {
		t.Errorf("outcomes = %+v", summary.Outcomes)
	}
	if summary.Outcomes[1].Err == "" {
		t.Error("failed outcome missing error message")
	}
	if !tokens.invalidated {
		t.Error("credential flag not flipped after auth failure")
	}

	failed, _ := entries.Get("r2")
	if failed.Sent || failed.State != models.StateFailed {
		t.Errorf("failed entry = %+v", failed)
	}
	// failed entry stays eligible for a later run
	if pending := entries.Pending(); len(pending) != 1 || pending[0].RecipientID != "r2" {
		t.Errorf("pending after batch = %+v", pending)
	}
	got, _ := led.Campaign(ctx, campaign.ID)
	if len(got.Logs) != 2 {
		t.Errorf("logs = %d, want 2 (no log for the failed send)", len(got.Logs))
	}
}

func TestSendAllCancellation(t *testing.T) {
	led := ledger.NewMemory()
	campaign, _ := led.CreateCampaign(context.Background(), "c")
	ft := &fakeTransport{}
	e := newTestEngine(ft, &fakeTokens{valid: true}, led)

	ctx, cancel := context.WithCancel(context.Background())
	entries := testEntries(4)
	summary, err := e.SendAll(ctx, campaign.ID, entries, nil, func(p Progress) {
		if p.Completed == 2 {
			cancel()
		}
	})
	if err != nil {
		t.Fatal(err)
	}

	if !summary.Cancelled {
		t.Error("summary not marked cancelled")
	}
	if len(summary.Outcomes) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(summary.Outcomes))
	}
	// entries 1..2 sent and stay sent; 3..4 untouched and retryable
	for _, id := range []string{"r1", "r2"} {
		entry, _ := entries.Get(id)
		if !entry.Sent {
			t.Errorf("%s should remain sent after cancellation", id)
		}
	}
	for _, id := range []string{"r3", "r4"} {
		entry, _ := entries.Get(id)
		if entry.Sent || entry.State != models.StatePending {
			t.Errorf("%s = %+v, want untouched pending", id, entry)
		}
	}
}

func TestSendAllValidation(t *testing.T) {
	led := ledger.NewMemory()
	e := newTestEngine(&fakeTransport{}, &fakeTokens{valid: true}, led)

	var verr *ValidationError
	_, err := e.SendAll(context.Background(), "", testEntries(1), nil, nil)
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}

	campaign, _ := led.CreateCampaign(context.Background(), "c")
	_, err = e.SendAll(context.Background(), campaign.ID, models.NewEntryList(), nil, nil)
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError for empty pending set", err)
	}

	blank := testEntries(1)
	blank.All()[0].Body = "   "
	_, err = e.SendAll(context.Background(), campaign.ID, blank, nil, nil)
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError for empty body", err)
	}
}

func TestSendAllReauthorizeDeclined(t *testing.T) {
	led := ledger.NewMemory()
	campaign, _ := led.CreateCampaign(context.Background(), "c")
	ft := &fakeTransport{}
	tokens := &fakeTokens{valid: false, reauthErr: transport.ErrReauthorizeCancelled}
	e := newTestEngine(ft, tokens, led)

	_, err := e.SendAll(context.Background(), campaign.ID, testEntries(2), nil, nil)
	if !errors.Is(err, transport.ErrReauthorizeCancelled) {
		t.Fatalf("err = %v", err)
	}
	if len(ft.calls) != 0 {
		t.Error("transport called despite declined authorization")
	}
}

func TestSendOne(t *testing.T) {
	ctx := context.Background()
	led := ledger.NewMemory()
	campaign, _ := led.CreateCampaign(ctx, "c")
	ft := &fakeTransport{}
	tokens := &fakeTokens{valid: false}
	e := newTestEngine(ft, tokens, led)

	entries := testEntries(1)
	entry := entries.All()[0]

	if _, err := e.SendOne(ctx, "", entry, nil); err == nil {
		t.Fatal("expected validation error without campaign")
	}

	out, err := e.SendOne(ctx, campaign.ID, entry, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !out.OK || out.To != "r1@example.cl" {
		t.Errorf("outcome = %+v", out)
	}
	if tokens.reauthCalls != 1 {
		t.Errorf("reauthorize calls = %d", tokens.reauthCalls)
	}
	if !entry.Sent {
		t.Error("entry not marked sent")
	}
}

func TestCcList(t *testing.T) {
	e := newTestEngine(&fakeTransport{}, &fakeTokens{valid: true}, ledger.NewMemory())
	e.FixedCc = "gestion@example.cl"

	entry := &models.DraftEntry{
		Mode:         models.ModePrimary,
		CcBoss:       true,
		CcFixed:      true,
		AdditionalCc: "extra@example.cl",
		Recipient:    models.Recipient{BossEmail: "jefe@example.cl"},
	}
	got := e.CcList(entry)
	want := []string{"jefe@example.cl", "gestion@example.cl", "extra@example.cl"}
	if len(got) != len(want) {
		t.Fatalf("cc = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("cc[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	// boss CC only applies when addressing the recipient directly
	entry.Mode = models.ModeSecondary
	got = e.CcList(entry)
	if len(got) != 2 || got[0] != "gestion@example.cl" {
		t.Errorf("cc = %v", got)
	}
}

func TestExportEML(t *testing.T) {
	ctx := context.Background()
	led := ledger.NewMemory()
	campaign, _ := led.CreateCampaign(ctx, "c")
	e := newTestEngine(&fakeTransport{}, &fakeTokens{valid: true}, led)

	entries := testEntries(1)
	entry := entries.All()[0]
	entry.Subject = "Informe Anual"

	name, data, err := e.ExportEML(ctx, campaign.ID, entry, nil)
	if err != nil {
		t.Fatal(err)
	}
	if name != "Informe_Anual.eml" {
		t.Errorf("filename = %q", name)
	}
	if !regexp.MustCompile(`(?m)^X-Unsent: 1`).Match(data) {
		t.Error("eml missing unsent marker")
	}
	if !entry.Sent {
		t.Error("entry not marked sent")
	}
	got, _ := led.Campaign(ctx, campaign.ID)
	if len(got.Logs) != 1 || got.Logs[0].Method != models.MethodEML {
		t.Errorf("logs = %+v", got.Logs)
	}
}
