package models

import "time"

type Gender string

const (
	GenderMale        Gender = "Male"
	GenderFemale      Gender = "Female"
	GenderUnspecified Gender = "Unspecified"
)

// Recipient is a read-only roster entry. The engine never mutates it; the
// roster store owns the data and it is re-read fresh each session.
type Recipient struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Gender       Gender `json:"gender"`
	Title        string `json:"title"`
	Department   string `json:"department"`
	Position     string `json:"position"`
	BossName     string `json:"boss_name"`
	BossPosition string `json:"boss_position"`
	BossEmail    string `json:"boss_email"`
}

// EmailTemplate holds the subject and body with {placeholder} tokens.
type EmailTemplate struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type RecipientMode string

const (
	// ModePrimary addresses the recipient directly.
	ModePrimary RecipientMode = "primary"
	// ModeSecondary addresses the recipient's boss instead.
	ModeSecondary RecipientMode = "secondary"
)

type EntryState string

const (
	StatePending EntryState = "pending"
	StateSending EntryState = "sending"
	StateSent    EntryState = "sent"
	StateFailed  EntryState = "failed"
)

// Attachment is an in-memory file blob attached to a message.
type Attachment struct {
	Name     string
	MIMEType string
	Content  []byte
}

// DraftEntry is one per-recipient editable message. Sent is monotonic: once
// true the entry is excluded from every future dispatch attempt.
type DraftEntry struct {
	RecipientID  string
	Recipient    Recipient
	Mode         RecipientMode
	CcBoss       bool
	CcFixed      bool
	AdditionalCc string
	Subject      string
	Body         string
	Attachments  []Attachment
	Sent         bool
	State        EntryState
}

// Destination resolves the To address for the entry's recipient mode.
// An empty result means the entry cannot be dispatched.
func (e *DraftEntry) Destination() string {
	if e.Mode == ModeSecondary {
		return e.Recipient.BossEmail
	}
	return e.Recipient.Email
}

type SendMethod string

const (
	MethodSMTP SendMethod = "smtp"
	MethodAPI  SendMethod = "api"
	MethodEML  SendMethod = "eml"
)

// EmailLog is one append-only row in a campaign's audit trail. ID is the
// natural dedup key and is pre-generated so the tracking beacon can carry it.
type EmailLog struct {
	ID             string     `json:"id"`
	CampaignID     string     `json:"campaign_id"`
	RecipientID    string     `json:"recipient_id"`
	RecipientEmail string     `json:"recipient_email"`
	SentAt         time.Time  `json:"sent_at"`
	Method         SendMethod `json:"method"`
	DatasetID      string     `json:"dataset_id,omitempty"`
	OpenedAt       *time.Time `json:"opened_at,omitempty"`
	OpenCount      int        `json:"open_count,omitempty"`
	LastOpenedAt   *time.Time `json:"last_opened_at,omitempty"`
}

type Campaign struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"created_at"`
	Logs      []EmailLog `json:"logs"`
}

// SnapshotEdits captures the per-recipient fields a user can edit. Attachments
// are not serializable and sent status is recomputed from campaign logs, so
// neither is ever part of a snapshot.
type SnapshotEdits struct {
	Subject      string `json:"subject"`
	Body         string `json:"body"`
	CcBoss       bool   `json:"cc_boss"`
	CcFixed      bool   `json:"cc_fixed"`
	AdditionalCc string `json:"additional_cc"`
}

type DraftStep string

const (
	StepSelect  DraftStep = "select"
	StepCompose DraftStep = "compose"
)

// DraftSnapshot is the single persisted record of in-progress work, written
// debounced and overwritten in place.
type DraftSnapshot struct {
	Step        DraftStep                `json:"step"`
	SelectedIDs []string                 `json:"selected_ids"`
	CampaignID  string                   `json:"campaign_id"`
	FixedCc     string                   `json:"fixed_cc"`
	Edits       map[string]SnapshotEdits `json:"edits"`
	SavedAt     time.Time                `json:"saved_at"`
}
