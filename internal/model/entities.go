// Package model defines the business entities managed by lawdesk
// (clients, cases, stages, hearing sessions, tasks, appointments,
// accounting entries, invoices, documents), their wire encoding, and
// the derived views the UI reads. Entities form a strict containment
// tree: a Client owns Cases, a Case owns Stages and Documents, a
// Stage owns Sessions; Clients also own AccountingEntries and
// Invoices, and an Invoice owns InvoiceItems.
package model

import (
	"time"

	"github.com/google/uuid"
)

// NewID returns a fresh client-generated entity id. Ids are assigned
// at creation, before the entity has ever been pushed, so offline
// creation never blocks on the remote store.
func NewID() string {
	return uuid.NewString()
}

// EntryKind distinguishes income from expense accounting entries.
type EntryKind string

const (
	EntryIncome  EntryKind = "income"
	EntryExpense EntryKind = "expense"
)

// DocState is the client-local replication state of a document's file
// content. It is never authoritative remotely and must survive a pull
// merge unchanged.
type DocState string

const (
	DocPendingUpload   DocState = "pending_upload"
	DocPendingDownload DocState = "pending_download"
	DocDownloading     DocState = "downloading"
	DocSynced          DocState = "synced"
	DocError           DocState = "error"
)

// Client is the root of the containment tree.
type Client struct {
	ID        string
	Name      string
	Phone     string
	Email     string
	Address   string
	Notes     string
	UpdatedAt time.Time
}

// Case is a legal matter belonging to a Client.
type Case struct {
	ID        string
	ClientID  string
	Title     string
	Number    string // court docket number
	Court     string
	Category  string
	Status    string
	Notes     string
	UpdatedAt time.Time
}

// Stage is one procedural phase of a Case (first instance, appeal,
// cassation). DecisionDate is nil while the stage is still open.
type Stage struct {
	ID           string
	CaseID       string
	Name         string
	Court        string
	CaseNumber   string
	ClientRole   string
	DecisionDate *time.Time
	Decision     string
	Notes        string
	UpdatedAt    time.Time
}

// Session is a scheduled hearing within a Stage. Date is load-bearing:
// a session that cannot be placed in time is meaningless and is
// dropped at decode rather than coerced.
type Session struct {
	ID          string
	StageID     string
	Date        time.Time
	Postponed   bool
	PostponedTo *time.Time
	Reason      string
	Notes       string
	UpdatedAt   time.Time
}

// AccountingEntry is a dated income or expense line for a Client.
type AccountingEntry struct {
	ID          string
	ClientID    string
	Date        time.Time // load-bearing
	Amount      float64
	Kind        EntryKind
	Description string
	UpdatedAt   time.Time
}

// Invoice groups billable items for a Client.
type Invoice struct {
	ID        string
	ClientID  string
	Number    string
	Date      time.Time
	Status    string
	Notes     string
	UpdatedAt time.Time
}

// InvoiceItem is one line of an Invoice.
type InvoiceItem struct {
	ID          string
	InvoiceID   string
	Description string
	Quantity    float64
	UnitPrice   float64
	UpdatedAt   time.Time
}

// AdminTask is a free-standing office task. Due is load-bearing.
type AdminTask struct {
	ID        string
	Title     string
	Due       time.Time
	Done      bool
	Notes     string
	UpdatedAt time.Time
}

// Appointment is a free-standing calendar entry. At is load-bearing.
type Appointment struct {
	ID        string
	Title     string
	At        time.Time
	Location  string
	Notes     string
	UpdatedAt time.Time
}

// Assistant is a name tag used to attribute work; it carries no
// nested state.
type Assistant struct {
	ID        string
	Name      string
	UpdatedAt time.Time
}

// CaseDocument is the metadata record for a file attached to a Case.
// The file content itself (the blob) replicates independently through
// the blob controller; LocalState tracks that replication.
type CaseDocument struct {
	ID          string
	CaseID      string
	OwnerID     string
	Name        string
	MimeType    string
	Size        int64
	AddedAt     time.Time
	StoragePath string
	LocalState  DocState
	UpdatedAt   time.Time
}
