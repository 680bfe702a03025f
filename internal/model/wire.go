package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrValidation is the sentinel wrapped by every decode failure.
// Use errors.Is(err, model.ErrValidation) to check.
var ErrValidation = errors.New("model: invalid record")

// ValidationError reports a record that could not be decoded. The
// pull engine drops such records with a warning; they are never
// fatal to the sync cycle.
type ValidationError struct {
	Table string
	ID    string
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("model: %s record %q: bad %s: %v", e.Table, e.ID, e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// timeLayouts lists the wire formats accepted for timestamps, most
// specific first. The backend emits RFC 3339; date-only values come
// from records created before times were tracked.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseWireTime parses a wire timestamp. Empty input is an error;
// callers decide whether the field is load-bearing.
func parseWireTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty")
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable time %q", s)
}

// parseOptionalTime parses a nullable timestamp. Empty or null input
// yields nil without error.
func parseOptionalTime(s *string) (*time.Time, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	t, err := parseWireTime(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// parseAuditTime parses the cosmetic updated_at field. Unparseable
// values coerce to the zero time: the field is display-only and a
// bad value never justifies dropping the record.
func parseAuditTime(s string) time.Time {
	t, err := parseWireTime(s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func fmtOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := fmtTime(*t)
	return &s
}

// Wire rows. Every table carries owner_id so the remote store can be
// filtered per principal; owner_id is attached at encode time and is
// not part of the domain structs (except CaseDocument, which exposes
// it to the blob path builder).

type clientRow struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	Name      string `json:"name"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	Address   string `json:"address,omitempty"`
	Notes     string `json:"notes,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

type caseRow struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	ClientID  string `json:"client_id"`
	Title     string `json:"title"`
	Number    string `json:"number,omitempty"`
	Court     string `json:"court,omitempty"`
	Category  string `json:"category,omitempty"`
	Status    string `json:"status,omitempty"`
	Notes     string `json:"notes,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

type stageRow struct {
	ID           string  `json:"id"`
	OwnerID      string  `json:"owner_id"`
	CaseID       string  `json:"case_id"`
	Name         string  `json:"name"`
	Court        string  `json:"court,omitempty"`
	CaseNumber   string  `json:"case_number,omitempty"`
	ClientRole   string  `json:"client_role,omitempty"`
	DecisionDate *string `json:"decision_date,omitempty"`
	Decision     string  `json:"decision,omitempty"`
	Notes        string  `json:"notes,omitempty"`
	UpdatedAt    string  `json:"updated_at,omitempty"`
}

type sessionRow struct {
	ID          string  `json:"id"`
	OwnerID     string  `json:"owner_id"`
	StageID     string  `json:"stage_id"`
	Date        string  `json:"session_date"`
	Postponed   bool    `json:"postponed,omitempty"`
	PostponedTo *string `json:"postponed_to,omitempty"`
	Reason      string  `json:"reason,omitempty"`
	Notes       string  `json:"notes,omitempty"`
	UpdatedAt   string  `json:"updated_at,omitempty"`
}

type entryRow struct {
	ID          string  `json:"id"`
	OwnerID     string  `json:"owner_id"`
	ClientID    string  `json:"client_id"`
	Date        string  `json:"entry_date"`
	Amount      float64 `json:"amount"`
	Kind        string  `json:"kind"`
	Description string  `json:"description,omitempty"`
	UpdatedAt   string  `json:"updated_at,omitempty"`
}

type invoiceRow struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	ClientID  string `json:"client_id"`
	Number    string `json:"number,omitempty"`
	Date      string `json:"invoice_date,omitempty"`
	Status    string `json:"status,omitempty"`
	Notes     string `json:"notes,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

type invoiceItemRow struct {
	ID          string  `json:"id"`
	OwnerID     string  `json:"owner_id"`
	InvoiceID   string  `json:"invoice_id"`
	Description string  `json:"description,omitempty"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	UpdatedAt   string  `json:"updated_at,omitempty"`
}

type adminTaskRow struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	Title     string `json:"title"`
	Due       string `json:"due_date"`
	Done      bool   `json:"done,omitempty"`
	Notes     string `json:"notes,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

type appointmentRow struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	Title     string `json:"title"`
	At        string `json:"scheduled_at"`
	Location  string `json:"location,omitempty"`
	Notes     string `json:"notes,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

type assistantRow struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	Name      string `json:"name"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

type documentRow struct {
	ID          string `json:"id"`
	OwnerID     string `json:"owner_id"`
	CaseID      string `json:"case_id"`
	Name        string `json:"name"`
	MimeType    string `json:"mime_type,omitempty"`
	Size        int64  `json:"size,omitempty"`
	AddedAt     string `json:"added_at,omitempty"`
	StoragePath string `json:"storage_path,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// wireID extracts the id field for error reporting before a full
// decode is attempted.
func wireID(data json.RawMessage) string {
	var probe struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(data, &probe)
	return probe.ID
}

func unmarshalRow(table string, data json.RawMessage, dst any) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return &ValidationError{Table: table, ID: wireID(data), Field: "json", Err: err}
	}
	return nil
}

// EncodeClient converts a Client to its wire row for the given owner.
func EncodeClient(c *Client, ownerID string) any {
	return clientRow{
		ID: c.ID, OwnerID: ownerID, Name: c.Name, Phone: c.Phone,
		Email: c.Email, Address: c.Address, Notes: c.Notes,
		UpdatedAt: fmtTime(c.UpdatedAt),
	}
}

// DecodeClient parses a remote client row. Clients have no
// load-bearing date, so only structurally broken JSON fails.
func DecodeClient(data json.RawMessage) (*Client, error) {
	var r clientRow
	if err := unmarshalRow(TableClients, data, &r); err != nil {
		return nil, err
	}
	if r.ID == "" {
		return nil, &ValidationError{Table: TableClients, Field: "id", Err: errors.New("missing")}
	}
	return &Client{
		ID: r.ID, Name: r.Name, Phone: r.Phone, Email: r.Email,
		Address: r.Address, Notes: r.Notes,
		UpdatedAt: parseAuditTime(r.UpdatedAt),
	}, nil
}

func EncodeCase(c *Case, ownerID string) any {
	return caseRow{
		ID: c.ID, OwnerID: ownerID, ClientID: c.ClientID, Title: c.Title,
		Number: c.Number, Court: c.Court, Category: c.Category,
		Status: c.Status, Notes: c.Notes, UpdatedAt: fmtTime(c.UpdatedAt),
	}
}

func DecodeCase(data json.RawMessage) (*Case, error) {
	var r caseRow
	if err := unmarshalRow(TableCases, data, &r); err != nil {
		return nil, err
	}
	if r.ID == "" {
		return nil, &ValidationError{Table: TableCases, Field: "id", Err: errors.New("missing")}
	}
	if r.ClientID == "" {
		return nil, &ValidationError{Table: TableCases, ID: r.ID, Field: "client_id", Err: errors.New("missing")}
	}
	return &Case{
		ID: r.ID, ClientID: r.ClientID, Title: r.Title, Number: r.Number,
		Court: r.Court, Category: r.Category, Status: r.Status,
		Notes: r.Notes, UpdatedAt: parseAuditTime(r.UpdatedAt),
	}, nil
}

func EncodeStage(s *Stage, ownerID string) any {
	return stageRow{
		ID: s.ID, OwnerID: ownerID, CaseID: s.CaseID, Name: s.Name,
		Court: s.Court, CaseNumber: s.CaseNumber, ClientRole: s.ClientRole,
		DecisionDate: fmtOptionalTime(s.DecisionDate), Decision: s.Decision,
		Notes: s.Notes, UpdatedAt: fmtTime(s.UpdatedAt),
	}
}

func DecodeStage(data json.RawMessage) (*Stage, error) {
	var r stageRow
	if err := unmarshalRow(TableStages, data, &r); err != nil {
		return nil, err
	}
	if r.ID == "" {
		return nil, &ValidationError{Table: TableStages, Field: "id", Err: errors.New("missing")}
	}
	if r.CaseID == "" {
		return nil, &ValidationError{Table: TableStages, ID: r.ID, Field: "case_id", Err: errors.New("missing")}
	}
	// A broken decision date coerces to nil (stage still open) rather
	// than dropping the stage: the stage itself is placeable without it.
	decision, err := parseOptionalTime(r.DecisionDate)
	if err != nil {
		decision = nil
	}
	return &Stage{
		ID: r.ID, CaseID: r.CaseID, Name: r.Name, Court: r.Court,
		CaseNumber: r.CaseNumber, ClientRole: r.ClientRole,
		DecisionDate: decision, Decision: r.Decision, Notes: r.Notes,
		UpdatedAt: parseAuditTime(r.UpdatedAt),
	}, nil
}

func EncodeSession(s *Session, ownerID string) any {
	return sessionRow{
		ID: s.ID, OwnerID: ownerID, StageID: s.StageID,
		Date: fmtTime(s.Date), Postponed: s.Postponed,
		PostponedTo: fmtOptionalTime(s.PostponedTo), Reason: s.Reason,
		Notes: s.Notes, UpdatedAt: fmtTime(s.UpdatedAt),
	}
}

// DecodeSession parses a remote session row. The session date is
// load-bearing: an unparseable date makes the record undroppable
// into any calendar view, so it is rejected for the caller to drop.
func DecodeSession(data json.RawMessage) (*Session, error) {
	var r sessionRow
	if err := unmarshalRow(TableSessions, data, &r); err != nil {
		return nil, err
	}
	if r.ID == "" {
		return nil, &ValidationError{Table: TableSessions, Field: "id", Err: errors.New("missing")}
	}
	if r.StageID == "" {
		return nil, &ValidationError{Table: TableSessions, ID: r.ID, Field: "stage_id", Err: errors.New("missing")}
	}
	date, err := parseWireTime(r.Date)
	if err != nil {
		return nil, &ValidationError{Table: TableSessions, ID: r.ID, Field: "session_date", Err: err}
	}
	postponedTo, err := parseOptionalTime(r.PostponedTo)
	if err != nil {
		postponedTo = nil
	}
	return &Session{
		ID: r.ID, StageID: r.StageID, Date: date, Postponed: r.Postponed,
		PostponedTo: postponedTo, Reason: r.Reason, Notes: r.Notes,
		UpdatedAt: parseAuditTime(r.UpdatedAt),
	}, nil
}

func EncodeEntry(e *AccountingEntry, ownerID string) any {
	return entryRow{
		ID: e.ID, OwnerID: ownerID, ClientID: e.ClientID,
		Date: fmtTime(e.Date), Amount: e.Amount, Kind: string(e.Kind),
		Description: e.Description, UpdatedAt: fmtTime(e.UpdatedAt),
	}
}

func DecodeEntry(data json.RawMessage) (*AccountingEntry, error) {
	var r entryRow
	if err := unmarshalRow(TableEntries, data, &r); err != nil {
		return nil, err
	}
	if r.ID == "" {
		return nil, &ValidationError{Table: TableEntries, Field: "id", Err: errors.New("missing")}
	}
	date, err := parseWireTime(r.Date)
	if err != nil {
		return nil, &ValidationError{Table: TableEntries, ID: r.ID, Field: "entry_date", Err: err}
	}
	kind := EntryKind(r.Kind)
	if kind != EntryIncome && kind != EntryExpense {
		kind = EntryExpense
	}
	return &AccountingEntry{
		ID: r.ID, ClientID: r.ClientID, Date: date, Amount: r.Amount,
		Kind: kind, Description: r.Description,
		UpdatedAt: parseAuditTime(r.UpdatedAt),
	}, nil
}

func EncodeInvoice(i *Invoice, ownerID string) any {
	return invoiceRow{
		ID: i.ID, OwnerID: ownerID, ClientID: i.ClientID, Number: i.Number,
		Date: fmtTime(i.Date), Status: i.Status, Notes: i.Notes,
		UpdatedAt: fmtTime(i.UpdatedAt),
	}
}

func DecodeInvoice(data json.RawMessage) (*Invoice, error) {
	var r invoiceRow
	if err := unmarshalRow(TableInvoices, data, &r); err != nil {
		return nil, err
	}
	if r.ID == "" {
		return nil, &ValidationError{Table: TableInvoices, Field: "id", Err: errors.New("missing")}
	}
	if r.ClientID == "" {
		return nil, &ValidationError{Table: TableInvoices, ID: r.ID, Field: "client_id", Err: errors.New("missing")}
	}
	// Invoice dates are cosmetic (display ordering only).
	date, err := parseWireTime(r.Date)
	if err != nil {
		date = time.Time{}
	}
	return &Invoice{
		ID: r.ID, ClientID: r.ClientID, Number: r.Number, Date: date,
		Status: r.Status, Notes: r.Notes,
		UpdatedAt: parseAuditTime(r.UpdatedAt),
	}, nil
}

func EncodeInvoiceItem(i *InvoiceItem, ownerID string) any {
	return invoiceItemRow{
		ID: i.ID, OwnerID: ownerID, InvoiceID: i.InvoiceID,
		Description: i.Description, Quantity: i.Quantity,
		UnitPrice: i.UnitPrice, UpdatedAt: fmtTime(i.UpdatedAt),
	}
}

func DecodeInvoiceItem(data json.RawMessage) (*InvoiceItem, error) {
	var r invoiceItemRow
	if err := unmarshalRow(TableItems, data, &r); err != nil {
		return nil, err
	}
	if r.ID == "" {
		return nil, &ValidationError{Table: TableItems, Field: "id", Err: errors.New("missing")}
	}
	if r.InvoiceID == "" {
		return nil, &ValidationError{Table: TableItems, ID: r.ID, Field: "invoice_id", Err: errors.New("missing")}
	}
	return &InvoiceItem{
		ID: r.ID, InvoiceID: r.InvoiceID, Description: r.Description,
		Quantity: r.Quantity, UnitPrice: r.UnitPrice,
		UpdatedAt: parseAuditTime(r.UpdatedAt),
	}, nil
}

func EncodeAdminTask(t *AdminTask, ownerID string) any {
	return adminTaskRow{
		ID: t.ID, OwnerID: ownerID, Title: t.Title, Due: fmtTime(t.Due),
		Done: t.Done, Notes: t.Notes, UpdatedAt: fmtTime(t.UpdatedAt),
	}
}

func DecodeAdminTask(data json.RawMessage) (*AdminTask, error) {
	var r adminTaskRow
	if err := unmarshalRow(TableAdminTasks, data, &r); err != nil {
		return nil, err
	}
	if r.ID == "" {
		return nil, &ValidationError{Table: TableAdminTasks, Field: "id", Err: errors.New("missing")}
	}
	due, err := parseWireTime(r.Due)
	if err != nil {
		return nil, &ValidationError{Table: TableAdminTasks, ID: r.ID, Field: "due_date", Err: err}
	}
	return &AdminTask{
		ID: r.ID, Title: r.Title, Due: due, Done: r.Done, Notes: r.Notes,
		UpdatedAt: parseAuditTime(r.UpdatedAt),
	}, nil
}

func EncodeAppointment(a *Appointment, ownerID string) any {
	return appointmentRow{
		ID: a.ID, OwnerID: ownerID, Title: a.Title, At: fmtTime(a.At),
		Location: a.Location, Notes: a.Notes, UpdatedAt: fmtTime(a.UpdatedAt),
	}
}

func DecodeAppointment(data json.RawMessage) (*Appointment, error) {
	var r appointmentRow
	if err := unmarshalRow(TableAppts, data, &r); err != nil {
		return nil, err
	}
	if r.ID == "" {
		return nil, &ValidationError{Table: TableAppts, Field: "id", Err: errors.New("missing")}
	}
	at, err := parseWireTime(r.At)
	if err != nil {
		return nil, &ValidationError{Table: TableAppts, ID: r.ID, Field: "scheduled_at", Err: err}
	}
	return &Appointment{
		ID: r.ID, Title: r.Title, At: at, Location: r.Location,
		Notes: r.Notes, UpdatedAt: parseAuditTime(r.UpdatedAt),
	}, nil
}

func EncodeAssistant(a *Assistant, ownerID string) any {
	return assistantRow{
		ID: a.ID, OwnerID: ownerID, Name: a.Name,
		UpdatedAt: fmtTime(a.UpdatedAt),
	}
}

func DecodeAssistant(data json.RawMessage) (*Assistant, error) {
	var r assistantRow
	if err := unmarshalRow(TableAssistants, data, &r); err != nil {
		return nil, err
	}
	if r.ID == "" {
		return nil, &ValidationError{Table: TableAssistants, Field: "id", Err: errors.New("missing")}
	}
	return &Assistant{
		ID: r.ID, Name: r.Name, UpdatedAt: parseAuditTime(r.UpdatedAt),
	}, nil
}

// EncodeDocument converts a document's metadata to its wire row.
// LocalState is deliberately absent: replication progress is
// client-local and never authoritative remotely.
func EncodeDocument(d *CaseDocument, ownerID string) any {
	return documentRow{
		ID: d.ID, OwnerID: ownerID, CaseID: d.CaseID, Name: d.Name,
		MimeType: d.MimeType, Size: d.Size, AddedAt: fmtTime(d.AddedAt),
		StoragePath: d.StoragePath, UpdatedAt: fmtTime(d.UpdatedAt),
	}
}

// DecodeDocument parses a remote document row. LocalState is left
// empty; the pull engine's three-way merge assigns it.
func DecodeDocument(data json.RawMessage) (*CaseDocument, error) {
	var r documentRow
	if err := unmarshalRow(TableDocuments, data, &r); err != nil {
		return nil, err
	}
	if r.ID == "" {
		return nil, &ValidationError{Table: TableDocuments, Field: "id", Err: errors.New("missing")}
	}
	if r.CaseID == "" {
		return nil, &ValidationError{Table: TableDocuments, ID: r.ID, Field: "case_id", Err: errors.New("missing")}
	}
	added, err := parseWireTime(r.AddedAt)
	if err != nil {
		added = time.Time{}
	}
	return &CaseDocument{
		ID: r.ID, CaseID: r.CaseID, OwnerID: r.OwnerID, Name: r.Name,
		MimeType: r.MimeType, Size: r.Size, AddedAt: added,
		StoragePath: r.StoragePath,
		UpdatedAt:   parseAuditTime(r.UpdatedAt),
	}, nil
}
