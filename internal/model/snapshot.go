package model

// Table names as they exist in both the local store and the remote
// schema. Push levels and the schema probe iterate these.
const (
	TableClients     = "clients"
	TableAssistants  = "assistants"
	TableAdminTasks  = "admin_tasks"
	TableAppts       = "appointments"
	TableCases       = "cases"
	TableEntries     = "accounting_entries"
	TableStages      = "stages"
	TableInvoices    = "invoices"
	TableSessions    = "sessions"
	TableItems       = "invoice_items"
	TableDocuments   = "documents"
)

// AllTables lists every remote table the engine reads and writes, in
// dependency order (ancestors first). The schema probe checks each.
var AllTables = []string{
	TableClients, TableAssistants, TableAdminTasks, TableAppts,
	TableCases, TableEntries,
	TableStages, TableInvoices,
	TableSessions, TableItems,
	TableDocuments,
}

// IDSet is a set of entity ids.
type IDSet map[string]struct{}

// Add inserts id into the set, allocating the set on first use via
// the returned map. Callers assign the result back.
func (s IDSet) Add(id string) IDSet {
	if s == nil {
		s = make(IDSet)
	}
	s[id] = struct{}{}
	return s
}

// Has reports membership.
func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// DeletedIDs is the tombstone ledger: one id set per entity type. An
// id enters the ledger the moment the entity is deleted locally and
// leaves it only once the remote store has confirmed the deletion.
// DocumentPaths additionally remembers each tombstoned document's
// storage path so its blob can be removed from object storage.
type DeletedIDs struct {
	Clients       IDSet
	Cases         IDSet
	Stages        IDSet
	Sessions      IDSet
	Entries       IDSet
	Invoices      IDSet
	InvoiceItems  IDSet
	AdminTasks    IDSet
	Appointments  IDSet
	Assistants    IDSet
	Documents     IDSet
	DocumentPaths map[string]string // document id -> storage path ("" if never uploaded)
}

// ByTable returns the id set for the given table name, or nil for an
// unknown table.
func (d *DeletedIDs) ByTable(table string) IDSet {
	switch table {
	case TableClients:
		return d.Clients
	case TableCases:
		return d.Cases
	case TableStages:
		return d.Stages
	case TableSessions:
		return d.Sessions
	case TableEntries:
		return d.Entries
	case TableInvoices:
		return d.Invoices
	case TableItems:
		return d.InvoiceItems
	case TableAdminTasks:
		return d.AdminTasks
	case TableAppts:
		return d.Appointments
	case TableAssistants:
		return d.Assistants
	case TableDocuments:
		return d.Documents
	default:
		return nil
	}
}

// Record adds a tombstone for the given table, allocating the id set
// on first use. Unknown tables are ignored.
func (d *DeletedIDs) Record(table, id string) {
	set := d.ByTable(table)
	if set == nil {
		switch table {
		case TableClients, TableCases, TableStages, TableSessions,
			TableEntries, TableInvoices, TableItems, TableAdminTasks,
			TableAppts, TableAssistants, TableDocuments:
			set = make(IDSet)
			d.setByTable(table, set)
		default:
			return
		}
	}
	set[id] = struct{}{}
}

// Purge removes confirmed-deleted ids from the ledger. Called by the
// push engine only after the remote store acknowledged the deletes.
func (d *DeletedIDs) Purge(table string, ids []string) {
	set := d.ByTable(table)
	for _, id := range ids {
		delete(set, id)
		if table == TableDocuments {
			delete(d.DocumentPaths, id)
		}
	}
}

// Empty reports whether the ledger holds no tombstones at all.
func (d *DeletedIDs) Empty() bool {
	for _, t := range AllTables {
		if len(d.ByTable(t)) > 0 {
			return false
		}
	}
	return true
}

// Snapshot is the full in-memory entity state for one owner: flat
// maps keyed by id, with containment expressed through parent-id
// fields on the entities themselves. Derived views (AllSessions and
// friends) join across these maps instead of walking a nested tree.
type Snapshot struct {
	Clients      map[string]*Client
	Cases        map[string]*Case
	Stages       map[string]*Stage
	Sessions     map[string]*Session
	Entries      map[string]*AccountingEntry
	Invoices     map[string]*Invoice
	InvoiceItems map[string]*InvoiceItem
	AdminTasks   map[string]*AdminTask
	Appointments map[string]*Appointment
	Assistants   map[string]*Assistant
	Documents    map[string]*CaseDocument

	Deleted DeletedIDs
}

// NewSnapshot returns an empty snapshot with all maps allocated.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Clients:      make(map[string]*Client),
		Cases:        make(map[string]*Case),
		Stages:       make(map[string]*Stage),
		Sessions:     make(map[string]*Session),
		Entries:      make(map[string]*AccountingEntry),
		Invoices:     make(map[string]*Invoice),
		InvoiceItems: make(map[string]*InvoiceItem),
		AdminTasks:   make(map[string]*AdminTask),
		Appointments: make(map[string]*Appointment),
		Assistants:   make(map[string]*Assistant),
		Documents:    make(map[string]*CaseDocument),
	}
}

// Empty reports whether the snapshot holds no entities. Tombstones do
// not count: a snapshot can be empty of entities while still owing
// deletions to the remote store.
func (s *Snapshot) Empty() bool {
	return len(s.Clients) == 0 && len(s.Cases) == 0 && len(s.Stages) == 0 &&
		len(s.Sessions) == 0 && len(s.Entries) == 0 && len(s.Invoices) == 0 &&
		len(s.InvoiceItems) == 0 && len(s.AdminTasks) == 0 &&
		len(s.Appointments) == 0 && len(s.Assistants) == 0 &&
		len(s.Documents) == 0
}

// EntityCount returns the total number of entities across all types.
func (s *Snapshot) EntityCount() int {
	return len(s.Clients) + len(s.Cases) + len(s.Stages) + len(s.Sessions) +
		len(s.Entries) + len(s.Invoices) + len(s.InvoiceItems) +
		len(s.AdminTasks) + len(s.Appointments) + len(s.Assistants) +
		len(s.Documents)
}

// Clone returns a deep copy of the snapshot. The engines hand clones
// to the debounced saver so a save in flight never races with setter
// mutations. Entity structs are copied by value; *time.Time fields
// share their backing value, which is never mutated in place.
func (s *Snapshot) Clone() *Snapshot {
	c := NewSnapshot()
	for id, v := range s.Clients {
		cp := *v
		c.Clients[id] = &cp
	}
	for id, v := range s.Cases {
		cp := *v
		c.Cases[id] = &cp
	}
	for id, v := range s.Stages {
		cp := *v
		c.Stages[id] = &cp
	}
	for id, v := range s.Sessions {
		cp := *v
		c.Sessions[id] = &cp
	}
	for id, v := range s.Entries {
		cp := *v
		c.Entries[id] = &cp
	}
	for id, v := range s.Invoices {
		cp := *v
		c.Invoices[id] = &cp
	}
	for id, v := range s.InvoiceItems {
		cp := *v
		c.InvoiceItems[id] = &cp
	}
	for id, v := range s.AdminTasks {
		cp := *v
		c.AdminTasks[id] = &cp
	}
	for id, v := range s.Appointments {
		cp := *v
		c.Appointments[id] = &cp
	}
	for id, v := range s.Assistants {
		cp := *v
		c.Assistants[id] = &cp
	}
	for id, v := range s.Documents {
		cp := *v
		c.Documents[id] = &cp
	}

	for _, t := range AllTables {
		for id := range s.Deleted.ByTable(t) {
			c.Deleted.Record(t, id)
		}
	}
	if s.Deleted.DocumentPaths != nil {
		c.Deleted.DocumentPaths = make(map[string]string, len(s.Deleted.DocumentPaths))
		for id, p := range s.Deleted.DocumentPaths {
			c.Deleted.DocumentPaths[id] = p
		}
	}

	return c
}

// setByTable stores the id set for the given table name.
func (d *DeletedIDs) setByTable(table string, set IDSet) {
	switch table {
	case TableClients:
		d.Clients = set
	case TableCases:
		d.Cases = set
	case TableStages:
		d.Stages = set
	case TableSessions:
		d.Sessions = set
	case TableEntries:
		d.Entries = set
	case TableInvoices:
		d.Invoices = set
	case TableItems:
		d.InvoiceItems = set
	case TableAdminTasks:
		d.AdminTasks = set
	case TableAppts:
		d.Appointments = set
	case TableAssistants:
		d.Assistants = set
	case TableDocuments:
		d.Documents = set
	}
}

// DeleteClient removes the client and every descendant (cases,
// stages, sessions, accounting entries, invoices, invoice items,
// documents) from the snapshot, recording a tombstone for each
// removed id. Removal from memory is immediate; the tombstones hold
// the remote-deletion intent until a push confirms it.
func (s *Snapshot) DeleteClient(id string) {
	if _, ok := s.Clients[id]; !ok {
		return
	}
	delete(s.Clients, id)
	s.Deleted.Clients = s.Deleted.Clients.Add(id)

	for caseID, c := range s.Cases {
		if c.ClientID == id {
			s.DeleteCase(caseID)
		}
	}
	for eid, e := range s.Entries {
		if e.ClientID == id {
			delete(s.Entries, eid)
			s.Deleted.Entries = s.Deleted.Entries.Add(eid)
		}
	}
	for invID, inv := range s.Invoices {
		if inv.ClientID == id {
			s.DeleteInvoice(invID)
		}
	}
}

// DeleteCase removes a case and its stages, sessions, and documents,
// tombstoning each.
func (s *Snapshot) DeleteCase(id string) {
	if _, ok := s.Cases[id]; !ok {
		return
	}
	delete(s.Cases, id)
	s.Deleted.Cases = s.Deleted.Cases.Add(id)

	for stageID, st := range s.Stages {
		if st.CaseID == id {
			s.DeleteStage(stageID)
		}
	}
	for docID, doc := range s.Documents {
		if doc.CaseID == id {
			s.DeleteDocument(docID)
		}
	}
}

// DeleteStage removes a stage and its sessions, tombstoning each.
func (s *Snapshot) DeleteStage(id string) {
	if _, ok := s.Stages[id]; !ok {
		return
	}
	delete(s.Stages, id)
	s.Deleted.Stages = s.Deleted.Stages.Add(id)

	for sessID, sess := range s.Sessions {
		if sess.StageID == id {
			delete(s.Sessions, sessID)
			s.Deleted.Sessions = s.Deleted.Sessions.Add(sessID)
		}
	}
}

// DeleteSession removes a single session, tombstoning it.
func (s *Snapshot) DeleteSession(id string) {
	if _, ok := s.Sessions[id]; !ok {
		return
	}
	delete(s.Sessions, id)
	s.Deleted.Sessions = s.Deleted.Sessions.Add(id)
}

// DeleteInvoice removes an invoice and its items, tombstoning each.
func (s *Snapshot) DeleteInvoice(id string) {
	if _, ok := s.Invoices[id]; !ok {
		return
	}
	delete(s.Invoices, id)
	s.Deleted.Invoices = s.Deleted.Invoices.Add(id)

	for itemID, it := range s.InvoiceItems {
		if it.InvoiceID == id {
			delete(s.InvoiceItems, itemID)
			s.Deleted.InvoiceItems = s.Deleted.InvoiceItems.Add(itemID)
		}
	}
}

// DeleteDocument removes a document's metadata, tombstoning its id
// and remembering its storage path for blob removal. The blob itself
// is deleted by the caller (local blob store now, remote object
// storage at the next push).
func (s *Snapshot) DeleteDocument(id string) {
	doc, ok := s.Documents[id]
	if !ok {
		return
	}
	delete(s.Documents, id)
	s.Deleted.Documents = s.Deleted.Documents.Add(id)
	if s.Deleted.DocumentPaths == nil {
		s.Deleted.DocumentPaths = make(map[string]string)
	}
	s.Deleted.DocumentPaths[id] = doc.StoragePath
}
