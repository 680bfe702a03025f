package sync

import (
	"github.com/lawdeskhq/lawdesk/internal/model"
)

// Typed setters, one pair per entity collection. Every mutation goes
// through mutate, which marks dirty, schedules the debounced save,
// and arms the auto-sync trigger. New entities get their id from
// model.NewID before the first call; Put overwrites on id match.

// PutClient inserts or replaces a client.
func (s *Service) PutClient(c *model.Client) {
	if c.ID == "" {
		c.ID = model.NewID()
	}
	c.UpdatedAt = s.now()
	s.mutate(func(snap *model.Snapshot) { snap.Clients[c.ID] = c })
}

// DeleteClient removes a client and cascades tombstones over every
// descendant: cases, stages, sessions, invoices, invoice items,
// accounting entries, and documents.
func (s *Service) DeleteClient(id string) {
	s.mutate(func(snap *model.Snapshot) { snap.DeleteClient(id) })
}

// PutCase inserts or replaces a case.
func (s *Service) PutCase(c *model.Case) {
	if c.ID == "" {
		c.ID = model.NewID()
	}
	c.UpdatedAt = s.now()
	s.mutate(func(snap *model.Snapshot) { snap.Cases[c.ID] = c })
}

// DeleteCase removes a case and cascades over stages, sessions, and
// documents.
func (s *Service) DeleteCase(id string) {
	s.mutate(func(snap *model.Snapshot) { snap.DeleteCase(id) })
}

// PutStage inserts or replaces a stage.
func (s *Service) PutStage(st *model.Stage) {
	if st.ID == "" {
		st.ID = model.NewID()
	}
	st.UpdatedAt = s.now()
	s.mutate(func(snap *model.Snapshot) { snap.Stages[st.ID] = st })
}

// DeleteStage removes a stage and cascades over its sessions.
func (s *Service) DeleteStage(id string) {
	s.mutate(func(snap *model.Snapshot) { snap.DeleteStage(id) })
}

// PutSession inserts or replaces a session.
func (s *Service) PutSession(sess *model.Session) {
	if sess.ID == "" {
		sess.ID = model.NewID()
	}
	sess.UpdatedAt = s.now()
	s.mutate(func(snap *model.Snapshot) { snap.Sessions[sess.ID] = sess })
}

// DeleteSession removes a single session.
func (s *Service) DeleteSession(id string) {
	s.mutate(func(snap *model.Snapshot) { snap.DeleteSession(id) })
}

// PutEntry inserts or replaces an accounting entry.
func (s *Service) PutEntry(e *model.AccountingEntry) {
	if e.ID == "" {
		e.ID = model.NewID()
	}
	e.UpdatedAt = s.now()
	s.mutate(func(snap *model.Snapshot) { snap.Entries[e.ID] = e })
}

// DeleteEntry removes an accounting entry.
func (s *Service) DeleteEntry(id string) {
	s.mutate(func(snap *model.Snapshot) {
		if _, ok := snap.Entries[id]; ok {
			delete(snap.Entries, id)
			snap.Deleted.Record(model.TableEntries, id)
		}
	})
}

// PutInvoice inserts or replaces an invoice.
func (s *Service) PutInvoice(inv *model.Invoice) {
	if inv.ID == "" {
		inv.ID = model.NewID()
	}
	inv.UpdatedAt = s.now()
	s.mutate(func(snap *model.Snapshot) { snap.Invoices[inv.ID] = inv })
}

// DeleteInvoice removes an invoice and cascades over its items.
func (s *Service) DeleteInvoice(id string) {
	s.mutate(func(snap *model.Snapshot) { snap.DeleteInvoice(id) })
}

// PutInvoiceItem inserts or replaces an invoice item.
func (s *Service) PutInvoiceItem(it *model.InvoiceItem) {
	if it.ID == "" {
		it.ID = model.NewID()
	}
	it.UpdatedAt = s.now()
	s.mutate(func(snap *model.Snapshot) { snap.InvoiceItems[it.ID] = it })
}

// DeleteInvoiceItem removes an invoice item.
func (s *Service) DeleteInvoiceItem(id string) {
	s.mutate(func(snap *model.Snapshot) {
		if _, ok := snap.InvoiceItems[id]; ok {
			delete(snap.InvoiceItems, id)
			snap.Deleted.Record(model.TableItems, id)
		}
	})
}

// PutAdminTask inserts or replaces an admin task.
func (s *Service) PutAdminTask(t *model.AdminTask) {
	if t.ID == "" {
		t.ID = model.NewID()
	}
	t.UpdatedAt = s.now()
	s.mutate(func(snap *model.Snapshot) { snap.AdminTasks[t.ID] = t })
}

// DeleteAdminTask removes an admin task.
func (s *Service) DeleteAdminTask(id string) {
	s.mutate(func(snap *model.Snapshot) {
		if _, ok := snap.AdminTasks[id]; ok {
			delete(snap.AdminTasks, id)
			snap.Deleted.Record(model.TableAdminTasks, id)
		}
	})
}

// PutAppointment inserts or replaces an appointment.
func (s *Service) PutAppointment(a *model.Appointment) {
	if a.ID == "" {
		a.ID = model.NewID()
	}
	a.UpdatedAt = s.now()
	s.mutate(func(snap *model.Snapshot) { snap.Appointments[a.ID] = a })
}

// DeleteAppointment removes an appointment.
func (s *Service) DeleteAppointment(id string) {
	s.mutate(func(snap *model.Snapshot) {
		if _, ok := snap.Appointments[id]; ok {
			delete(snap.Appointments, id)
			snap.Deleted.Record(model.TableAppts, id)
		}
	})
}

// PutAssistant inserts or replaces an assistant name tag.
func (s *Service) PutAssistant(a *model.Assistant) {
	if a.ID == "" {
		a.ID = model.NewID()
	}
	a.UpdatedAt = s.now()
	s.mutate(func(snap *model.Snapshot) { snap.Assistants[a.ID] = a })
}

// DeleteAssistant removes an assistant.
func (s *Service) DeleteAssistant(id string) {
	s.mutate(func(snap *model.Snapshot) {
		if _, ok := snap.Assistants[id]; ok {
			delete(snap.Assistants, id)
			snap.Deleted.Record(model.TableAssistants, id)
		}
	})
}
