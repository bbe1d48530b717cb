package engine

import "github.com/sirupsen/logrus"

// IsAdmin reports whether the principal is in the admin set.
func (e *Engine) IsAdmin(principal string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.admins[principal]
}

// AddAdmin grants admin rights to a principal. Idempotent if the principal is
// already an admin.
func (e *Engine) AddAdmin(caller, newAdmin string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.admins[caller] {
		return ErrNotAuthorized
	}
	if e.admins[newAdmin] {
		return nil
	}
	e.admins[newAdmin] = true
	e.journalAdmin(newAdmin, true)
	return nil
}

// RemoveAdmin revokes admin rights. Removing the last remaining admin is
// rejected so the engine can never end up without a privileged principal.
func (e *Engine) RemoveAdmin(caller, admin string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.admins[caller] {
		return ErrNotAuthorized
	}
	if !e.admins[admin] {
		return nil
	}
	if len(e.admins) == 1 {
		return ErrLastAdmin
	}
	delete(e.admins, admin)
	e.journalAdmin(admin, false)
	return nil
}

// Admins returns the current admin principals.
func (e *Engine) Admins() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]string, 0, len(e.admins))
	for p := range e.admins {
		out = append(out, p)
	}
	return out
}

func (e *Engine) journalAdmin(principal string, member bool) {
	if err := e.journal.SaveAdmin(principal, member); err != nil {
		logrus.WithError(err).WithField("principal", principal).Warn("journal: admin write failed")
	}
}
