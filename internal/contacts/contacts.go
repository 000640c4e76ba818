// Package contacts resolves the emergency contact list a session escalates to.
package contacts

import (
	"context"
	"fmt"

	"github.com/RevCBH/siren/internal/escalation"
)

// Source provides a contact list
type Source interface {
	Contacts(ctx context.Context) ([]escalation.Contact, error)
	Name() string
}

// Static serves a fixed list, typically from siren.yaml
type Static []escalation.Contact

// Contacts returns a copy of the list
func (s Static) Contacts(ctx context.Context) ([]escalation.Contact, error) {
	out := make([]escalation.Contact, len(s))
	copy(out, s)
	return out, nil
}

// Name returns "config"
func (s Static) Name() string { return "config" }

// Book is the subset of the store used as a contact source
type Book interface {
	ListContacts() ([]escalation.Contact, error)
}

// StoreSource reads the local contact book
type StoreSource struct {
	Book Book
}

// Contacts lists the contact book
func (s StoreSource) Contacts(ctx context.Context) ([]escalation.Contact, error) {
	return s.Book.ListContacts()
}

// Name returns "store"
func (s StoreSource) Name() string { return "store" }

// Resolve returns the first non-empty list from sources, in order, along
// with the name of the source that supplied it. A failing source is skipped
// unless every source fails. An empty result with a nil error means no
// contacts are configured anywhere.
func Resolve(ctx context.Context, sources ...Source) ([]escalation.Contact, string, error) {
	var firstErr error
	for _, src := range sources {
		if src == nil {
			continue
		}
		list, err := src.Contacts(ctx)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s contacts: %w", src.Name(), err)
			}
			continue
		}
		if len(list) > 0 {
			return list, src.Name(), nil
		}
	}
	return nil, "", firstErr
}
