package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/RevCBH/siren/internal/config"
	"github.com/RevCBH/siren/internal/contacts"
	"github.com/RevCBH/siren/internal/escalation"
	"github.com/RevCBH/siren/internal/store"
)

// NewContactsCmd creates the contacts command group for the local contact book
func NewContactsCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "Manage the local emergency contact book",
		Long: `Manage the local emergency contact book.

Sessions escalate to the first non-empty list of: contacts given when the
session starts, contacts in siren.yaml, the contacts backend, and this
local book. Priority 1 is called; everyone is messaged.`,
	}

	cmd.AddCommand(newContactsListCmd(a))
	cmd.AddCommand(newContactsAddCmd(a))
	cmd.AddCommand(newContactsRemoveCmd(a))

	return cmd
}

func newContactsListCmd(a *App) *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List contacts from siren.yaml and the local book",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			book, err := st.ListContacts()
			if err != nil {
				return err
			}

			if len(cfg.Contacts) == 0 && len(book) == 0 {
				a.printf("No contacts configured. Add one with 'siren contacts add'.\n")
			} else {
				displayContacts(a.out, cfg.Contacts, book)
			}

			sources := []contacts.Source{contacts.Static(cfg.Contacts)}
			if remote && cfg.ContactsBackend.URL != "" {
				timeout, err := cfg.ContactsTimeoutDuration()
				if err != nil {
					return err
				}
				sources = append(sources, contacts.NewHTTPSource(cfg.ContactsBackend.URL, cfg.ContactsBackend.Token, timeout))
			}
			sources = append(sources, contacts.StoreSource{Book: st})

			list, from, err := contacts.Resolve(cmd.Context(), sources...)
			switch {
			case err != nil:
				return err
			case len(list) == 0:
				a.printf("\n%s\n", messageColor.Sprint("Warning: escalation would notify nobody"))
			default:
				a.printf("\nNew sessions escalate to the %s list (%d contact(s))\n", from, len(list))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "Also query the contacts backend")

	return cmd
}

func newContactsAddCmd(a *App) *cobra.Command {
	var (
		name     string
		phone    string
		priority int
		id       string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or update a contact in the local book",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newBookContact(id, name, phone, priority)
			if err != nil {
				return err
			}

			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.UpsertContact(c); err != nil {
				return err
			}
			a.printf("Saved contact %s (%s, priority %d)\n", c.ID, c.DisplayName(), c.Priority)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Contact name")
	cmd.Flags().StringVar(&phone, "phone", "", "Phone number in E.164 form (required)")
	cmd.Flags().IntVar(&priority, "priority", 1, "Calling order; 1 is called first")
	cmd.Flags().StringVar(&id, "id", "", "Existing contact id to update")

	return cmd
}

func newContactsRemoveCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <contact-id>",
		Aliases: []string{"rm"},
		Short:   "Remove a contact from the local book",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.DeleteContact(args[0]); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("no contact with id %s", args[0])
				}
				return err
			}
			a.printf("Removed contact %s\n", args[0])
			return nil
		},
	}
}

// newBookContact validates flags for a contact book entry, minting an id
// for new contacts
func newBookContact(id, name, phone string, priority int) (escalation.Contact, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return escalation.Contact{}, fmt.Errorf("--phone is required")
	}
	if priority < 1 {
		return escalation.Contact{}, fmt.Errorf("--priority must be at least 1")
	}
	if id == "" {
		id = ulid.Make().String()
	}
	return escalation.Contact{
		ID:       id,
		Name:     strings.TrimSpace(name),
		Phone:    phone,
		Priority: priority,
	}, nil
}

// openStore opens the daemon database. SQLite in WAL mode tolerates the
// daemon holding it open at the same time.
func openStore(cfg *config.Config) (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Daemon.DBPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	st, err := store.Open(cfg.Daemon.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", cfg.Daemon.DBPath, err)
	}
	return st, nil
}

// displayContacts renders configured and local contacts in one table
func displayContacts(w io.Writer, configured, book []escalation.Contact) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "ID\tNAME\tPHONE\tPRIORITY\tSOURCE")
	row := func(c escalation.Contact, source string) {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", orDash(c.ID), orDash(c.Name), c.Phone, c.Priority, source)
	}
	for _, c := range configured {
		row(c, "config")
	}
	for _, c := range book {
		row(c, "local")
	}
}
