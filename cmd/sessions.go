package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/hamzamsaid/hamzawi/internal/config"
	"github.com/hamzamsaid/hamzawi/internal/log"
	"github.com/hamzamsaid/hamzawi/internal/store"
)

// runSessions manages stored sessions without starting a frontend.
func runSessions(cfg *config.Config, logger log.Logger, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: hamzawi sessions list|delete ID|clear ID")
	}

	st, err := store.Open(cfg.DataDir, logger.With("component", "store"))
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("closing store", "error", err)
		}
	}()

	switch args[0] {
	case "list":
		return listSessions(st)
	case "delete":
		if len(args) < 2 {
			return fmt.Errorf("usage: hamzawi sessions delete ID")
		}
		return deleteSession(st, args[1])
	case "clear":
		if len(args) < 2 {
			return fmt.Errorf("usage: hamzawi sessions clear ID")
		}
		return clearSession(st, args[1])
	default:
		return fmt.Errorf("unknown sessions subcommand: %s", args[0])
	}
}

func listSessions(st *store.Store) error {
	sessions := st.Sessions()
	if len(sessions) == 0 {
		fmt.Println("No sessions.")
		return nil
	}

	active := st.ActiveSessionID()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tPERSONA\tMESSAGES\tUPDATED")
	for _, s := range sessions {
		marker := ""
		if s.ID == active {
			marker = " *"
		}
		fmt.Fprintf(w, "%s%s\t%s\t%s\t%d\t%s\n",
			s.ID, marker, s.Title, s.PersonaID, len(s.Messages),
			s.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func deleteSession(st *store.Store, id string) error {
	if _, ok := st.Session(id); !ok {
		return fmt.Errorf("no session with ID %s", id)
	}
	st.DeleteSession(id)
	fmt.Printf("Deleted session %s.\n", id)
	return nil
}

func clearSession(st *store.Store, id string) error {
	if _, ok := st.Session(id); !ok {
		return fmt.Errorf("no session with ID %s", id)
	}
	st.ClearMessages(id)
	fmt.Printf("Cleared session %s.\n", id)
	return nil
}
