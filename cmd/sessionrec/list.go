package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/v0xg/sessionrec/internal/session"
)

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List archived sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			sums, err := st.ListSessions(cmd.Context())
			if err != nil {
				return err
			}
			if len(sums) == 0 {
				fmt.Println("No sessions recorded yet.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTARTED\tDURATION\tACTIONS\tURL")
			for _, s := range sums {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
					s.ID[:min(8, len(s.ID))],
					s.StartTime.Local().Format("2006-01-02 15:04"),
					s.Duration.Round(time.Second),
					s.Actions,
					s.URL)
			}
			return w.Flush()
		},
	}
}

var recoverURL string

func recoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recover <session-id>",
		Short: "Archive a session that was never stopped from its action journal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			id := args[0]
			if _, err := st.LoadSession(cmd.Context(), id); err == nil {
				return fmt.Errorf("session %s is already archived", id)
			}

			actions, err := st.RecoverActions(cmd.Context(), id)
			if err != nil {
				return err
			}
			if len(actions) == 0 {
				return fmt.Errorf("no journalled actions for session %s", id)
			}

			exp := session.Export{
				ID:        id,
				URL:       recoverURL,
				StartTime: actions[0].Timestamp,
				EndTime:   actions[len(actions)-1].Timestamp,
				Actions:   actions,
			}
			if exp.URL == "" {
				exp.URL = actions[0].URL
			}
			exp.Duration = exp.EndTime.Sub(exp.StartTime).Milliseconds()

			if err := st.SaveSession(cmd.Context(), exp); err != nil {
				return err
			}
			fmt.Printf("✓ Recovered %s (%d actions)\n", id, len(actions))
			return nil
		},
	}
	cmd.Flags().StringVar(&recoverURL, "url", "", "Start URL (default: the first action's page)")
	return cmd
}
