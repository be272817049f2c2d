package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/techquest-tech/pglocks/pkg/core"
	"github.com/techquest-tech/pglocks/pkg/orm"
	"github.com/techquest-tech/pglocks/pkg/pglock"
	"gorm.io/gorm"
)

var (
	locksJSON  bool
	locksUsing string
	locksKey   string
)

var LocksCmd = &cobra.Command{
	Use:   "locks",
	Short: "list advisory locks held or awaited in the database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return invokeDB(locksUsing, func(db *gorm.DB) error {
			held, err := pglock.Held(cmd.Context(), db)
			if err != nil {
				return err
			}
			if locksKey != "" {
				key, err := pglock.ParseKeyString(locksKey)
				if err != nil {
					return err
				}
				held = pglock.Filter(held, key)
			}

			out := cmd.OutOrStdout()
			if locksJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(held)
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PID\tMODE\tGRANTED\tKEY\tQUERY")
			for _, h := range held {
				fmt.Fprintf(w, "%d\t%s\t%t\t%s\t%s\n", h.PID, h.Mode, h.Granted, h.KeyText, h.Query)
			}
			return w.Flush()
		})
	},
}

// invokeDB opens the configured databases and hands the named one to fn.
func invokeDB(name string, fn func(db *gorm.DB) error) error {
	return core.GetContainer().Invoke(func(_ *gorm.DB) error {
		db, ok := orm.Connection(name)
		if !ok {
			return fmt.Errorf("%w: %q", pglock.ErrUnknownConnection, name)
		}
		return fn(db)
	})
}

func init() {
	LocksCmd.Flags().BoolVar(&locksJSON, "json", false, "print json")
	LocksCmd.Flags().StringVarP(&locksUsing, "using", "u", "", "named connection from the databases section")
	LocksCmd.Flags().StringVarP(&locksKey, "key", "k", "", "only rows for this lock id")
}
