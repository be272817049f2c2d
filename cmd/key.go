package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/techquest-tech/pglocks/pkg/pglock"
)

// KeyCmd prints how a key is sent to postgres, without connecting.
var KeyCmd = &cobra.Command{
	Use:   "key <lock id>",
	Short: "show the folded key and the statements for a lock id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := pglock.ParseKeyString(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if text, ok := key.(pglock.Text); ok {
			fmt.Fprintf(out, "key:\t%d (crc32 of %q)\n", pglock.Fold(string(text)), string(text))
		} else {
			fmt.Fprintf(out, "key:\t%s\n", key)
		}

		modes := []struct {
			name string
			opts []pglock.Option
		}{
			{"exclusive", nil},
			{"exclusive, nowait", []pglock.Option{pglock.NoWait()}},
			{"shared", []pglock.Option{pglock.Shared()}},
			{"shared, nowait", []pglock.Option{pglock.Shared(), pglock.NoWait()}},
		}
		for _, m := range modes {
			acquire, release, err := pglock.Statements(key, m.opts...)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s:\n\t%s\n\t%s\n", m.name, acquire, release)
		}
		return nil
	},
}
