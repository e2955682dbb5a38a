package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/wellspring-app/wellspring/internal/infra/postgres"
	"github.com/wellspring-app/wellspring/internal/keyring"
)

func init() {
	storeCmd.AddCommand(storeLoginCmd, storeLogoutCmd)
	rootCmd.AddCommand(storeCmd)
}

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Manage the PostgreSQL connection kept in the OS keyring",
}

var storeLoginCmd = &cobra.Command{
	Use:   "login [dsn]",
	Short: "Save a PostgreSQL connection string to the keyring",
	Long: `Save a PostgreSQL connection string to the OS keyring. The postgres
driver uses it whenever store.dsn is empty. Reads the DSN from stdin when
no argument is given, prompting when stdin is a terminal. Passwords must
come from PGPASSFILE, not the DSN.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var dsn string
		switch {
		case len(args) == 1:
			dsn = args[0]
		case isTerminal(cmd.InOrStdin()):
			var err error
			if dsn, err = promptDSN(); err != nil {
				return err
			}
		default:
			sc := bufio.NewScanner(cmd.InOrStdin())
			if sc.Scan() {
				dsn = sc.Text()
			}
			if err := sc.Err(); err != nil {
				return fmt.Errorf("read dsn: %w", err)
			}
		}
		dsn = strings.TrimSpace(dsn)
		if err := postgres.ValidateConnString(dsn); err != nil {
			return err
		}
		if err := keyring.SetDSN(dsn); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s saved connection string to the %q keyring\n", okStyle.Render("✓"), keyring.Service)
		return nil
	},
}

var storeLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the saved connection string",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		err := keyring.DeleteDSN()
		if errors.Is(err, keyring.ErrNotFound) {
			fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("no saved connection string"))
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s removed saved connection string\n", okStyle.Render("✓"))
		return nil
	},
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

// promptDSN asks for the connection string interactively.
func promptDSN() (string, error) {
	var dsn string
	err := huh.NewInput().
		Title("PostgreSQL connection string").
		Description("host=db dbname=wellspring, or postgres://user@host/db (no password)").
		Value(&dsn).
		Validate(func(s string) error {
			return postgres.ValidateConnString(strings.TrimSpace(s))
		}).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return "", errors.New("login cancelled")
	}
	return dsn, err
}
