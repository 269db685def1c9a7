package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"backoffice/auth"
	"backoffice/config"
	"backoffice/dashboard"
	"backoffice/loader"
	"backoffice/migrations"
)

var (
	userEmail    string
	userName     string
	userRole     string
	userPassword string

	importEncoding string
)

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)

	userCreateCmd.Flags().StringVar(&userEmail, "email", "", "login email (required)")
	userCreateCmd.Flags().StringVar(&userName, "name", "", "full name")
	userCreateCmd.Flags().StringVar(&userRole, "role", auth.RoleAdmin, "one of admin, manager, accountant, staff, viewer")
	userCreateCmd.Flags().StringVar(&userPassword, "password", "", "password, at least 8 characters (required)")
	_ = userCreateCmd.MarkFlagRequired("email")
	_ = userCreateCmd.MarkFlagRequired("password")
	userCmd.AddCommand(userCreateCmd)

	importCmd.PersistentFlags().StringVar(&importEncoding, "encoding", "utf-8", "file encoding: utf-8, shift_jis or windows-1252")
	importCmd.AddCommand(importCustomersCmd, importLeadsCmd)

	rootCmd.AddCommand(migrateCmd, userCmd, importCmd, statsCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply every pending migration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		defer e.close()
		if err := migrations.Up(e.db); err != nil {
			return err
		}
		return printVersion(cmd, e)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		defer e.close()
		if err := migrations.Down(e.db); err != nil {
			return err
		}
		return printVersion(cmd, e)
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the applied schema version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		defer e.close()
		return printVersion(cmd, e)
	},
}

func printVersion(cmd *cobra.Command, e *env) error {
	v, dirty, ok, err := migrations.Version(e.db)
	if err != nil {
		return err
	}
	switch {
	case !ok:
		fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
	case dirty:
		fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty)\n", v)
	default:
		fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", v)
	}
	return nil
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		defer e.close()
		ctx := e.context(cmd.Context())
		if err := loader.InitDatabase(ctx, e.db); err != nil {
			return err
		}
		// No tokens are issued here.
		sessions := auth.NewService(e.db, auth.NewIssuer(e.cfg.Auth.JWTSecret, e.cfg.Auth.TokenTTL))
		u, err := sessions.CreateUser(ctx, userEmail, userPassword, userName, userRole)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created user %d <%s> with role %s\n", u.ID, u.Email, u.Role)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk-load records from a CSV file",
	Long: `Bulk-load records from a CSV file with a header row.

Customers: name is required; code, company, email, phone, address, city,
country, currency, tax_id and notes are optional. Rows with a code update the
customer holding it.

Leads: name is required; company, email, phone, source, status,
estimated_value and notes are optional.`,
}

var importCustomersCmd = &cobra.Command{
	Use:   "customers FILE",
	Short: "Import customers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(cmd, args[0], func(e *env, f *os.File) (*loader.ImportResult, error) {
			return loader.ImportCustomers(e.context(cmd.Context()), e.db, f, importEncoding, config.Get().Company.Currency)
		})
	},
}

var importLeadsCmd = &cobra.Command{
	Use:   "leads FILE",
	Short: "Import leads",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(cmd, args[0], func(e *env, f *os.File) (*loader.ImportResult, error) {
			return loader.ImportLeads(e.context(cmd.Context()), e.db, f, importEncoding)
		})
	},
}

func runImport(cmd *cobra.Command, path string, fn func(*env, *os.File) (*loader.ImportResult, error)) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()
	if err := loader.InitDatabase(e.context(cmd.Context()), e.db); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("could not open file %s: %w", path, err)
	}
	defer f.Close()

	res, err := fn(e, f)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created %d, updated %d, skipped %d\n", res.Created, res.Updated, res.Skipped)
	for _, re := range res.Errors {
		fmt.Fprintf(cmd.OutOrStdout(), "  line %d: %s\n", re.Line, re.Message)
	}
	return nil
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the dashboard figures",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		defer e.close()
		s, err := dashboard.Stats(e.context(cmd.Context()), e.db)
		if err != nil {
			return err
		}
		return dashboard.RenderText(cmd.OutOrStdout(), s, e.cfg.Company.Currency)
	},
}
