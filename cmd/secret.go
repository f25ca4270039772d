package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdk-cli/pdk/internal/mask"
	"github.com/pdk-cli/pdk/internal/secret"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage the encrypted local secret store (spec §4.3)",
}

var secretSetCmd = &cobra.Command{
	Use:   "set <name> <value>",
	Short: "Store a secret, encrypted at rest",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSecretStore()
		if err != nil {
			return err
		}
		if err := store.Set(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("secret %q saved\n", args[0])
		return nil
	},
}

var secretGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Print a secret's value (masked unless --no-redact is set)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSecretStore()
		if err != nil {
			return err
		}
		value, err := store.Get(args[0])
		if err != nil {
			return err
		}
		if flagNoRedact {
			fmt.Println(value)
			return nil
		}
		fmt.Println(mask.DefaultToken)
		return nil
	},
}

var secretDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Remove a secret from the store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSecretStore()
		if err != nil {
			return err
		}
		if err := store.Delete(args[0]); err != nil {
			return err
		}
		fmt.Printf("secret %q deleted\n", args[0])
		return nil
	},
}

var secretListCmd = &cobra.Command{
	Use:   "list",
	Short: "List secret names (values are never printed)",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSecretStore()
		if err != nil {
			return err
		}
		names, err := store.List()
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

func init() {
	secretCmd.AddCommand(secretSetCmd, secretGetCmd, secretDeleteCmd, secretListCmd)
}

func openSecretStore() (*secret.Store, error) {
	path, err := secret.DefaultPath()
	if err != nil {
		return nil, err
	}
	masker := mask.New(flagNoRedact)
	return secret.Open(path, masker), nil
}
