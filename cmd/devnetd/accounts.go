package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Siasom1/gorrillazz-devnet/node"
	"github.com/Siasom1/gorrillazz-devnet/params"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List the funded dev accounts",
	Long: `List the dev accounts the configured seed derives, with their private keys.

Examples:
  # Print addresses and keys
  devnetd accounts

  # Write keystore v3 files for wallet import
  devnetd accounts --export ./wallets --password devnet`,
	RunE: runAccounts,
}

func init() {
	accountsCmd.Flags().String("export", "", "write encrypted keystore files into this directory")
	accountsCmd.Flags().String("password", "", "keystore password for --export")
	accountsCmd.Flags().Bool("json", false, "output as JSON")

	rootCmd.AddCommand(accountsCmd)
}

func runAccounts(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	accounts, err := params.DevAccounts(cfg.Accounts.Seed, cfg.Accounts.Count)
	if err != nil {
		return err
	}

	if dir, _ := cmd.Flags().GetString("export"); dir != "" {
		password, _ := cmd.Flags().GetString("password")
		if password == "" {
			return fmt.Errorf("--password is required with --export")
		}
		paths, err := node.ExportWallets(dir, password, accounts)
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		type entry struct {
			Address    string `json:"address"`
			PrivateKey string `json:"privateKey"`
		}
		out := make([]entry, len(accounts))
		for i, a := range accounts {
			out[i] = entry{Address: a.Address.Hex(), PrivateKey: "0x" + a.PrivateKeyHex()}
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	balance := cfg.AccountBalance()
	for i, a := range accounts {
		fmt.Fprintf(cmd.OutOrStdout(), "(%d) %s (%s wei)\n    0x%s\n", i, a.Address.Hex(), balance, a.PrivateKeyHex())
	}
	return nil
}
