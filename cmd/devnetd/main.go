package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Siasom1/gorrillazz-devnet/node"
	"github.com/Siasom1/gorrillazz-devnet/params"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "devnetd",
	Short: "Local Ethereum development chain",
	Long: `devnetd runs a single-node Ethereum-compatible development chain with
funded dev accounts, instant or interval block production and a JSON-RPC
endpoint that wallets and deploy scripts can talk to.

Configuration is read from a devnet.yaml (or --config), DEVNET_* environment
variables and the flags below, later sources winning.

Examples:
  # Mine a block per transaction on :8545
  devnetd

  # Mine every 2 seconds, keep the chain on disk
  devnetd start --mining-mode interval --interval 2000 --datadir ./chain`,
	SilenceUsage: true,
	RunE:         runStart,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "config file (default: ./devnet.yaml or ~/.devnet/devnet.yaml)")
	flags.String("solidity", params.DefaultSolidityVersion, "solidity compiler version the artifacts were built with")
	flags.String("artifacts", "artifacts", "directory holding contract build artifacts")
	flags.String("datadir", "", "chain database directory (empty: in-memory)")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-format", "console", "log format: console or json")
	flags.String("host", "0.0.0.0", "RPC listen host")
	flags.Int("port", 8545, "RPC listen port")
	flags.Uint64("chain-id", params.DevChainID, "chain id")
	flags.String("mining-mode", "", "block production: auto or interval")
	flags.Int64("interval", 0, "block interval in milliseconds; selects interval mining unless --mining-mode is set")
}

// loadConfig resolves the effective configuration for cmd.
func loadConfig(cmd *cobra.Command) (*node.Config, error) {
	return node.Load(configFile, cmd.Flags())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
