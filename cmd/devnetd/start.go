package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Siasom1/gorrillazz-devnet/node"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the devnet node",
	Long: `Run the devnet node until interrupted.

Running devnetd without a subcommand does the same.`,
	RunE: runStart,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(configCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	n, err := node.NewNode(cfg)
	if err != nil {
		return err
	}
	if err := n.Start(); err != nil {
		n.Stop()
		return fmt.Errorf("start node: %w", err)
	}

	printBanner(n)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	n.Stop()
	return nil
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	out, err := cfg.YAML()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}

func printBanner(n *node.Node) {
	fmt.Printf("\nJSON-RPC listening on http://%s (ws on /ws)\n", n.RPCServer.Addr())
	fmt.Printf("Chain ID %d, %s mining\n\n", n.Config.Network.ChainID, n.Scheduler.Policy())
	fmt.Println("Accounts")
	fmt.Println("========")
	for i, a := range n.Accounts {
		fmt.Printf("(%d) %s\n", i, a.Address.Hex())
	}
	fmt.Println("\nPrivate keys are listed by `devnetd accounts`. Never use them outside this devnet.")
}
