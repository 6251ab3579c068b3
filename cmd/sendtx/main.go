package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/spf13/cobra"

	"github.com/Siasom1/gorrillazz-devnet/artifacts"
	"github.com/Siasom1/gorrillazz-devnet/params"
)

var rootCmd = &cobra.Command{
	Use:   "sendtx",
	Short: "Send a transfer, airdrop or deployment from a dev account",
	Long: `Sign legacy transactions with one of the devnet's dev accounts, send them over
JSON-RPC and wait for the receipts.

Examples:
  # Send 1 ETH from account 0 to account 1
  sendtx --to 0x... --value 1000000000000000000

  # Send 0.1 ETH to every address listed in wallets.txt
  sendtx --to-file wallets.txt --value 100000000000000000

  # Deploy artifacts/contracts/Collection.sol/Collection.json from account 2
  sendtx --from-index 2 --artifact Collection --args 0x... --args ipfs://cid/{id}.json`,
	SilenceUsage: true,
	RunE:         runSend,
}

func init() {
	rootCmd.Flags().String("rpc", "http://localhost:8545", "devnet JSON-RPC endpoint")
	rootCmd.Flags().String("seed", params.DevSeedPhrase, "seed the dev accounts derive from")
	rootCmd.Flags().Uint32("from-index", 0, "sending dev account index")
	rootCmd.Flags().String("to", "", "recipient address")
	rootCmd.Flags().String("to-file", "", "file of recipient addresses, one per line; sends --value to each")
	rootCmd.Flags().String("value", "0", "value in wei")
	rootCmd.Flags().Uint64("gas", 0, "gas limit (default 21000, or 3000000 for deployments)")
	rootCmd.Flags().String("artifact", "", "deploy this contract instead of transferring")
	rootCmd.Flags().StringArray("args", nil, "constructor argument for --artifact, once per parameter in order")
	rootCmd.Flags().String("artifacts", "artifacts", "artifact directory for --artifact")
	rootCmd.Flags().String("solidity", params.DefaultSolidityVersion, "compiler version for --artifact")
	rootCmd.Flags().String("registry", "deployed_contracts.json", "file recording successful deployments (empty to skip)")
	rootCmd.Flags().Duration("timeout", 30*time.Second, "how long to wait for the receipts")
}

// outgoing is one transaction to sign: a transfer when to is set, otherwise
// a deployment of art.
type outgoing struct {
	to   *common.Address
	data []byte
	art  *artifacts.Artifact
	args []string
}

func runSend(cmd *cobra.Command, _ []string) error {
	rpcURL, _ := cmd.Flags().GetString("rpc")
	seed, _ := cmd.Flags().GetString("seed")
	index, _ := cmd.Flags().GetUint32("from-index")
	toStr, _ := cmd.Flags().GetString("to")
	toFile, _ := cmd.Flags().GetString("to-file")
	valueStr, _ := cmd.Flags().GetString("value")
	gas, _ := cmd.Flags().GetUint64("gas")
	artifactName, _ := cmd.Flags().GetString("artifact")
	ctorArgs, _ := cmd.Flags().GetStringArray("args")
	registryPath, _ := cmd.Flags().GetString("registry")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	value, ok := new(big.Int).SetString(valueStr, 10)
	if !ok || value.Sign() < 0 {
		return fmt.Errorf("invalid value %q", valueStr)
	}

	key, err := params.DeriveKey(seed, index)
	if err != nil {
		return err
	}
	from := params.DevAccount{Address: crypto.PubkeyToAddress(key.PublicKey), Key: key}

	var batch []outgoing
	switch {
	case artifactName != "":
		dir, _ := cmd.Flags().GetString("artifacts")
		solidity, _ := cmd.Flags().GetString("solidity")
		loader, err := artifacts.NewLoader(dir, solidity)
		if err != nil {
			return err
		}
		art, err := loader.Load(artifactName)
		if err != nil {
			return err
		}
		packed, err := art.ConstructorArgs(ctorArgs)
		if err != nil {
			return err
		}
		data, err := art.DeployData(packed...)
		if err != nil {
			return err
		}
		batch = append(batch, outgoing{data: data, art: art, args: ctorArgs})
		if gas == 0 {
			gas = 3_000_000
		}
	case toFile != "":
		addrs, err := readAddresses(toFile)
		if err != nil {
			return fmt.Errorf("read %s: %w", toFile, err)
		}
		for i := range addrs {
			batch = append(batch, outgoing{to: &addrs[i]})
		}
	case common.IsHexAddress(toStr):
		addr := common.HexToAddress(toStr)
		batch = append(batch, outgoing{to: &addr})
	default:
		return errors.New("one of --to, --to-file or --artifact is required")
	}
	if gas == 0 {
		gas = 21_000
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return fmt.Errorf("failed to connect to RPC: %w", err)
	}
	defer client.Close()

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to get chain ID from %s: %w", rpcURL, err)
	}
	nonce, err := client.PendingNonceAt(ctx, from.Address)
	if err != nil {
		return fmt.Errorf("failed to get nonce for %s: %w", from.Address.Hex(), err)
	}
	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("failed to get gas price: %w", err)
	}

	signer := types.LatestSignerForChainID(chainID)
	sent := make([]*types.Transaction, 0, len(batch))
	for i, out := range batch {
		tx, err := types.SignNewTx(key, signer, &types.LegacyTx{
			Nonce:    nonce + uint64(i),
			To:       out.to,
			Value:    value,
			Gas:      gas,
			GasPrice: gasPrice,
			Data:     out.data,
		})
		if err != nil {
			return err
		}
		if err := client.SendTransaction(ctx, tx); err != nil {
			return fmt.Errorf("failed to broadcast transaction %d of %d: %w", i+1, len(batch), err)
		}
		fmt.Printf("Sent %s (nonce %d) from %s\n", tx.Hash().Hex(), tx.Nonce(), from.Address.Hex())
		sent = append(sent, tx)
	}

	var failed int
	for i, tx := range sent {
		receipt, err := waitReceipt(ctx, client, tx.Hash())
		if err != nil {
			return err
		}
		fmt.Printf("Sealed %s in block %d, status %d, gas used %d\n", tx.Hash().Hex(), receipt.BlockNumber, receipt.Status, receipt.GasUsed)
		if receipt.Status != types.ReceiptStatusSuccessful {
			failed++
			continue
		}
		out := batch[i]
		if out.art == nil || receipt.ContractAddress == (common.Address{}) {
			continue
		}
		fmt.Printf("Contract address %s\n", receipt.ContractAddress.Hex())
		if registryPath == "" {
			continue
		}
		err = artifacts.NewRegistry(registryPath).Record(artifacts.Deployment{
			Contract:   out.art.ContractName,
			Address:    receipt.ContractAddress,
			TxHash:     tx.Hash(),
			Block:      receipt.BlockNumber.Uint64(),
			Deployer:   from.Address,
			Args:       out.args,
			ABI:        out.art.RawABI,
			DeployedAt: time.Now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("record deployment in %s: %w", registryPath, err)
		}
		fmt.Printf("Recorded in %s\n", registryPath)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d transactions failed", failed, len(sent))
	}
	return nil
}

// waitReceipt polls until the receipt exists. Interval-mode devnets may
// take a while to seal.
func waitReceipt(ctx context.Context, client *ethclient.Client, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		receipt, err := client.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for receipt of %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
