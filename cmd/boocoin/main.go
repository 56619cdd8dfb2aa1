// Command boocoin is the node daemon and companion wallet CLI.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/urfave/cli"

	"github.com/boocoin/boocoin/chain"
	"github.com/boocoin/boocoin/common"
	"github.com/boocoin/boocoin/config"
	"github.com/boocoin/boocoin/crypto"
	"github.com/boocoin/boocoin/ledger"
	"github.com/boocoin/boocoin/log"
	"github.com/boocoin/boocoin/node"
	"github.com/boocoin/boocoin/storage"
)

// rewardAmount is the fixed payout of the genesis block's sole transaction,
// matching the block-reward amount every subsequently mined block pays out.
var rewardAmount = common.MustParseAmount("100.00000000")

func parseAmountFlag(s string) (common.Amount, error) {
	return common.ParseAmount(s)
}

var configFlag = cli.StringFlag{
	Name:  "config",
	Usage: "path to a TOML configuration file",
	Value: "boocoin.toml",
}

var nodeFlag = cli.StringFlag{
	Name:  "node",
	Usage: "address of the node to talk to",
	Value: "127.0.0.1:8000",
}

func main() {
	app := cli.NewApp()
	app.Name = "boocoin"
	app.Usage = "a permissioned peer-to-peer ledger"
	app.Version = "0.1.0"
	app.Commands = []cli.Command{
		runCommand,
		keygenCommand,
		genesisCommand,
		walletCommand,
	}
	sort.Sort(cli.CommandsByName(app.Commands))

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

var runCommand = cli.Command{
	Name:  "run",
	Usage: "start the node daemon",
	Flags: []cli.Flag{configFlag, cli.BoolFlag{Name: "debug"}},
	Action: func(c *cli.Context) error {
		log.SetDebug(c.Bool("debug"))
		cfg, err := config.Load(c.String("config"))
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		n, err := node.New(cfg)
		if err != nil {
			return err
		}
		if err := n.Start(); err != nil {
			return err
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return n.Stop(ctx)
	},
}

var keygenCommand = cli.Command{
	Name:  "keygen",
	Usage: "generate a new keypair",
	Action: func(c *cli.Context) error {
		sk, pk, err := crypto.GenerateKeypair()
		if err != nil {
			return err
		}
		fmt.Println("public_key: ", pk)
		fmt.Println("private_key:", sk)
		return nil
	},
}

var genesisCommand = cli.Command{
	Name:  "genesis",
	Usage: "create and commit the genesis block",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "db", Value: "boocoin.sqlite3"},
		cli.StringFlag{Name: "miner-public-key", Required: true},
		cli.StringFlag{Name: "miner-private-key", Required: true},
		cli.StringFlag{Name: "reward-account", Required: true},
		cli.StringSliceFlag{Name: "authorized-miner", Usage: "repeatable; defaults to miner-public-key alone"},
	},
	Action: func(c *cli.Context) error {
		store, err := storage.Open(c.String("db"))
		if err != nil {
			return err
		}
		defer store.Close()

		existing, err := store.GetGenesis()
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("genesis already committed: %s", existing.ID)
		}

		miners := c.StringSlice("authorized-miner")
		if len(miners) == 0 {
			miners = []string{c.String("miner-public-key")}
		}
		extra, err := chain.EncodeMinerList(miners)
		if err != nil {
			return err
		}

		reward := chain.TxContent{
			To:    c.String("reward-account"),
			Coins: rewardAmount,
			Time:  time.Now().UTC(),
		}
		rewardHash, err := reward.ComputeHash(crypto.HHex)
		if err != nil {
			return err
		}
		tx := chain.Transaction{Hash: rewardHash, Content: reward, Signature: chain.RewardSignature}

		balances, err := ledger.ApplyTx(chain.NewBalances(), reward)
		if err != nil {
			return err
		}
		root, err := crypto.MerkleRoot([]string{tx.Hash})
		if err != nil {
			return err
		}

		block := &chain.Block{
			Depth:        0,
			Miner:        c.String("miner-public-key"),
			Balances:     balances,
			MerkleRoot:   root,
			ExtraData:    extra,
			Time:         time.Now().UTC(),
			Transactions: []chain.Transaction{tx},
		}
		pre, err := block.Preimage()
		if err != nil {
			return err
		}
		block.ID = crypto.HHex(pre)
		sig, err := crypto.Sign(block.ID, c.String("miner-private-key"))
		if err != nil {
			return err
		}
		block.Signature = sig
		tx.Block = block.ID
		block.Transactions[0] = tx

		if err := store.CommitBlock(block); err != nil {
			return err
		}
		fmt.Println("genesis committed:", block.ID)
		return nil
	},
}

var walletCommand = cli.Command{
	Name:  "wallet",
	Usage: "inspect balances and send transactions",
	Subcommands: []cli.Command{
		{
			Name:  "balance",
			Flags: []cli.Flag{nodeFlag, cli.StringFlag{Name: "account", Required: true}},
			Action: func(c *cli.Context) error {
				block, err := fetchActiveBlock(c.String("node"))
				if err != nil {
					return err
				}
				fmt.Println(block.Balances.Get(c.String("account")).String())
				return nil
			},
		},
		{
			Name: "send",
			Flags: []cli.Flag{
				nodeFlag,
				cli.StringFlag{Name: "from-public-key", Required: true},
				cli.StringFlag{Name: "from-private-key", Required: true},
				cli.StringFlag{Name: "to", Required: true},
				cli.StringFlag{Name: "amount", Required: true},
			},
			Action: func(c *cli.Context) error {
				amount, err := parseAmountFlag(c.String("amount"))
				if err != nil {
					return err
				}
				from := c.String("from-public-key")
				content := chain.TxContent{
					From:  &from,
					To:    c.String("to"),
					Coins: amount,
					Time:  time.Now().UTC(),
				}
				hash, err := content.ComputeHash(crypto.HHex)
				if err != nil {
					return err
				}
				sig, err := crypto.Sign(hash, c.String("from-private-key"))
				if err != nil {
					return err
				}
				wire := chain.ToWireUnconfirmed(chain.UnconfirmedTransaction{Hash: hash, Content: content, Signature: sig})
				return submitTransaction(c.String("node"), wire)
			},
		},
	},
}

func fetchActiveBlock(node string) (*chain.Block, error) {
	resp, err := http.Get("http://" + node + "/api/block/active/")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("node returned %d: %s", resp.StatusCode, body)
	}
	var wire chain.WireBlock
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, err
	}
	block, _, err := wire.ToBlock()
	return block, err
}

func submitTransaction(node string, wire chain.WireTransaction) error {
	body, err := json.Marshal(wire)
	if err != nil {
		return err
	}
	resp, err := http.Post("http://"+node+"/api/submit_transaction/", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("node rejected transaction (%d): %s", resp.StatusCode, out)
	}
	fmt.Println(string(out))
	return nil
}
