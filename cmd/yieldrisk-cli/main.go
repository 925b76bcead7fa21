// cmd/yieldrisk-cli/main.go
//
// yieldrisk-cli is the client-side tool for the YieldRisk agent service.
// It manages a local keystore, signs API requests, and drives the full
// service lifecycle: deposit, protocol submission, analysis requests,
// settlement, and feedback.
//
// Usage:
//
//	yieldrisk-cli wallet-new --keystore wallet.json --password pw
//	yieldrisk-cli wallet-show
//	yieldrisk-cli deposit --amount 1000000000000000
//	yieldrisk-cli protocol --text "NovaLend: overcollateralized lending"
//	yieldrisk-cli request --hash 0x... --payment 1000000000000000
//	yieldrisk-cli report --id 0
//	yieldrisk-cli release --id 0
//	yieldrisk-cli refund --id 0 --score 20
//	yieldrisk-cli mint-auth --agent 1 --client 0x... --limit 5 --hours 24
//	yieldrisk-cli feedback --agent 1 --score 20 --auth 0x...
//	yieldrisk-cli stats
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/aegis-agents/yieldrisk/internal/httpsig"
	"github.com/aegis-agents/yieldrisk/internal/reputation"
	"github.com/aegis-agents/yieldrisk/internal/wallet"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "wallet-new":
		cmdWalletNew(os.Args[2:])
	case "wallet-show":
		cmdWalletShow(os.Args[2:])
	case "deposit":
		cmdDeposit(os.Args[2:])
	case "protocol":
		cmdProtocol(os.Args[2:])
	case "request":
		cmdRequest(os.Args[2:])
	case "report":
		cmdReport(os.Args[2:])
	case "release":
		cmdRelease(os.Args[2:])
	case "refund":
		cmdRefund(os.Args[2:])
	case "mint-auth":
		cmdMintAuth(os.Args[2:])
	case "feedback":
		cmdFeedback(os.Args[2:])
	case "stats":
		cmdStats(os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: yieldrisk-cli <command> [flags]

Commands:
  wallet-new   Generate a keystore
  wallet-show  Print the keystore address
  deposit      Fund your service balance
  protocol     Submit a protocol description
  request      Pay for an analysis of a submitted protocol
  report       Fetch the analysis report for a request
  release      Trigger an eligible escrow release (keeper)
  refund       Claim a refund for a request
  mint-auth    Mint a feedback authorization (agent owner)
  feedback     Submit a feedback score
  stats        Show service statistics

Run 'yieldrisk-cli <command> --help' for details on each command.
`)
}

// commonFlags registers the flags every command shares.
func commonFlags(fs *flag.FlagSet) (server, keystore, password *string) {
	server = fs.String("server", envOr("YIELDRISK_SERVER", "http://localhost:8080"), "API base URL")
	keystore = fs.String("keystore", envOr("YIELDRISK_KEYSTORE", "wallet.json"), "keystore path")
	password = fs.String("password", os.Getenv("YIELDRISK_PASSWORD"), "keystore password")
	return
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func openWallet(keystore, password string) *wallet.Wallet {
	if password == "" {
		fatalf("keystore password required (--password or YIELDRISK_PASSWORD)")
	}
	w, err := wallet.Load(keystore, password)
	if err != nil {
		fatalf("open keystore: %v", err)
	}
	return w
}

// doSigned sends a signed request and prints the JSON response. A non-2xx
// status exits nonzero.
func doSigned(w *wallet.Wallet, method, url string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		fatalf("marshal payload: %v", err)
	}
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		fatalf("build request: %v", err)
	}
	if err := httpsig.SignRequest(req, w.Key, body); err != nil {
		fatalf("sign request: %v", err)
	}
	sendAndPrint(req)
}

// doGet sends an unsigned request and prints the JSON response.
func doGet(method, url string) {
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		fatalf("build request: %v", err)
	}
	sendAndPrint(req)
}

func sendAndPrint(req *http.Request) {
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		fatalf("read response: %v", err)
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, data, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(data))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		os.Exit(1)
	}
}

func cmdWalletNew(args []string) {
	fs := flag.NewFlagSet("wallet-new", flag.ExitOnError)
	_, keystore, password := commonFlags(fs)
	fs.Parse(args)

	if *password == "" {
		fatalf("keystore password required (--password or YIELDRISK_PASSWORD)")
	}
	if _, err := os.Stat(*keystore); err == nil {
		fatalf("keystore %s already exists", *keystore)
	}

	w, err := wallet.New()
	if err != nil {
		fatalf("generate key: %v", err)
	}
	if err := w.Save(*keystore, *password, time.Now().Unix()); err != nil {
		fatalf("save keystore: %v", err)
	}
	fmt.Printf("Created %s\nAddress: %s\n", *keystore, w.Address.Hex())
}

func cmdWalletShow(args []string) {
	fs := flag.NewFlagSet("wallet-show", flag.ExitOnError)
	_, keystore, password := commonFlags(fs)
	fs.Parse(args)

	w := openWallet(*keystore, *password)
	fmt.Printf("Address: %s\n", w.Address.Hex())
}

func cmdDeposit(args []string) {
	fs := flag.NewFlagSet("deposit", flag.ExitOnError)
	server, keystore, password := commonFlags(fs)
	amount := fs.String("amount", "", "amount in wei")
	fs.Parse(args)

	if _, ok := new(big.Int).SetString(*amount, 10); !ok {
		fatalf("--amount must be a decimal wei value")
	}
	w := openWallet(*keystore, *password)
	doSigned(w, http.MethodPost, *server+"/api/deposit", map[string]string{"amount": *amount})
}

func cmdProtocol(args []string) {
	fs := flag.NewFlagSet("protocol", flag.ExitOnError)
	server, keystore, password := commonFlags(fs)
	text := fs.String("text", "", "protocol description")
	file := fs.String("file", "", "file containing the protocol description")
	fs.Parse(args)

	description := *text
	if description == "" && *file != "" {
		data, err := os.ReadFile(*file)
		if err != nil {
			fatalf("read %s: %v", *file, err)
		}
		description = string(data)
	}
	if description == "" {
		fatalf("provide --text or --file")
	}

	w := openWallet(*keystore, *password)
	doSigned(w, http.MethodPost, *server+"/api/protocol", map[string]string{"description": description})
}

func cmdRequest(args []string) {
	fs := flag.NewFlagSet("request", flag.ExitOnError)
	server, keystore, password := commonFlags(fs)
	hash := fs.String("hash", "", "protocol hash (0x...)")
	payment := fs.String("payment", "", "payment in wei")
	fs.Parse(args)

	w := openWallet(*keystore, *password)
	doSigned(w, http.MethodPost, *server+"/api/requests", map[string]string{
		"protocol_hash": *hash,
		"payment":       *payment,
	})
}

func cmdReport(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	server, _, _ := commonFlags(fs)
	id := fs.Uint64("id", 0, "request ID")
	fs.Parse(args)

	doGet(http.MethodGet, fmt.Sprintf("%s/api/report/%d", *server, *id))
}

func cmdRelease(args []string) {
	fs := flag.NewFlagSet("release", flag.ExitOnError)
	server, _, _ := commonFlags(fs)
	id := fs.Uint64("id", 0, "request ID")
	fs.Parse(args)

	doGet(http.MethodPost, fmt.Sprintf("%s/api/requests/%d/release", *server, *id))
}

func cmdRefund(args []string) {
	fs := flag.NewFlagSet("refund", flag.ExitOnError)
	server, keystore, password := commonFlags(fs)
	id := fs.Uint64("id", 0, "request ID")
	score := fs.Uint("score", 0, "your recorded feedback score")
	fs.Parse(args)

	w := openWallet(*keystore, *password)
	doSigned(w, http.MethodPost, fmt.Sprintf("%s/api/requests/%d/refund", *server, *id),
		map[string]uint{"score": *score})
}

func cmdMintAuth(args []string) {
	fs := flag.NewFlagSet("mint-auth", flag.ExitOnError)
	_, keystore, password := commonFlags(fs)
	agent := fs.Uint64("agent", 1, "agent ID")
	client := fs.String("client", "", "client address the token is for")
	limit := fs.Uint64("limit", 1, "maximum feedback submissions")
	hours := fs.Int64("hours", 24, "validity in hours")
	chainID := fs.Int64("chain", 31337, "chain ID the token is bound to")
	registryAddr := fs.String("registry", "0x5FbDB2315678afecb367f032d93F642f64180aa3", "identity registry address")
	fs.Parse(args)

	if !common.IsHexAddress(*client) {
		fatalf("--client must be a valid address")
	}
	w := openWallet(*keystore, *password)

	blob, err := reputation.SignAuth(&reputation.FeedbackAuth{
		AgentID:          *agent,
		ClientAddress:    common.HexToAddress(*client),
		IndexLimit:       *limit,
		Expiry:           time.Now().Add(time.Duration(*hours) * time.Hour).Unix(),
		ChainID:          big.NewInt(*chainID),
		IdentityRegistry: common.HexToAddress(*registryAddr),
		SignerAddress:    w.Address,
	}, w.Key)
	if err != nil {
		fatalf("sign auth: %v", err)
	}
	fmt.Println(hexutil.Encode(blob))
}

func cmdFeedback(args []string) {
	fs := flag.NewFlagSet("feedback", flag.ExitOnError)
	server, keystore, password := commonFlags(fs)
	agent := fs.Uint64("agent", 1, "agent ID")
	score := fs.Uint("score", 0, "score 0-100")
	auth := fs.String("auth", "", "hex feedback authorization blob")
	uri := fs.String("uri", "", "optional feedback URI")
	fs.Parse(args)

	w := openWallet(*keystore, *password)
	doSigned(w, http.MethodPost, *server+"/api/feedback", map[string]any{
		"agent_id":     *agent,
		"score":        *score,
		"auth":         *auth,
		"feedback_uri": *uri,
	})
}

func cmdStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	server, _, _ := commonFlags(fs)
	fs.Parse(args)

	doGet(http.MethodGet, *server+"/api/stats")
}
