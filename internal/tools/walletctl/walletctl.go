// Package walletctl 实现 walletctl 命令：本地身份 + relay 客户端的端到端流程。
package walletctl

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ponte-cripto/notus-relay/internal/app/relay"
	"github.com/ponte-cripto/notus-relay/internal/app/session"
	"github.com/ponte-cripto/notus-relay/internal/client"
	"github.com/ponte-cripto/notus-relay/internal/config"
	"github.com/ponte-cripto/notus-relay/internal/infra/keystore"
)

// Config 是解析后的全局参数与子命令。
type Config struct {
	RelayURL string
	Store    string
	Timeout  time.Duration
	Command  string
	Args     []string
}

// ParseConfig 解析全局 flag，剩余参数的第一个是子命令。
func ParseConfig(fs *flag.FlagSet, args []string, defaults config.Client) (Config, error) {
	cfg := Config{RelayURL: defaults.RelayURL, Store: defaults.Store, Timeout: defaults.Timeout}
	fs.StringVar(&cfg.RelayURL, "relay", cfg.RelayURL, "relay base url")
	fs.StringVar(&cfg.Store, "store", cfg.Store, "identity store (memory:, file:<path>, sqlite:<path>, redis://host:port/db)")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "request timeout")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	rest := fs.Args()
	if len(rest) == 0 {
		return Config{}, fmt.Errorf("command is required (%s)", strings.Join(Commands(), ", "))
	}
	cfg.Command = rest[0]
	cfg.Args = rest[1:]
	return cfg, nil
}

type command func(ctx context.Context, e *env, args []string) error

type env struct {
	out     io.Writer
	session *session.Session
	client  *client.Client
}

var commands = map[string]command{
	"whoami":      runWhoami,
	"sign":        runSign,
	"register":    runRegister,
	"lookup":      runLookup,
	"portfolio":   runPortfolio,
	"history":     runHistory,
	"kyc-start":   runKYCStart,
	"kyc-status":  runKYCStatus,
	"kyc-process": runKYCProcess,
	"quote":       runQuote,
	"reset":       runReset,
}

// Commands 返回全部子命令名。
func Commands() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run 执行子命令并把结果写到 out。
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if out == nil {
		return errors.New("output is required")
	}
	cmd, ok := commands[cfg.Command]
	if !ok {
		return fmt.Errorf("unknown command %q", cfg.Command)
	}
	store, err := keystore.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer keystore.Close(store)
	sess, err := session.New(store)
	if err != nil {
		return err
	}
	c, err := client.New(client.Config{BaseURL: cfg.RelayURL, Timeout: cfg.Timeout})
	if err != nil {
		return err
	}
	return cmd(ctx, &env{out: out, session: sess, client: c}, cfg.Args)
}

func runWhoami(ctx context.Context, e *env, args []string) error {
	account, err := e.session.Bootstrap(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(e.out, account.Hex())
	return err
}

func runSign(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	message := fs.String("message", "", "message to sign (EIP-191)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := e.session.Bootstrap(ctx); err != nil {
		return err
	}
	sig, err := e.session.SignMessage([]byte(*message))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(e.out, hexutil.Encode(sig))
	return err
}

func runRegister(ctx context.Context, e *env, args []string) error {
	account, err := e.session.Bootstrap(ctx)
	if err != nil {
		return err
	}
	wallet, obj, err := e.client.RegisterWallet(ctx, account.Hex())
	if err != nil {
		return err
	}
	e.session.SetWallet(wallet)
	return printJSON(e.out, obj)
}

func runLookup(ctx context.Context, e *env, args []string) error {
	if _, err := lookupWallet(ctx, e); err != nil {
		return err
	}
	w, err := e.session.RequireWallet()
	if err != nil {
		return err
	}
	return printJSON(e.out, w)
}

// lookupWallet 按本地账户查询智能钱包并写入 session。
func lookupWallet(ctx context.Context, e *env) (client.Object, error) {
	account, err := e.session.Bootstrap(ctx)
	if err != nil {
		return nil, err
	}
	wallet, obj, err := e.client.LookupWallet(ctx, account.Hex())
	if err != nil {
		return nil, err
	}
	e.session.SetWallet(wallet)
	return obj, nil
}

// walletAddress 优先使用 -wallet，否则通过 EOA 查询。
func walletAddress(ctx context.Context, e *env, name string, args []string) (string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	wallet := fs.String("wallet", "", "smart wallet address (looked up by EOA when empty)")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if addr := strings.TrimSpace(*wallet); addr != "" {
		return addr, nil
	}
	if _, err := lookupWallet(ctx, e); err != nil {
		return "", err
	}
	w, err := e.session.RequireWallet()
	if err != nil {
		return "", err
	}
	return w.AccountAbstraction, nil
}

func runPortfolio(ctx context.Context, e *env, args []string) error {
	addr, err := walletAddress(ctx, e, "portfolio", args)
	if err != nil {
		return err
	}
	obj, err := e.client.Portfolio(ctx, addr)
	if err != nil {
		return err
	}
	return printJSON(e.out, obj)
}

func runHistory(ctx context.Context, e *env, args []string) error {
	addr, err := walletAddress(ctx, e, "history", args)
	if err != nil {
		return err
	}
	obj, err := e.client.History(ctx, addr)
	if err != nil {
		return err
	}
	return printJSON(e.out, obj)
}

func runQuote(ctx context.Context, e *env, args []string) error {
	addr, err := walletAddress(ctx, e, "quote", args)
	if err != nil {
		return err
	}
	obj, err := e.client.DepositQuote(ctx, addr)
	if err != nil {
		return err
	}
	return printJSON(e.out, obj)
}

func runKYCStart(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("kyc-start", flag.ContinueOnError)
	var p relay.KYCProfile
	fs.StringVar(&p.FirstName, "first-name", "", "first name")
	fs.StringVar(&p.LastName, "last-name", "", "last name")
	fs.StringVar(&p.BirthDate, "birth-date", "", "birth date (YYYY-MM-DD)")
	fs.StringVar(&p.Email, "email", "", "email")
	fs.StringVar(&p.DocumentID, "document-id", "", "document number")
	fs.StringVar(&p.DocumentCategory, "document-category", "DRIVERS_LICENSE", "document category")
	fs.StringVar(&p.DocumentCountry, "document-country", "BRAZIL", "document country")
	fs.StringVar(&p.Address, "address", "", "street address")
	fs.StringVar(&p.City, "city", "", "city")
	fs.StringVar(&p.State, "state", "", "state")
	fs.StringVar(&p.PostalCode, "postal-code", "", "postal code")
	fs.BoolVar(&p.LivenessRequired, "liveness", false, "require a liveness check")
	if err := fs.Parse(args); err != nil {
		return err
	}
	obj, err := e.client.StartKYC(ctx, p)
	if err != nil {
		return err
	}
	if id := sessionID(obj); id != "" {
		e.session.SetKYCSession(id)
	}
	return printJSON(e.out, obj)
}

func kycSessionFlag(e *env, name string, args []string) (string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	id := fs.String("session", "", "kyc session id")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if strings.TrimSpace(*id) != "" {
		e.session.SetKYCSession(*id)
	}
	return e.session.RequireKYCSession()
}

func runKYCStatus(ctx context.Context, e *env, args []string) error {
	id, err := kycSessionFlag(e, "kyc-status", args)
	if err != nil {
		return err
	}
	obj, err := e.client.KYCStatus(ctx, id)
	if err != nil {
		return err
	}
	return printJSON(e.out, obj)
}

func runKYCProcess(ctx context.Context, e *env, args []string) error {
	id, err := kycSessionFlag(e, "kyc-process", args)
	if err != nil {
		return err
	}
	obj, err := e.client.ProcessKYC(ctx, id)
	if err != nil {
		return err
	}
	return printJSON(e.out, obj)
}

func runReset(ctx context.Context, e *env, args []string) error {
	if err := e.session.Reset(ctx); err != nil {
		return err
	}
	_, err := fmt.Fprintln(e.out, "local identity removed")
	return err
}

func sessionID(obj client.Object) string {
	s, ok := obj["session"].(map[string]any)
	if !ok {
		return ""
	}
	id, _ := s["id"].(string)
	return id
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
