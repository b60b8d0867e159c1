package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"questchain/cmd/internal/passphrase"
	"questchain/crypto"
	"questchain/native/campaign"
	"questchain/rpc"
)

const (
	defaultPassEnv  = "QUEST_KEYSTORE_PASS"
	defaultEndpoint = "http://127.0.0.1:8545"
	defaultChainID  = 187
)

type command struct {
	name  string
	usage string
	run   func(args []string, out io.Writer) error
}

var commands = []command{
	{"keygen", "create an encrypted keystore", runKeygen},
	{"address", "print the account held by a keystore", runAddress},
	{"whitelist", "build a whitelist root and proofs from an account list", runWhitelist},
	{"sign-authorization", "sign a batch completion authorization", runSignAuthorization},
	{"verify-authorization", "recover the signer of a batch completion authorization", runVerifyAuthorization},
	{"call", "invoke a questd JSON-RPC method", runCall},
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(1)
	}
	for _, cmd := range commands {
		if cmd.name == os.Args[1] {
			if err := cmd.run(os.Args[2:], os.Stdout); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}
	usage(os.Stderr)
	os.Exit(1)
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: questctl <command> [flags]")
	fmt.Fprintln(w)
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-22s %s\n", cmd.name, cmd.usage)
	}
}

func runKeygen(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	keystorePath := fs.String("keystore", "", "Output path for the keystore file")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	force := fs.Bool("force", false, "Overwrite an existing keystore file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *keystorePath == "" {
		return errors.New("--keystore is required")
	}
	if !*force {
		if _, err := os.Stat(*keystorePath); err == nil {
			return fmt.Errorf("keystore file %s already exists (use --force to overwrite)", *keystorePath)
		} else if !os.IsNotExist(err) {
			return err
		}
	}
	pass, err := passphrase.NewSource(*passEnv, "new keystore").WithConfirmation().Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	if err := crypto.SaveToKeystore(*keystorePath, key, pass); err != nil {
		return fmt.Errorf("failed to write keystore: %w", err)
	}
	printAccount(out, key.PubKey().Address().Raw())
	return nil
}

func runAddress(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("address", flag.ContinueOnError)
	keystorePath := fs.String("keystore", "", "Path to the keystore file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	account, err := crypto.KeystoreAccount(*keystorePath)
	if err != nil {
		return err
	}
	printAccount(out, account)
	return nil
}

func printAccount(out io.Writer, account [20]byte) {
	fmt.Fprintf(out, "%s\n0x%s\n", crypto.FromRaw(account).String(), hex.EncodeToString(account[:]))
}

type whitelistOutput struct {
	Root   string              `json:"root"`
	Proofs map[string][]string `json:"proofs"`
}

func runWhitelist(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("whitelist", flag.ContinueOnError)
	input := fs.String("accounts", "", "File with one account per line (- for stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	accounts, err := readAccounts(*input)
	if err != nil {
		return err
	}
	result, err := buildWhitelist(accounts)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func readAccounts(path string) ([][20]byte, error) {
	var reader io.Reader = os.Stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		reader = f
	}
	var accounts [][20]byte
	scanner := bufio.NewScanner(reader)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		account, err := crypto.ParseAccount(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		accounts = append(accounts, account)
	}
	return accounts, scanner.Err()
}

func buildWhitelist(accounts [][20]byte) (*whitelistOutput, error) {
	tree, err := crypto.NewWhitelistTree(accounts)
	if err != nil {
		return nil, err
	}
	root := tree.Root()
	result := &whitelistOutput{Root: "0x" + hex.EncodeToString(root[:]), Proofs: make(map[string][]string, len(accounts))}
	for i, account := range accounts {
		proof, err := tree.Proof(i)
		if err != nil {
			return nil, err
		}
		encoded := make([]string, len(proof))
		for j, node := range proof {
			encoded[j] = "0x" + hex.EncodeToString(node[:])
		}
		result.Proofs[crypto.FromRaw(account).String()] = encoded
	}
	return result, nil
}

type authorizationFlags struct {
	chainID   *uint64
	contract  *string
	account   *string
	campaigns *string
	nonce     *uint64
}

func bindAuthorizationFlags(fs *flag.FlagSet) authorizationFlags {
	return authorizationFlags{
		chainID:   fs.Uint64("chain-id", defaultChainID, "Chain id of the authorization domain"),
		contract:  fs.String("contract", "", "Campaign contract account"),
		account:   fs.String("account", "", "Account the batch is settled for"),
		campaigns: fs.String("campaigns", "", "Comma separated campaign ids"),
		nonce:     fs.Uint64("nonce", 0, "Settlement nonce of the account"),
	}
}

func (f authorizationFlags) resolve() (*campaign.Domain, [20]byte, []uint64, error) {
	contract, err := crypto.ParseAccount(*f.contract)
	if err != nil {
		return nil, [20]byte{}, nil, fmt.Errorf("--contract: %w", err)
	}
	account, err := crypto.ParseAccount(*f.account)
	if err != nil {
		return nil, [20]byte{}, nil, fmt.Errorf("--account: %w", err)
	}
	ids, err := parseCampaignIDs(*f.campaigns)
	if err != nil {
		return nil, [20]byte{}, nil, err
	}
	domain := &campaign.Domain{ChainID: new(big.Int).SetUint64(*f.chainID), Contract: contract}
	return domain, account, ids, nil
}

func parseCampaignIDs(value string) ([]uint64, error) {
	var ids []uint64
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("--campaigns: %q is not a campaign id", part)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, errors.New("--campaigns is required")
	}
	return ids, nil
}

func runSignAuthorization(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("sign-authorization", flag.ContinueOnError)
	keystorePath := fs.String("keystore", "", "Backend authority keystore")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	auth := bindAuthorizationFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	domain, account, ids, err := auth.resolve()
	if err != nil {
		return err
	}
	pass, err := passphrase.NewSource(*passEnv, "authority keystore").Get()
	if err != nil {
		return err
	}
	key, err := crypto.LoadFromKeystore(*keystorePath, pass)
	if err != nil {
		return err
	}
	sig, err := domain.SignAuthorization(key, account, ids, *auth.nonce)
	if err != nil {
		return err
	}
	digest := campaign.BatchDigest(account, ids, *auth.nonce)
	fmt.Fprintf(out, "signature: 0x%s\ndigest:    0x%s\n", hex.EncodeToString(sig), hex.EncodeToString(digest[:]))
	return nil
}

func runVerifyAuthorization(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("verify-authorization", flag.ContinueOnError)
	signature := fs.String("signature", "", "Hex encoded signature")
	auth := bindAuthorizationFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	domain, account, ids, err := auth.resolve()
	if err != nil {
		return err
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(*signature), "0x"))
	if err != nil {
		return fmt.Errorf("--signature: %w", err)
	}
	signer, err := domain.RecoverAuthority(account, ids, *auth.nonce, sig)
	if err != nil {
		return err
	}
	printAccount(out, signer)
	return nil
}

func runCall(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("call", flag.ContinueOnError)
	endpoint := fs.String("endpoint", defaultEndpoint, "questd RPC endpoint")
	keystorePath := fs.String("keystore", "", "Keystore used to sign mutating calls")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	timeout := fs.Duration("timeout", 15*time.Second, "Request timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		return errors.New("usage: questctl call [flags] <method> [params-json]")
	}
	var params interface{}
	if fs.NArg() == 2 {
		raw := json.RawMessage(fs.Arg(1))
		if !json.Valid(raw) {
			return errors.New("params must be valid JSON")
		}
		params = raw
	}

	var key *crypto.PrivateKey
	if *keystorePath != "" {
		pass, err := passphrase.NewSource(*passEnv, "account keystore").Get()
		if err != nil {
			return err
		}
		if key, err = crypto.LoadFromKeystore(*keystorePath, pass); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	var result json.RawMessage
	if err := rpc.NewClient(*endpoint, key).Call(ctx, fs.Arg(0), params, &result); err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
