package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"auxrewards/config"
	"auxrewards/crypto"
	"auxrewards/native/kpireward"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("kpirewardctl", flag.ContinueOnError)
	cfgPath := fs.String("config", "kpirewardctl.toml", "path to kpirewardctl configuration")
	if err := fs.Parse(args); err != nil {
		return err
	}
	args = fs.Args()
	if len(args) < 1 {
		printUsage()
		return nil
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	client := newClient(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.RequestTimeoutSecs)*time.Second)
	defer cancel()

	switch args[0] {
	case "pubkey":
		signer, err := cfg.LoadSigner()
		if err != nil {
			return err
		}
		fmt.Println(signer.PubKey().String())
		return nil
	case "keygen":
		if len(args) < 2 {
			return fmt.Errorf("usage: keygen <keystore-path>")
		}
		key, err := crypto.GeneratePrivateKey()
		if err != nil {
			return err
		}
		if err := crypto.SaveToKeystore(args[1], key, cfg.Passphrase()); err != nil {
			return err
		}
		fmt.Println(key.PubKey().String())
		return nil
	case "sign", "submit":
		if len(args) < 4 {
			return fmt.Errorf("usage: %s <founder> <amount> <kpi-type> [timestamp]", args[0])
		}
		signer, err := cfg.LoadSigner()
		if err != nil {
			return err
		}
		claim, err := buildClaim(signer, args[1:], time.Now())
		if err != nil {
			return err
		}
		if args[0] == "sign" {
			return printJSON(claim)
		}
		out, err := client.submit(ctx, claim)
		if err != nil {
			return err
		}
		return printJSON(out)
	case "pause", "resume":
		if err := client.admin(ctx, "POST", "/admin/"+args[0], nil); err != nil {
			return err
		}
		fmt.Printf("kpireward %sd\n", args[0])
		return nil
	case "status":
		var out map[string]any
		if err := client.admin(ctx, "GET", "/admin/status", &out); err != nil {
			return err
		}
		return printJSON(out)
	case "partials":
		var out map[string]any
		if err := client.admin(ctx, "GET", "/admin/reconciliations", &out); err != nil {
			return err
		}
		return printJSON(out)
	case "reconcile":
		if len(args) < 2 {
			return fmt.Errorf("usage: reconcile <record-id>")
		}
		var out map[string]any
		if err := client.admin(ctx, "POST", "/admin/reconciliations/"+args[1]+"/reconcile", &out); err != nil {
			return err
		}
		return printJSON(out)
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// claim mirrors the daemon's claim submission body.
type claim struct {
	Founder   string `json:"founder"`
	Amount    uint64 `json:"amount"`
	KpiType   uint8  `json:"kpiType"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
	Digest    string `json:"digest,omitempty"`
}

func buildClaim(signer *crypto.PrivateKey, args []string, now time.Time) (claim, error) {
	founder, err := crypto.ParseIdentity(args[0])
	if err != nil {
		return claim{}, err
	}
	amount, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return claim{}, fmt.Errorf("invalid amount %q", args[1])
	}
	kpi, err := strconv.ParseUint(args[2], 10, 8)
	if err != nil {
		return claim{}, fmt.Errorf("invalid kpi type %q", args[2])
	}
	ts := now.Unix()
	if len(args) > 3 {
		if ts, err = strconv.ParseInt(args[3], 10, 64); err != nil {
			return claim{}, fmt.Errorf("invalid timestamp %q", args[3])
		}
	}
	digest := kpireward.KpiDigest(founder, amount, uint8(kpi), ts)
	sig, err := signer.Sign(digest[:])
	if err != nil {
		return claim{}, err
	}
	return claim{
		Founder:   founder.String(),
		Amount:    amount,
		KpiType:   uint8(kpi),
		Timestamp: ts,
		Signature: sig.String(),
		Digest:    digest.Hex(),
	}, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printUsage() {
	fmt.Println("Usage: kpirewardctl [-config path] <command> [arguments]")
	fmt.Println("Commands:")
	fmt.Println("  pubkey                                      Print the configured signer public key")
	fmt.Println("  keygen <keystore-path>                      Generate a new signer keystore")
	fmt.Println("  sign <founder> <amount> <kpi> [timestamp]   Print a signed claim")
	fmt.Println("  submit <founder> <amount> <kpi> [timestamp] Sign and submit a claim")
	fmt.Println("  pause | resume                              Toggle issuance (admin)")
	fmt.Println("  status                                      Show program status (admin)")
	fmt.Println("  partials                                    List pending partial issuances (admin)")
	fmt.Println("  reconcile <record-id>                       Complete a partial issuance (admin)")
}
