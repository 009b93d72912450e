package bank

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"

	"auxrewards/core/events"
	nativecommon "auxrewards/native/common"
	"auxrewards/storage"
)

type captureEmitter struct {
	supply []events.TokenSupply
}

func (c *captureEmitter) Emit(evt events.Event) {
	if s, ok := evt.(events.TokenSupply); ok {
		c.supply = append(c.supply, s)
	}
}

func account(seed byte) solana.PublicKey {
	var key solana.PublicKey
	for i := range key {
		key[i] = seed ^ byte(i)
	}
	return key
}

func openLedger(t *testing.T, emitter events.Emitter) (*Ledger, *storage.KV) {
	t.Helper()
	state := storage.NewKV(storage.NewMemDB())
	ledger, err := Open(state, " aux ", account(0xa0), emitter)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	return ledger, state
}

func TestIssuerMintAndBurn(t *testing.T) {
	emitter := &captureEmitter{}
	ledger, _ := openLedger(t, emitter)
	issuer := ledger.Issuer(account(0xa0))
	founder := account(1)
	ctx := context.Background()

	if err := issuer.Mint(ctx, founder, 250); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := issuer.Burn(ctx, founder, 2); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if err := issuer.MintAndBurn(ctx, founder, 1000, 10); err != nil {
		t.Fatalf("mint and burn: %v", err)
	}
	balance, err := ledger.Balance(founder)
	if err != nil || balance != 1238 {
		t.Fatalf("balance = %d err=%v", balance, err)
	}
	supply, err := ledger.Supply()
	if err != nil || supply != 1238 {
		t.Fatalf("supply = %d err=%v", supply, err)
	}
	if ledger.Token() != "AUX" {
		t.Fatalf("token not normalised: %q", ledger.Token())
	}
	if len(emitter.supply) != 4 {
		t.Fatalf("expected 4 supply events, got %d", len(emitter.supply))
	}
	last := emitter.supply[3]
	if last.Reason != events.SupplyReasonBurn || last.Delta != 10 || last.Total != 1238 {
		t.Fatalf("unexpected final supply event %+v", last)
	}
}

func TestIssuerRejectsWrongAuthority(t *testing.T) {
	ledger, _ := openLedger(t, nil)
	issuer := ledger.Issuer(account(0xb0))
	err := issuer.Mint(context.Background(), account(1), 10)
	if !errors.Is(err, nativecommon.ErrInvalidMintAuthority) {
		t.Fatalf("expected ErrInvalidMintAuthority, got %v", err)
	}
	if supply, _ := ledger.Supply(); supply != 0 {
		t.Fatalf("supply changed after rejected mint: %d", supply)
	}
}

func TestOpenRejectsAuthorityChange(t *testing.T) {
	_, state := openLedger(t, nil)
	if _, err := Open(state, "AUX", account(0xb0), nil); !errors.Is(err, nativecommon.ErrInvalidMintAuthority) {
		t.Fatalf("expected ErrInvalidMintAuthority, got %v", err)
	}
	if _, err := Open(state, "AUX", account(0xa0), nil); err != nil {
		t.Fatalf("reopen with registered authority: %v", err)
	}
	if _, err := Open(state, "  ", account(0xa0), nil); !errors.Is(err, ErrTokenRequired) {
		t.Fatalf("expected ErrTokenRequired, got %v", err)
	}
}

func TestBurnInsufficientBalance(t *testing.T) {
	ledger, _ := openLedger(t, nil)
	issuer := ledger.Issuer(account(0xa0))
	ctx := context.Background()
	if err := issuer.Mint(ctx, account(1), 5); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := issuer.Burn(ctx, account(1), 6); !errors.Is(err, nativecommon.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := issuer.Burn(ctx, account(1), 0); !errors.Is(err, ErrAmountRequired) {
		t.Fatalf("expected ErrAmountRequired, got %v", err)
	}
	if err := issuer.MintAndBurn(ctx, account(1), 1, 2); err == nil {
		t.Fatalf("expected burn above mint to be rejected")
	}
	if balance, _ := ledger.Balance(account(1)); balance != 5 {
		t.Fatalf("balance changed after failed burns: %d", balance)
	}
}
