package bank

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"sync"

	"github.com/gagliardetto/solana-go"

	"auxrewards/core/events"
	nativecommon "auxrewards/native/common"
)

var (
	ErrTokenRequired  = errors.New("bank: token symbol required")
	ErrSupplyOverflow = errors.New("bank: supply overflow")
	ErrAmountRequired = errors.New("bank: amount must be positive")
)

// StateStore is the key/value surface the ledger persists into.
type StateStore interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

type accountRecord struct {
	Balance uint64
}

type supplyRecord struct {
	Total     uint64
	Authority [32]byte
}

// Ledger tracks balances and total supply of a single fungible token. Minting
// requires the authority registered when the token was first opened.
type Ledger struct {
	mu        sync.Mutex
	state     StateStore
	token     string
	authority solana.PublicKey
	emitter   events.Emitter
}

// Open loads the token ledger, registering mintAuthority on first use. A
// mismatch with an already registered authority is rejected.
func Open(state StateStore, token string, mintAuthority solana.PublicKey, emitter events.Emitter) (*Ledger, error) {
	if state == nil {
		return nil, fmt.Errorf("bank: state store required")
	}
	token = normalizeToken(token)
	if token == "" {
		return nil, ErrTokenRequired
	}
	if mintAuthority.IsZero() {
		return nil, fmt.Errorf("bank: mint authority required")
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	var supply supplyRecord
	ok, err := state.KVGet(supplyKey(token), &supply)
	if err != nil {
		return nil, fmt.Errorf("bank: load supply: %w", err)
	}
	if ok {
		if solana.PublicKey(supply.Authority) != mintAuthority {
			return nil, fmt.Errorf("bank: %s registered to a different mint authority: %w", token, nativecommon.ErrInvalidMintAuthority)
		}
	} else {
		supply = supplyRecord{Authority: mintAuthority}
		if err := state.KVPut(supplyKey(token), supply); err != nil {
			return nil, fmt.Errorf("bank: register token: %w", err)
		}
	}
	return &Ledger{state: state, token: token, authority: mintAuthority, emitter: emitter}, nil
}

func (l *Ledger) Token() string { return l.token }

func (l *Ledger) MintAuthority() solana.PublicKey { return l.authority }

// Balance returns the balance of account; unknown accounts hold zero.
func (l *Ledger) Balance(account solana.PublicKey) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance(account)
}

// Supply returns the circulating supply.
func (l *Ledger) Supply() (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	supply, err := l.supply()
	if err != nil {
		return 0, err
	}
	return supply.Total, nil
}

// Issuer returns the mint/burn capability bound to authority. The authority is
// checked on every call so a stale capability cannot mint.
func (l *Ledger) Issuer(authority solana.PublicKey) *Issuer {
	return &Issuer{ledger: l, authority: authority}
}

func (l *Ledger) balance(account solana.PublicKey) (uint64, error) {
	var record accountRecord
	if _, err := l.state.KVGet(balanceKey(l.token, account), &record); err != nil {
		return 0, fmt.Errorf("bank: load balance: %w", err)
	}
	return record.Balance, nil
}

func (l *Ledger) supply() (supplyRecord, error) {
	var record supplyRecord
	ok, err := l.state.KVGet(supplyKey(l.token), &record)
	if err != nil {
		return supplyRecord{}, fmt.Errorf("bank: load supply: %w", err)
	}
	if !ok {
		return supplyRecord{}, fmt.Errorf("bank: %s not registered", l.token)
	}
	return record, nil
}

// apply moves account and supply by credit-debit in one step. Balances are
// written before the supply; a failed supply write restores the balance.
func (l *Ledger) apply(account solana.PublicKey, credit, debit uint64) (supplyRecord, error) {
	balance, err := l.balance(account)
	if err != nil {
		return supplyRecord{}, err
	}
	supply, err := l.supply()
	if err != nil {
		return supplyRecord{}, err
	}
	nextBalance, carry := bits.Add64(balance, credit, 0)
	if carry != 0 {
		return supplyRecord{}, ErrSupplyOverflow
	}
	nextSupply, carry := bits.Add64(supply.Total, credit, 0)
	if carry != 0 {
		return supplyRecord{}, ErrSupplyOverflow
	}
	if nextBalance < debit {
		return supplyRecord{}, fmt.Errorf("bank: burn %d from balance %d: %w", debit, nextBalance, nativecommon.ErrInsufficientBalance)
	}
	nextBalance -= debit
	nextSupply -= debit

	if err := l.state.KVPut(balanceKey(l.token, account), accountRecord{Balance: nextBalance}); err != nil {
		return supplyRecord{}, fmt.Errorf("bank: persist balance: %w", err)
	}
	next := supplyRecord{Total: nextSupply, Authority: supply.Authority}
	if err := l.state.KVPut(supplyKey(l.token), next); err != nil {
		if restoreErr := l.state.KVPut(balanceKey(l.token, account), accountRecord{Balance: balance}); restoreErr != nil {
			return supplyRecord{}, errors.Join(fmt.Errorf("bank: persist supply: %w", err), restoreErr)
		}
		return supplyRecord{}, fmt.Errorf("bank: persist supply: %w", err)
	}
	return next, nil
}

// Issuer is the mint/burn capability handed to the issuance engine.
type Issuer struct {
	ledger    *Ledger
	authority solana.PublicKey
}

func (i *Issuer) checkAuthority() error {
	if i == nil || i.ledger == nil {
		return fmt.Errorf("bank: issuer not configured")
	}
	if i.authority.IsZero() || !i.authority.Equals(i.ledger.authority) {
		return fmt.Errorf("bank: %s: %w", i.ledger.token, nativecommon.ErrInvalidMintAuthority)
	}
	return nil
}

// Mint credits amount to account and grows the supply.
func (i *Issuer) Mint(ctx context.Context, account solana.PublicKey, amount uint64) error {
	return i.MintAndBurn(ctx, account, amount, 0)
}

// Burn debits amount from account and shrinks the supply.
func (i *Issuer) Burn(ctx context.Context, account solana.PublicKey, amount uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := i.checkAuthority(); err != nil {
		return err
	}
	if amount == 0 {
		return ErrAmountRequired
	}
	l := i.ledger
	l.mu.Lock()
	supply, err := l.apply(account, 0, amount)
	l.mu.Unlock()
	if err != nil {
		return err
	}
	l.emitter.Emit(events.TokenSupply{Token: l.token, Total: supply.Total, Delta: amount, Reason: events.SupplyReasonBurn})
	return nil
}

// MintAndBurn credits mintAmount and immediately retires burnAmount from the
// same account as one balance update.
func (i *Issuer) MintAndBurn(ctx context.Context, account solana.PublicKey, mintAmount, burnAmount uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := i.checkAuthority(); err != nil {
		return err
	}
	if account.IsZero() {
		return fmt.Errorf("bank: account required")
	}
	if burnAmount > mintAmount {
		return fmt.Errorf("bank: burn %d exceeds mint %d", burnAmount, mintAmount)
	}
	l := i.ledger
	l.mu.Lock()
	supply, err := l.apply(account, mintAmount, burnAmount)
	l.mu.Unlock()
	if err != nil {
		return err
	}
	l.emitter.Emit(events.TokenSupply{Token: l.token, Total: supply.Total + burnAmount, Delta: mintAmount, Reason: events.SupplyReasonMint})
	if burnAmount > 0 {
		l.emitter.Emit(events.TokenSupply{Token: l.token, Total: supply.Total, Delta: burnAmount, Reason: events.SupplyReasonBurn})
	}
	return nil
}
