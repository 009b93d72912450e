package common

import "errors"

// ErrInvalidMintAuthority is reported by token ledgers when the caller's mint
// authority does not match the authority registered for the token.
var ErrInvalidMintAuthority = errors.New("invalid mint authority")

// ErrInsufficientBalance is reported when a burn exceeds the account balance.
var ErrInsufficientBalance = errors.New("insufficient balance")
