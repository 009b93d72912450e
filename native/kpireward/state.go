package kpireward

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var programStateKey = []byte("kpireward/program")

type programRecord struct {
	Authority   [32]byte
	Signer      [32]byte
	Distributed uint64
	Burned      uint64
}

// ProgramStore persists the singleton ProgramState.
type ProgramStore struct {
	state StateStore
}

func NewProgramStore(state StateStore) *ProgramStore {
	return &ProgramStore{state: state}
}

// Initialize creates the program record with zero totals. A zero signer
// defaults to the authority key.
func (s *ProgramStore) Initialize(authority, signer solana.PublicKey) (*ProgramState, error) {
	if s == nil || s.state == nil {
		return nil, fmt.Errorf("kpireward: program store not configured")
	}
	if authority.IsZero() {
		return nil, fmt.Errorf("kpireward: authority required")
	}
	var existing programRecord
	ok, err := s.state.KVGet(programStateKey, &existing)
	if err != nil {
		return nil, fmt.Errorf("kpireward: load program: %w", err)
	}
	if ok {
		return nil, ErrProgramInitialized
	}
	if signer.IsZero() {
		signer = authority
	}
	program := &ProgramState{Authority: authority, SignerPubkey: signer}
	if err := s.Save(program); err != nil {
		return nil, err
	}
	return program, nil
}

// Load returns the program record or ErrProgramNotInitialized.
func (s *ProgramStore) Load() (*ProgramState, error) {
	if s == nil || s.state == nil {
		return nil, fmt.Errorf("kpireward: program store not configured")
	}
	var stored programRecord
	ok, err := s.state.KVGet(programStateKey, &stored)
	if err != nil {
		return nil, fmt.Errorf("kpireward: load program: %w", err)
	}
	if !ok {
		return nil, ErrProgramNotInitialized
	}
	return &ProgramState{
		Authority:               solana.PublicKey(stored.Authority),
		SignerPubkey:            solana.PublicKey(stored.Signer),
		TotalRewardsDistributed: stored.Distributed,
		TotalTokensBurned:       stored.Burned,
	}, nil
}

func (s *ProgramStore) Save(program *ProgramState) error {
	if program == nil {
		return fmt.Errorf("kpireward: nil program state")
	}
	record := programRecord{
		Authority:   program.Authority,
		Signer:      program.SignerPubkey,
		Distributed: program.TotalRewardsDistributed,
		Burned:      program.TotalTokensBurned,
	}
	if err := s.state.KVPut(programStateKey, record); err != nil {
		return fmt.Errorf("kpireward: persist program: %w", err)
	}
	return nil
}
