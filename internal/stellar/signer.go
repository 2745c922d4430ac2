package stellar

import "context"

// Invocation describes one contract function call
type Invocation struct {
	ContractID string
	Function   string
	Args       []ScVal
}

// Signer builds and signs Soroban transaction envelopes. Key handling and
// XDR assembly stay behind this interface so the contract client never
// touches secret material.
//
//go:generate mockgen -source=signer.go -destination=../mocks/signer.go -package=mocks -mock_names=Signer=MockSigner
type Signer interface {
	// Address returns the account address of the signing key
	Address() string
	// BuildTransaction builds an unsigned invocation envelope, base64 XDR
	BuildTransaction(ctx context.Context, invocation Invocation) (string, error)
	// SignTransaction applies simulation resources to the envelope and signs
	// it for the configured network
	SignTransaction(ctx context.Context, envelopeXDR string, simulation *SimulateResponse) (string, error)
}
