package stellar

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/strkey"
	"github.com/stellar/go/txnbuild"
	"github.com/stellar/go/xdr"
)

// txTimeoutSeconds bounds how long a built envelope stays valid
const txTimeoutSeconds = 300

// KeypairSigner signs invocations with a local ed25519 key. Account
// sequence numbers are read from the RPC node at build time.
type KeypairSigner struct {
	kp                *keypair.Full
	rpc               RPCClient
	networkPassphrase string
}

// NewKeypairSigner creates a signer from a secret seed
func NewKeypairSigner(secretKey string, networkPassphrase string, rpc RPCClient) (*KeypairSigner, error) {
	kp, err := keypair.ParseFull(secretKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse secret key: %w", err)
	}
	return &KeypairSigner{kp: kp, rpc: rpc, networkPassphrase: networkPassphrase}, nil
}

func (s *KeypairSigner) Address() string {
	return s.kp.Address()
}

// BuildTransaction builds an unsigned invocation envelope, base64 XDR
func (s *KeypairSigner) BuildTransaction(ctx context.Context, invocation Invocation) (string, error) {
	sequence, err := s.accountSequence(ctx)
	if err != nil {
		return "", err
	}

	contractAddress, err := contractScAddress(invocation.ContractID)
	if err != nil {
		return "", err
	}

	args := make([]xdr.ScVal, 0, len(invocation.Args))
	for i, arg := range invocation.Args {
		converted, err := scValToXDR(&arg)
		if err != nil {
			return "", fmt.Errorf("failed to convert argument %d of %s: %w", i, invocation.Function, err)
		}
		args = append(args, converted)
	}

	op := &txnbuild.InvokeHostFunction{
		HostFunction: xdr.HostFunction{
			Type: xdr.HostFunctionTypeHostFunctionTypeInvokeContract,
			InvokeContract: &xdr.InvokeContractArgs{
				ContractAddress: contractAddress,
				FunctionName:    xdr.ScSymbol(invocation.Function),
				Args:            args,
			},
		},
		SourceAccount: s.kp.Address(),
	}

	account := txnbuild.SimpleAccount{AccountID: s.kp.Address(), Sequence: sequence}
	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        &account,
		IncrementSequenceNum: true,
		Operations:           []txnbuild.Operation{op},
		BaseFee:              txnbuild.MinBaseFee,
		Preconditions:        txnbuild.Preconditions{TimeBounds: txnbuild.NewTimeout(txTimeoutSeconds)},
	})
	if err != nil {
		return "", fmt.Errorf("failed to build transaction: %w", err)
	}

	return tx.Base64()
}

// SignTransaction applies simulation resources to the envelope and signs it
// for the configured network
func (s *KeypairSigner) SignTransaction(ctx context.Context, envelopeXDR string, simulation *SimulateResponse) (string, error) {
	generic, err := txnbuild.TransactionFromXDR(envelopeXDR)
	if err != nil {
		return "", fmt.Errorf("failed to parse envelope: %w", err)
	}
	tx, ok := generic.Transaction()
	if !ok {
		return "", fmt.Errorf("envelope is not a simple transaction")
	}

	ops := tx.Operations()
	if len(ops) != 1 {
		return "", fmt.Errorf("expected a single invocation, got %d operations", len(ops))
	}
	invoke, ok := ops[0].(*txnbuild.InvokeHostFunction)
	if !ok {
		return "", fmt.Errorf("operation is not a host function invocation")
	}

	var sorobanData xdr.SorobanTransactionData
	if err := xdr.SafeUnmarshalBase64(simulation.TransactionDataXDR, &sorobanData); err != nil {
		return "", fmt.Errorf("failed to parse simulated transaction data: %w", err)
	}
	invoke.Ext = xdr.TransactionExt{V: 1, SorobanData: &sorobanData}

	if len(simulation.Results) > 0 {
		auth, err := decodeAuthEntries(simulation.Results[0].Auth)
		if err != nil {
			return "", err
		}
		invoke.Auth = auth
	}

	minResourceFee, err := strconv.ParseInt(simulation.MinResourceFee, 10, 64)
	if err != nil {
		return "", fmt.Errorf("failed to parse min resource fee %q: %w", simulation.MinResourceFee, err)
	}

	// The sequence was already claimed when the envelope was built
	account := txnbuild.SimpleAccount{AccountID: s.kp.Address(), Sequence: tx.SequenceNumber() - 1}
	signedTx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        &account,
		IncrementSequenceNum: true,
		Operations:           []txnbuild.Operation{invoke},
		BaseFee:              txnbuild.MinBaseFee + minResourceFee,
		Preconditions:        txnbuild.Preconditions{TimeBounds: txnbuild.NewTimeout(txTimeoutSeconds)},
	})
	if err != nil {
		return "", fmt.Errorf("failed to rebuild transaction: %w", err)
	}

	signedTx, err = signedTx.Sign(s.networkPassphrase, s.kp)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	return signedTx.Base64()
}

// accountSequence reads the signing account's current sequence number
func (s *KeypairSigner) accountSequence(ctx context.Context) (int64, error) {
	accountID := xdr.MustAddress(s.kp.Address())
	key := xdr.LedgerKey{
		Type:    xdr.LedgerEntryTypeAccount,
		Account: &xdr.LedgerKeyAccount{AccountId: accountID},
	}
	encodedKey, err := xdr.MarshalBase64(key)
	if err != nil {
		return 0, fmt.Errorf("failed to encode account key: %w", err)
	}

	resp, err := s.rpc.GetLedgerEntries(ctx, []string{encodedKey})
	if err != nil {
		return 0, err
	}
	if len(resp.Entries) == 0 {
		return 0, fmt.Errorf("account %s not found on ledger", s.kp.Address())
	}

	var entry xdr.LedgerEntryData
	if err := xdr.SafeUnmarshalBase64(resp.Entries[0].XDR, &entry); err != nil {
		return 0, fmt.Errorf("failed to parse account entry: %w", err)
	}
	accountEntry, ok := entry.GetAccount()
	if !ok {
		return 0, fmt.Errorf("ledger entry for %s is not an account", s.kp.Address())
	}

	return int64(accountEntry.SeqNum), nil
}

func decodeAuthEntries(encoded []string) ([]xdr.SorobanAuthorizationEntry, error) {
	entries := make([]xdr.SorobanAuthorizationEntry, 0, len(encoded))
	for _, raw := range encoded {
		var entry xdr.SorobanAuthorizationEntry
		if err := xdr.SafeUnmarshalBase64(raw, &entry); err != nil {
			return nil, fmt.Errorf("failed to parse auth entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// contractScAddress decodes a C... contract id into an ScAddress
func contractScAddress(contractID string) (xdr.ScAddress, error) {
	decoded, err := strkey.Decode(strkey.VersionByteContract, contractID)
	if err != nil {
		return xdr.ScAddress{}, fmt.Errorf("invalid contract id %q: %w", contractID, err)
	}
	var hash xdr.ContractId
	copy(hash[:], decoded)
	return xdr.ScAddress{
		Type:       xdr.ScAddressTypeScAddressTypeContract,
		ContractId: &hash,
	}, nil
}

// accountScAddress decodes a G... account id into an ScAddress
func accountScAddress(address string) (xdr.ScAddress, error) {
	accountID := xdr.AccountId{}
	if err := accountID.SetAddress(address); err != nil {
		return xdr.ScAddress{}, fmt.Errorf("invalid account address %q: %w", address, err)
	}
	return xdr.ScAddress{
		Type:      xdr.ScAddressTypeScAddressTypeAccount,
		AccountId: &accountID,
	}, nil
}

// scValToXDR converts the JSON ScVal model into its XDR form for
// transaction building
func scValToXDR(v *ScVal) (xdr.ScVal, error) {
	switch {
	case v == nil:
		return xdr.ScVal{Type: xdr.ScValTypeScvVoid}, nil
	case v.Bool != nil:
		b := *v.Bool
		return xdr.ScVal{Type: xdr.ScValTypeScvBool, B: &b}, nil
	case v.U32 != nil:
		u := xdr.Uint32(*v.U32)
		return xdr.ScVal{Type: xdr.ScValTypeScvU32, U32: &u}, nil
	case v.U64 != nil:
		u := xdr.Uint64(*v.U64)
		return xdr.ScVal{Type: xdr.ScValTypeScvU64, U64: &u}, nil
	case v.I128 != nil:
		parts := xdr.Int128Parts{
			Hi: xdr.Int64(v.I128.Hi),
			Lo: xdr.Uint64(v.I128.Lo),
		}
		return xdr.ScVal{Type: xdr.ScValTypeScvI128, I128: &parts}, nil
	case v.Symbol != nil:
		sym := xdr.ScSymbol(*v.Symbol)
		return xdr.ScVal{Type: xdr.ScValTypeScvSymbol, Sym: &sym}, nil
	case v.String != nil:
		str := xdr.ScString(*v.String)
		return xdr.ScVal{Type: xdr.ScValTypeScvString, Str: &str}, nil
	case v.Bytes != nil:
		raw, err := hex.DecodeString(*v.Bytes)
		if err != nil {
			return xdr.ScVal{}, fmt.Errorf("invalid bytes encoding: %w", err)
		}
		bytes := xdr.ScBytes(raw)
		return xdr.ScVal{Type: xdr.ScValTypeScvBytes, Bytes: &bytes}, nil
	case v.Address != nil:
		address, err := anyScAddress(*v.Address)
		if err != nil {
			return xdr.ScVal{}, err
		}
		return xdr.ScVal{Type: xdr.ScValTypeScvAddress, Address: &address}, nil
	case v.Vec != nil:
		elements := make([]xdr.ScVal, 0, len(*v.Vec))
		for i := range *v.Vec {
			converted, err := scValToXDR(&(*v.Vec)[i])
			if err != nil {
				return xdr.ScVal{}, err
			}
			elements = append(elements, converted)
		}
		vec := xdr.ScVec(elements)
		vecPtr := &vec
		return xdr.ScVal{Type: xdr.ScValTypeScvVec, Vec: &vecPtr}, nil
	case v.Map != nil:
		entries := make([]xdr.ScMapEntry, 0, len(*v.Map))
		for i := range *v.Map {
			key, err := scValToXDR(&(*v.Map)[i].Key)
			if err != nil {
				return xdr.ScVal{}, err
			}
			val, err := scValToXDR(&(*v.Map)[i].Val)
			if err != nil {
				return xdr.ScVal{}, err
			}
			entries = append(entries, xdr.ScMapEntry{Key: key, Val: val})
		}
		m := xdr.ScMap(entries)
		mPtr := &m
		return xdr.ScVal{Type: xdr.ScValTypeScvMap, Map: &mPtr}, nil
	default:
		return xdr.ScVal{Type: xdr.ScValTypeScvVoid}, nil
	}
}

// anyScAddress decodes either address flavor by its strkey version byte
func anyScAddress(address string) (xdr.ScAddress, error) {
	if strkey.IsValidContractAddress(address) {
		return contractScAddress(address)
	}
	return accountScAddress(address)
}

var _ Signer = (*KeypairSigner)(nil)
