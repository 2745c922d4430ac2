package stellar

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/synapse-market/synapse-core/internal/adapter"
	"github.com/synapse-market/synapse-core/internal/domain"
	"github.com/synapse-market/synapse-core/internal/logger"
)

const (
	txPollInterval = time.Second
	txPollAttempts = 30
)

// StorePlanArgs carries the metadata written on chain for a new plan.
// Content itself is already pinned; only its hash and CID go on chain.
type StorePlanArgs struct {
	PlanID       string // 16-byte hex id
	ContentHash  string
	Contributor  string
	Title        string
	Description  string
	Tags         []string
	Domain       string
	Language     string
	Framework    string
	QualityScore int
	IPFSCID      string
}

// PlanRecord is a plan as stored by the contract
type PlanRecord struct {
	ID            string
	ContentHash   string
	Contributor   string
	Title         string
	Description   string
	Tags          []string
	Domain        string
	Language      string
	Framework     string
	QualityScore  int
	IPFSCID       string
	Tier          domain.StorageTier
	PurchaseCount int64
}

// PurchaseRecord is one settled purchase as recorded by the contract
type PurchaseRecord struct {
	Buyer                   string
	AmountStroops           int64
	ContributorShareStroops int64
	OperatorShareStroops    int64
	Ledger                  uint64
}

// ContractClient invokes the knowledge base contract
//
//go:generate mockgen -source=contract.go -destination=../mocks/contract.go -package=mocks -mock_names=ContractClient=MockContractClient
type ContractClient interface {
	// StorePlan writes plan metadata on chain
	StorePlan(ctx context.Context, args StorePlanArgs) (*domain.ChainReceipt, error)
	// GetPlan reads one plan record; domain.ErrPlanNotFound when absent
	GetPlan(ctx context.Context, planID string) (*PlanRecord, error)
	// ContentExists checks whether content with the hash is already stored
	ContentExists(ctx context.Context, contentHash string) (bool, error)
	// PurchasePlan pays for a plan; the contract splits the payment atomically
	PurchasePlan(ctx context.Context, planID string, buyer string, amountStroops int64) (*domain.ChainReceipt, error)
	// GetContributorPlans lists the plan ids owned by a contributor
	GetContributorPlans(ctx context.Context, contributor string) ([]string, error)
	// GetPurchases lists the settled purchases of a plan
	GetPurchases(ctx context.Context, planID string) ([]PurchaseRecord, error)
}

// Client is the RPC-backed contract client
type Client struct {
	rpc        RPCClient
	signer     Signer
	contractID string
	clock      adapter.Clock
}

// NewClient creates a contract client
func NewClient(rpc RPCClient, signer Signer, contractID string, clock adapter.Clock) *Client {
	return &Client{rpc: rpc, signer: signer, contractID: contractID, clock: clock}
}

// StorePlan writes plan metadata on chain. The contract takes the invoking
// contributor address plus one input struct, which renders as an ScVal map
// with its entries sorted by field name.
func (c *Client) StorePlan(ctx context.Context, args StorePlanArgs) (*domain.ChainReceipt, error) {
	// The contract scores quality as u32; unscored submissions clamp to 0
	quality := args.QualityScore
	if quality < 0 {
		quality = 0
	}

	input := ScVal{Map: &[]ScMapEntry{
		{Key: SymbolVal("content_hash"), Val: BytesVal(args.ContentHash)},
		{Key: SymbolVal("description"), Val: StringVal(args.Description)},
		{Key: SymbolVal("domain"), Val: StringVal(args.Domain)},
		{Key: SymbolVal("framework"), Val: StringVal(args.Framework)},
		{Key: SymbolVal("id"), Val: BytesVal(args.PlanID)},
		{Key: SymbolVal("ipfs_cid"), Val: StringVal(args.IPFSCID)},
		{Key: SymbolVal("language"), Val: StringVal(args.Language)},
		{Key: SymbolVal("quality_score"), Val: U32Val(uint32(quality))},
		{Key: SymbolVal("tags"), Val: VecVal(args.Tags)},
		{Key: SymbolVal("title"), Val: StringVal(args.Title)},
	}}

	invocation := Invocation{
		ContractID: c.contractID,
		Function:   "store_plan",
		Args: []ScVal{
			AddressVal(args.Contributor),
			input,
		},
	}
	return c.submit(ctx, invocation)
}

// GetPlan reads one plan record via simulation, without submitting anything
func (c *Client) GetPlan(ctx context.Context, planID string) (*PlanRecord, error) {
	value, err := c.simulateCall(ctx, "get_plan", []ScVal{BytesVal(planID)})
	if err != nil {
		return nil, err
	}
	// The contract returns Option<Plan>; None renders as void
	if value.IsVoid() {
		return nil, domain.ErrPlanNotFound
	}
	return decodePlanRecord(value)
}

// ContentExists checks whether content with the hash is already stored
func (c *Client) ContentExists(ctx context.Context, contentHash string) (bool, error) {
	value, err := c.simulateCall(ctx, "content_exists", []ScVal{BytesVal(contentHash)})
	if err != nil {
		return false, err
	}
	if value.Bool == nil {
		return false, fmt.Errorf("content_exists returned a non-boolean value")
	}
	return *value.Bool, nil
}

// PurchasePlan pays for a plan. The contract moves the asset and splits the
// payment between contributor and operator in the same transaction.
func (c *Client) PurchasePlan(ctx context.Context, planID string, buyer string, amountStroops int64) (*domain.ChainReceipt, error) {
	invocation := Invocation{
		ContractID: c.contractID,
		Function:   "purchase_plan",
		Args: []ScVal{
			AddressVal(buyer),
			BytesVal(planID),
			I128Val(amountStroops),
		},
	}
	return c.submit(ctx, invocation)
}

// GetContributorPlans lists the plan ids owned by a contributor. The
// contract keeps only the id index; callers resolve records via GetPlan.
func (c *Client) GetContributorPlans(ctx context.Context, contributor string) ([]string, error) {
	value, err := c.simulateCall(ctx, "get_contributor_plans", []ScVal{AddressVal(contributor)})
	if err != nil {
		return nil, err
	}
	if value.IsVoid() || value.Vec == nil {
		return nil, nil
	}

	ids := make([]string, 0, len(*value.Vec))
	for i := range *value.Vec {
		id, err := (*value.Vec)[i].BytesHex()
		if err != nil {
			return nil, fmt.Errorf("plan id %d: %w", i, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// GetPurchases lists the settled purchases of a plan
func (c *Client) GetPurchases(ctx context.Context, planID string) ([]PurchaseRecord, error) {
	value, err := c.simulateCall(ctx, "get_purchases", []ScVal{BytesVal(planID)})
	if err != nil {
		return nil, err
	}
	if value.IsVoid() || value.Vec == nil {
		return nil, nil
	}

	records := make([]PurchaseRecord, 0, len(*value.Vec))
	for i := range *value.Vec {
		record, err := decodePurchaseRecord(&(*value.Vec)[i])
		if err != nil {
			return nil, fmt.Errorf("purchase %d: %w", i, err)
		}
		records = append(records, *record)
	}
	return records, nil
}

// simulateCall runs a read-only contract function through simulation
func (c *Client) simulateCall(ctx context.Context, function string, args []ScVal) (*ScVal, error) {
	envelope, err := c.signer.BuildTransaction(ctx, Invocation{
		ContractID: c.contractID,
		Function:   function,
		Args:       args,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build %s transaction: %w", function, err)
	}

	sim, err := c.rpc.SimulateTransaction(ctx, envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to simulate %s: %w", function, err)
	}
	if sim.Error != "" {
		return nil, fmt.Errorf("%s simulation failed: %s", function, sim.Error)
	}
	if len(sim.Results) == 0 {
		return nil, fmt.Errorf("%s simulation returned no result", function)
	}

	return &sim.Results[0].ReturnValue, nil
}

// submit runs the full write path: build, simulate, sign, send, confirm
func (c *Client) submit(ctx context.Context, invocation Invocation) (*domain.ChainReceipt, error) {
	envelope, err := c.signer.BuildTransaction(ctx, invocation)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s transaction: %w", invocation.Function, err)
	}

	sim, err := c.rpc.SimulateTransaction(ctx, envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to simulate %s: %w", invocation.Function, err)
	}
	if sim.Error != "" {
		return nil, fmt.Errorf("%s simulation failed: %s", invocation.Function, sim.Error)
	}

	signed, err := c.signer.SignTransaction(ctx, envelope, sim)
	if err != nil {
		return nil, fmt.Errorf("failed to sign %s transaction: %w", invocation.Function, err)
	}

	sent, err := c.rpc.SendTransaction(ctx, signed)
	if err != nil {
		return nil, fmt.Errorf("failed to send %s transaction: %w", invocation.Function, err)
	}
	if sent.Status == "ERROR" {
		return nil, fmt.Errorf("%s transaction rejected: %s", invocation.Function, sent.ErrorResultXDR)
	}

	receipt := &domain.ChainReceipt{TxHash: sent.Hash, ContractID: c.contractID}
	if err := c.awaitConfirmation(ctx, sent.Hash); err != nil {
		return nil, err
	}
	return receipt, nil
}

// awaitConfirmation polls getTransaction until the transaction settles
func (c *Client) awaitConfirmation(ctx context.Context, hash string) error {
	for attempt := 0; attempt < txPollAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		tx, err := c.rpc.GetTransaction(ctx, hash)
		if err != nil {
			// Some RPC nodes fail to render exotic result metadata even
			// though the transaction itself succeeded
			if strings.Contains(err.Error(), "Bad union switch") {
				logger.WarnCtx(ctx, "transaction result unparseable, assuming success",
					zap.String("tx_hash", hash), zap.Error(err))
				return nil
			}
			return fmt.Errorf("failed to poll transaction %s: %w", hash, err)
		}

		switch tx.Status {
		case TxStatusSuccess:
			return nil
		case TxStatusFailed:
			return fmt.Errorf("transaction %s failed on chain", hash)
		}

		c.clock.Sleep(txPollInterval)
	}

	return fmt.Errorf("transaction %s not confirmed after %d attempts", hash, txPollAttempts)
}

func mapText(value *ScVal, key string) (string, error) {
	v, ok := value.MapGet(key)
	if !ok {
		return "", fmt.Errorf("missing field %q", key)
	}
	s, err := v.Text()
	if err != nil {
		return "", fmt.Errorf("field %s: %w", key, err)
	}
	return s, nil
}

func mapInt64(value *ScVal, key string) int64 {
	v, ok := value.MapGet(key)
	if !ok {
		return 0
	}
	n, _ := v.Int64()
	return n
}

// decodePlanRecord decodes a PlanMeta struct, which renders as an ScVal map
func decodePlanRecord(value *ScVal) (*PlanRecord, error) {
	idVal, ok := value.MapGet("id")
	if !ok {
		return nil, fmt.Errorf("missing field %q", "id")
	}
	id, err := idVal.BytesHex()
	if err != nil {
		return nil, fmt.Errorf("field id: %w", err)
	}

	hashVal, ok := value.MapGet("content_hash")
	if !ok {
		return nil, fmt.Errorf("missing field %q", "content_hash")
	}
	contentHash, err := hashVal.BytesHex()
	if err != nil {
		contentHash, err = hashVal.Text()
		if err != nil {
			return nil, fmt.Errorf("field content_hash: %w", err)
		}
	}

	contributorVal, ok := value.MapGet("contributor")
	if !ok {
		return nil, fmt.Errorf("missing field %q", "contributor")
	}
	contributor, err := contributorVal.AddressString()
	if err != nil {
		return nil, fmt.Errorf("field contributor: %w", err)
	}

	title, err := mapText(value, "title")
	if err != nil {
		return nil, err
	}
	ipfsCID, err := mapText(value, "ipfs_cid")
	if err != nil {
		return nil, err
	}

	// Classification fields joined the struct after launch; older records
	// may simply lack them
	description, _ := mapText(value, "description")
	planDomain, _ := mapText(value, "domain")
	language, _ := mapText(value, "language")
	framework, _ := mapText(value, "framework")

	var tags []string
	if tagsVal, ok := value.MapGet("tags"); ok {
		tags, err = tagsVal.StringSlice()
		if err != nil {
			return nil, fmt.Errorf("field tags: %w", err)
		}
	}

	// The tier enum renders as a one-element vec of the variant symbol
	var tier string
	if tierVal, ok := value.MapGet("tier"); ok {
		tier = tierName(tierVal)
	}

	return &PlanRecord{
		ID:            id,
		ContentHash:   contentHash,
		Contributor:   contributor,
		Title:         title,
		Description:   description,
		Tags:          tags,
		Domain:        planDomain,
		Language:      language,
		Framework:     framework,
		QualityScore:  int(mapInt64(value, "quality_score")),
		IPFSCID:       ipfsCID,
		Tier:          domain.ParseTier(tier),
		PurchaseCount: mapInt64(value, "purchase_count"),
	}, nil
}

// decodePurchaseRecord decodes a PurchaseRecord struct map
func decodePurchaseRecord(value *ScVal) (*PurchaseRecord, error) {
	buyerVal, ok := value.MapGet("buyer")
	if !ok {
		return nil, fmt.Errorf("missing field %q", "buyer")
	}
	buyer, err := buyerVal.AddressString()
	if err != nil {
		return nil, fmt.Errorf("field buyer: %w", err)
	}

	amountVal, ok := value.MapGet("amount_stroops")
	if !ok {
		return nil, fmt.Errorf("missing field %q", "amount_stroops")
	}
	amount, err := amountVal.Int64()
	if err != nil {
		return nil, fmt.Errorf("field amount_stroops: %w", err)
	}

	return &PurchaseRecord{
		Buyer:                   buyer,
		AmountStroops:           amount,
		ContributorShareStroops: mapInt64(value, "contributor_share"),
		OperatorShareStroops:    mapInt64(value, "operator_share"),
		Ledger:                  uint64(mapInt64(value, "ledger")),
	}, nil
}

var _ ContractClient = (*Client)(nil)
