package ledger

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/repledger/backend/internal/config"
	"github.com/repledger/backend/internal/models"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/liteclient"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/ton"
	"github.com/xssnick/tonutils-go/ton/wallet"
	"github.com/xssnick/tonutils-go/tvm/cell"
	"go.uber.org/zap"
)

const (
	txBatchSize       = 100
	confirmPollPeriod = 3 * time.Second
)

// TON records awards as text-comment internal messages to the reputation
// contract and reads them back by scanning the contract's transactions.
type TON struct {
	api        ton.APIClientWrapped
	contract   *address.Address
	minter     *wallet.Wallet
	fee        tlb.Coins
	organizers map[string]bool // overrides the contract's is_organizer when non-empty
	scanLimit  int
	log        *zap.Logger

	// scanMu serializes full contract scans; polling callers share one walk.
	scanMu sync.Mutex
}

func NewTON(ctx context.Context, cfg *config.Config, log *zap.Logger) (*TON, error) {
	if cfg.ReputationContractAddress == "" {
		return nil, fmt.Errorf("REPUTATION_CONTRACT_ADDRESS is required for the ton ledger")
	}
	contract, err := parseTONAddress(cfg.ReputationContractAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid REPUTATION_CONTRACT_ADDRESS: %w", err)
	}

	api, err := connectToTON(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	fee, err := tlb.FromTON(cfg.MintFeeTON)
	if err != nil {
		return nil, fmt.Errorf("invalid MINT_FEE_TON %q: %w", cfg.MintFeeTON, err)
	}

	t := &TON{
		api:        api,
		contract:   contract,
		fee:        fee,
		organizers: make(map[string]bool),
		scanLimit:  cfg.LedgerScanLimit,
		log:        log,
	}
	if t.scanLimit <= 0 {
		t.scanLimit = 1000
	}
	for _, o := range cfg.OrganizerWallets {
		w, err := t.NormalizeWallet(o)
		if err != nil {
			return nil, fmt.Errorf("invalid organizer wallet %q: %w", o, err)
		}
		t.organizers[w] = true
	}

	if cfg.MinterSeed != "" {
		w, err := wallet.FromSeed(api, strings.Fields(cfg.MinterSeed), wallet.V4R2)
		if err != nil {
			return nil, fmt.Errorf("load minter wallet: %w", err)
		}
		t.minter = w
		log.Info("minter wallet loaded", zap.String("address", w.WalletAddress().String()))
	}

	log.Info("TON ledger ready",
		zap.String("contract", contract.String()),
		zap.String("network", cfg.TONNetwork),
		zap.Int("organizers", len(t.organizers)),
	)
	return t, nil
}

// connectToTON establishes a connection to the TON network.
// If LITE_SERVER_HOST + LITE_SERVER_KEY are set, connects to a specific lite server.
// Otherwise, auto-discovers lite servers from the global TON config based on TON_NETWORK.
func connectToTON(ctx context.Context, cfg *config.Config, log *zap.Logger) (ton.APIClientWrapped, error) {
	client := liteclient.NewConnectionPool()

	if cfg.LiteServerHost != "" && cfg.LiteServerKey != "" {
		addr := fmt.Sprintf("%s:%d", cfg.LiteServerHost, cfg.LiteServerPort)
		log.Info("connecting to lite server", zap.String("addr", addr))
		if err := client.AddConnection(ctx, addr, cfg.LiteServerKey); err != nil {
			return nil, fmt.Errorf("connect to lite server %s: %w", addr, err)
		}
	} else {
		configURL := "https://ton.org/testnet-global.config.json"
		if strings.ToLower(cfg.TONNetwork) == "mainnet" {
			configURL = "https://ton.org/global.config.json"
		}
		log.Info("connecting via global config", zap.String("url", configURL), zap.String("network", cfg.TONNetwork))
		if err := client.AddConnectionsFromConfigUrl(ctx, configURL); err != nil {
			return nil, fmt.Errorf("connect via config %s: %w", configURL, err)
		}
	}

	proofPolicy := ton.ProofCheckPolicyFast
	if strings.ToLower(cfg.TONNetwork) == "mainnet" {
		proofPolicy = ton.ProofCheckPolicySecure
	}

	return ton.NewAPIClient(client, proofPolicy).WithRetry(), nil
}

func parseTONAddress(s string) (*address.Address, error) {
	s = strings.TrimSpace(s)
	if addr, err := address.ParseAddr(s); err == nil {
		return addr, nil
	}
	return address.ParseRawAddr(s)
}

// NormalizeWallet maps friendly and raw forms of an address to raw "wc:hex".
func (t *TON) NormalizeWallet(w string) (string, error) {
	addr, err := parseTONAddress(w)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidWallet, err)
	}
	return addr.StringRaw(), nil
}

func (t *TON) Submit(ctx context.Context, p models.AwardPayload) (*Submission, error) {
	if t.minter == nil {
		return nil, ErrMinterDisabled
	}

	user, err := t.NormalizeWallet(p.UserWallet)
	if err != nil {
		return nil, fmt.Errorf("%w: user wallet: %v", ErrRejected, err)
	}
	organizer, err := t.NormalizeWallet(p.OrganizerWallet)
	if err != nil {
		return nil, fmt.Errorf("%w: organizer wallet: %v", ErrRejected, err)
	}
	p.UserWallet = user
	p.OrganizerWallet = organizer

	comment, err := EncodeComment(p)
	if err != nil {
		return nil, err
	}

	msg, err := t.minter.BuildTransfer(t.contract, t.fee, true, comment)
	if err != nil {
		return nil, fmt.Errorf("build award message: %w", err)
	}

	submittedAt := time.Now().UTC()
	if err := t.minter.Send(ctx, msg, false); err != nil {
		return nil, fmt.Errorf("send award message: %w", err)
	}

	t.log.Info("award message sent",
		zap.String("ref", p.Ref),
		zap.String("user", user),
		zap.Int64("total", p.BasePoints+p.BonusPoints),
	)

	return &Submission{Ref: p.Ref, UserWallet: user, SubmittedAt: submittedAt}, nil
}

// AwaitConfirmation polls the contract until it has executed the award message.
// A delivery that never lands or is refused is only detected by ctx expiry.
func (t *TON) AwaitConfirmation(ctx context.Context, sub *Submission) (*models.Receipt, error) {
	ticker := time.NewTicker(confirmPollPeriod)
	defer ticker.Stop()

	for {
		found, err := t.lookupRef(ctx, sub.Ref)
		if err != nil {
			t.log.Warn("award confirmation poll failed", zap.String("ref", sub.Ref), zap.Error(err))
		}
		if found != nil {
			return receiptFrom(found), nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (t *TON) QueryEvents(ctx context.Context, f Filter) ([]models.LedgerRecord, error) {
	if f.UserWallet != "" {
		w, err := t.NormalizeWallet(f.UserWallet)
		if err != nil {
			return nil, err
		}
		f.UserWallet = w
	}

	awards, err := t.scan(ctx)
	if err != nil {
		return nil, err
	}

	var out []models.LedgerRecord
	for i := range awards {
		if f.matches(&awards[i]) {
			out = append(out, awards[i])
		}
	}
	return out, nil
}

func (t *TON) lookupRef(ctx context.Context, ref string) (*models.LedgerRecord, error) {
	awards, err := t.scan(ctx)
	if err != nil {
		return nil, err
	}
	for i := range awards {
		if awards[i].Ref == ref {
			return &awards[i], nil
		}
	}
	return nil, nil
}

// scan walks the contract's transactions newest to oldest up to scanLimit and
// returns awards oldest first. Awards older than the window are not returned.
// A ref appearing more than once keeps its first occurrence.
func (t *TON) scan(ctx context.Context) ([]models.LedgerRecord, error) {
	t.scanMu.Lock()
	defer t.scanMu.Unlock()

	block, err := t.api.CurrentMasterchainInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("get master block: %w", err)
	}
	account, err := t.api.GetAccount(ctx, block, t.contract)
	if err != nil {
		return nil, fmt.Errorf("get contract account: %w", err)
	}
	if account == nil || !account.IsActive || account.LastTxLT == 0 {
		return nil, nil
	}

	var txs []*tlb.Transaction
	lt, hash := account.LastTxLT, account.LastTxHash
	for len(txs) < t.scanLimit {
		batch, err := t.api.ListTransactions(ctx, t.contract, uint32(txBatchSize), lt, hash)
		if err != nil {
			return nil, fmt.Errorf("list transactions (lt=%d): %w", lt, err)
		}
		if len(batch) == 0 {
			break
		}
		txs = append(txs, batch...)

		oldest := batch[0]
		if len(batch) < txBatchSize || oldest.PrevTxLT == 0 {
			break
		}
		lt, hash = oldest.PrevTxLT, oldest.PrevTxHash
	}

	sort.Slice(txs, func(i, j int) bool { return txs[i].LT < txs[j].LT })

	if len(txs) >= t.scanLimit {
		t.log.Warn("contract scan hit its limit, older awards are not visible",
			zap.Int("limit", t.scanLimit),
			zap.Uint64("oldest_lt", txs[0].LT),
		)
	}

	var minterAddr string
	if t.minter != nil {
		minterAddr = t.minter.WalletAddress().StringRaw()
	}
	return t.collectAwards(ctx, txs, minterAddr)
}

// collectAwards keeps the awards the contract accepted from an authorized
// sender: the minter, or an organizer writing in its own name.
func (t *TON) collectAwards(ctx context.Context, txs []*tlb.Transaction, minterAddr string) ([]models.LedgerRecord, error) {
	organizer := make(map[string]bool)
	seen := make(map[string]bool)
	var awards []models.LedgerRecord
	for _, tx := range txs {
		rec, sender, ok := decodeAward(tx)
		if !ok || seen[rec.Ref] {
			continue
		}

		user, err := t.NormalizeWallet(rec.UserWallet)
		if err != nil {
			continue
		}
		named, err := t.NormalizeWallet(rec.OrganizerWallet)
		if err != nil {
			continue
		}
		rec.UserWallet, rec.OrganizerWallet = user, named

		if sender != minterAddr {
			if sender != named {
				t.log.Debug("award comment from unexpected sender",
					zap.String("ref", rec.Ref),
					zap.String("from", sender),
				)
				continue
			}
			is, known := organizer[sender]
			if !known {
				if is, err = t.IsOrganizer(ctx, sender); err != nil {
					return nil, fmt.Errorf("check organizer %s: %w", sender, err)
				}
				organizer[sender] = is
			}
			if !is {
				t.log.Debug("award comment from non-organizer",
					zap.String("ref", rec.Ref),
					zap.String("from", sender),
				)
				continue
			}
		}

		seen[rec.Ref] = true
		awards = append(awards, *rec)
	}
	return awards, nil
}

// decodeAward extracts an award and its raw sender from a transaction the
// contract executed successfully. Bounced, aborted and failed-compute
// transactions carry no award.
func decodeAward(tx *tlb.Transaction) (*models.LedgerRecord, string, bool) {
	if tx.IO.In == nil || !executed(tx.Description) {
		return nil, "", false
	}
	inMsg, ok := tx.IO.In.Msg.(*tlb.InternalMessage)
	if !ok || inMsg == nil || inMsg.Bounced || inMsg.SrcAddr == nil {
		return nil, "", false
	}

	comment := extractComment(inMsg)
	if comment == "" {
		return nil, "", false
	}
	rec, err := DecodeComment(comment)
	if err != nil {
		return nil, "", false
	}

	rec.Timestamp = time.Unix(int64(tx.Now), 0).UTC()
	rec.TransactionRef = hex.EncodeToString(tx.Hash)
	return rec, inMsg.SrcAddr.StringRaw(), true
}

func executed(desc any) bool {
	var d tlb.TransactionDescriptionOrdinary
	switch v := desc.(type) {
	case tlb.TransactionDescriptionOrdinary:
		d = v
	case *tlb.TransactionDescriptionOrdinary:
		if v == nil {
			return false
		}
		d = *v
	default:
		return false
	}
	if d.Aborted {
		return false
	}
	switch c := d.ComputePhase.Phase.(type) {
	case tlb.ComputePhaseVM:
		return c.Success
	case *tlb.ComputePhaseVM:
		return c != nil && c.Success
	default:
		return false
	}
}

// extractComment parses a text comment from an InternalMessage body.
// TON text comments have opcode 0x00000000 followed by UTF-8 text in snake format.
func extractComment(inMsg *tlb.InternalMessage) string {
	if inMsg.Body == nil {
		return ""
	}
	slice := inMsg.Body.BeginParse()
	if slice.BitsLeft() < 32 {
		return ""
	}
	op, err := slice.LoadUInt(32)
	if err != nil || op != 0 {
		return ""
	}
	text, err := slice.LoadStringSnake()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}

func (t *TON) GetReputation(ctx context.Context, wallet string) (int64, error) {
	v, err := t.runAddrGetter(ctx, "get_reputation", wallet)
	if err != nil {
		return 0, err
	}
	return v, nil
}

func (t *TON) IsOrganizer(ctx context.Context, wallet string) (bool, error) {
	w, err := t.NormalizeWallet(wallet)
	if err != nil {
		return false, err
	}
	if len(t.organizers) > 0 {
		return t.organizers[w], nil
	}
	v, err := t.runAddrGetter(ctx, "is_organizer", w)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

func (t *TON) runAddrGetter(ctx context.Context, method, wallet string) (int64, error) {
	addr, err := parseTONAddress(wallet)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidWallet, err)
	}

	block, err := t.api.CurrentMasterchainInfo(ctx)
	if err != nil {
		return 0, fmt.Errorf("get master block: %w", err)
	}

	arg := cell.BeginCell().MustStoreAddr(addr).EndCell().BeginParse()
	res, err := t.api.RunGetMethod(ctx, block, t.contract, method, arg)
	if err != nil {
		return 0, fmt.Errorf("run %s: %w", method, err)
	}
	v, err := res.Int(0)
	if err != nil {
		return 0, fmt.Errorf("read %s result: %w", method, err)
	}
	return v.Int64(), nil
}

var _ Client = (*TON)(nil)
