package campaign

import (
	"errors"
	"math/big"
	"sort"

	"questchain/native/common"
	"questchain/observability/metrics"
)

// MaxBatchSize bounds the campaigns a single authorization may cover.
const MaxBatchSize = 256

// SettleBatch applies a backend-authorized batch of completions for
// req.Account. The nonce, digest and signature are verified before any state
// changes; the nonce then advances and the digest is marked processed.
// Campaigns that can no longer accept the completion are skipped without
// failing the batch. Anyone may submit a batch; rewards always go to the
// signed account.
func (e *Engine) SettleBatch(submitter [20]byte, req BatchRequest) (*BatchResult, error) {
	if len(req.CampaignIDs) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(req.CampaignIDs) > MaxBatchSize {
		return nil, ErrBatchTooLarge
	}
	var result *BatchResult
	err := e.run(func() error {
		if err := common.Guard(e.pauses, ModuleName); err != nil {
			return err
		}
		var err error
		result, err = e.settle(submitter, req)
		return err
	})
	if err != nil {
		metrics.Quest().ObserveSettlement(settlementOutcome(err))
		return nil, err
	}
	metrics.Quest().ObserveSettlement("settled")
	counts := make(map[SkipReason]int)
	for _, s := range result.Skipped {
		counts[s.Reason]++
	}
	for reason, n := range counts {
		metrics.Quest().ObserveSkipped(string(reason), n)
	}
	return result, nil
}

func settlementOutcome(err error) string {
	switch {
	case errors.Is(err, ErrInvalidNonce):
		return "invalid_nonce"
	case errors.Is(err, ErrBatchAlreadyProcessed):
		return "replayed"
	case errors.Is(err, ErrBadSignature):
		return "bad_signature"
	case errors.Is(err, common.ErrPaused):
		return "paused"
	default:
		return "error"
	}
}

func (e *Engine) settle(submitter [20]byte, req BatchRequest) (*BatchResult, error) {
	nonce, err := e.loadUint(nonceKey(req.Account))
	if err != nil {
		return nil, err
	}
	if req.Nonce != nonce {
		return nil, ErrInvalidNonce
	}
	digest := BatchDigest(req.Account, req.CampaignIDs, req.Nonce)
	var processed bool
	if _, err := e.state.KVGet(batchKey(digest), &processed); err != nil {
		return nil, err
	}
	if processed {
		return nil, ErrBatchAlreadyProcessed
	}
	var authority [20]byte
	if _, err := e.state.KVGet(authorityKey, &authority); err != nil {
		return nil, err
	}
	if common.IsZero(authority) {
		return nil, ErrAuthorityNotSet
	}
	signer, err := e.domain.RecoverAuthority(req.Account, req.CampaignIDs, req.Nonce, req.Signature)
	if err != nil || signer != authority {
		return nil, ErrBadSignature
	}

	if err := e.state.KVPut(nonceKey(req.Account), nonce+1); err != nil {
		return nil, err
	}
	if err := e.state.KVPut(batchKey(digest), true); err != nil {
		return nil, err
	}

	result := &BatchResult{
		Account: req.Account,
		Nonce:   req.Nonce,
		Digest:  digest,
		Rewards: make(map[string]*big.Int),
	}
	now := e.now()
	for _, id := range req.CampaignIDs {
		reason, err := e.settleOne(id, req.Account, now, result)
		if err != nil {
			return nil, err
		}
		if reason != "" {
			result.Skipped = append(result.Skipped, Skipped{CampaignID: id, Reason: reason})
		}
	}

	assets := make([]string, 0, len(result.Rewards))
	for asset := range result.Rewards {
		assets = append(assets, asset)
	}
	sort.Strings(assets)
	for _, asset := range assets {
		if err := e.credit(req.Account, asset, result.Rewards[asset]); err != nil {
			return nil, err
		}
	}
	e.emit(batchEvent(submitter, result))
	return result, nil
}

// settleOne completes a single campaign for account or returns why it was
// skipped. Only storage failures are returned as errors.
func (e *Engine) settleOne(id uint64, account [20]byte, now uint64, result *BatchResult) (SkipReason, error) {
	c, err := e.loadCampaign(id)
	if errors.Is(err, ErrCampaignNotFound) {
		return SkipUnknown, nil
	}
	if err != nil {
		return "", err
	}
	switch {
	case c.EndedAt(now):
		return SkipEnded, nil
	case !c.Active:
		return SkipInactive, nil
	case c.Filled():
		return SkipFilled, nil
	}
	p, err := e.loadParticipation(id, account)
	if err != nil {
		return "", err
	}
	if p.Completed {
		return SkipCompleted, nil
	}
	if !p.Registered {
		if c.Registered >= c.Target {
			return SkipFull, nil
		}
		if err := e.register(c, account, p); err != nil {
			return "", err
		}
	}
	if err := e.complete(c, account, p); err != nil {
		return "", err
	}
	total, ok := result.Rewards[c.Asset]
	if !ok {
		total = new(big.Int)
		result.Rewards[c.Asset] = total
	}
	total.Add(total, c.Share)
	result.Settled = append(result.Settled, id)
	return "", nil
}
