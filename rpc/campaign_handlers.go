package rpc

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"sort"

	"questchain/crypto"
	"questchain/native/campaign"
)

type campaignCreateParams struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Target      uint64 `json:"target"`
	Duration    uint64 `json:"duration"`
	Unlimited   bool   `json:"unlimited"`
	Escrow      string `json:"escrow"`
	Asset       string `json:"asset"`
}

type campaignActiveParams struct {
	ID     uint64 `json:"id"`
	Active bool   `json:"active"`
}

type settleBatchParams struct {
	Account     string   `json:"account"`
	CampaignIDs []uint64 `json:"campaignIds"`
	Nonce       uint64   `json:"nonce"`
	Signature   string   `json:"signature"`
}

type assetParams struct {
	Asset string `json:"asset"`
}

type authorityParams struct {
	Authority string `json:"authority"`
}

type feeParams struct {
	Fee string `json:"fee"`
}

type participationParams struct {
	ID      uint64 `json:"id"`
	Account string `json:"account"`
}

type pendingParams struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
}

type campaignResult struct {
	ID          uint64 `json:"id"`
	Creator     string `json:"creator"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Asset       string `json:"asset"`
	Active      bool   `json:"active"`
	Closed      bool   `json:"closed"`
	Unlimited   bool   `json:"unlimited"`
	EndsAt      uint64 `json:"endsAt,omitempty"`
	CreatedAt   uint64 `json:"createdAt"`
	Target      uint64 `json:"target"`
	Escrow      string `json:"escrow"`
	Share       string `json:"share"`
	Distributed string `json:"distributed"`
	Remaining   string `json:"remaining"`
	Completed   uint64 `json:"completed"`
	Registered  uint64 `json:"registered"`
}

type skippedResult struct {
	CampaignID uint64 `json:"campaignId"`
	Reason     string `json:"reason"`
}

type batchResult struct {
	Account string            `json:"account"`
	Nonce   uint64            `json:"nonce"`
	Digest  string            `json:"digest"`
	Settled []uint64          `json:"settled"`
	Skipped []skippedResult   `json:"skipped"`
	Rewards map[string]string `json:"rewards"`
}

type withdrawResult struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type nonceResult struct {
	Account string `json:"account"`
	Nonce   uint64 `json:"nonce"`
}

type openCountResult struct {
	Creator string `json:"creator"`
	Open    uint64 `json:"open"`
}

type campaignStatusResult struct {
	Owner            string      `json:"owner"`
	Paused           bool        `json:"paused"`
	Guard            guardResult `json:"guard"`
	BackendAuthority string      `json:"backendAuthority"`
	CreationFee      string      `json:"creationFee"`
	Fees             string      `json:"fees"`
	CampaignCount    uint64      `json:"campaignCount"`
	ChainID          string      `json:"chainId"`
	Contract         string      `json:"contract"`
}

func formatCampaign(c *campaign.Campaign) campaignResult {
	out := campaignResult{
		ID:          c.ID,
		Creator:     formatAddress(c.Creator),
		Title:       c.Title,
		Description: c.Description,
		Asset:       c.Asset,
		Active:      c.Active,
		Closed:      c.Closed,
		Unlimited:   c.Unlimited,
		CreatedAt:   c.CreatedAt,
		Target:      c.Target,
		Escrow:      bigString(c.Escrow),
		Share:       bigString(c.Share),
		Distributed: bigString(c.Distributed),
		Remaining:   c.Remaining().String(),
		Completed:   c.Completed,
		Registered:  c.Registered,
	}
	if !c.Unlimited {
		out.EndsAt = c.EndsAt
	}
	return out
}

func formatBatch(result *campaign.BatchResult) batchResult {
	out := batchResult{
		Account: formatAddress(result.Account),
		Nonce:   result.Nonce,
		Digest:  "0x" + hex.EncodeToString(result.Digest[:]),
		Settled: append([]uint64{}, result.Settled...),
		Skipped: make([]skippedResult, 0, len(result.Skipped)),
		Rewards: make(map[string]string, len(result.Rewards)),
	}
	for _, skip := range result.Skipped {
		out.Skipped = append(out.Skipped, skippedResult{CampaignID: skip.CampaignID, Reason: string(skip.Reason)})
	}
	assets := make([]string, 0, len(result.Rewards))
	for asset := range result.Rewards {
		assets = append(assets, asset)
	}
	sort.Strings(assets)
	for _, asset := range assets {
		out.Rewards[asset] = bigString(result.Rewards[asset])
	}
	return out
}

func (s *Server) registerCampaign() {
	const module = "campaign"
	s.register("campaign_create", module, true, s.handleCampaignCreate)
	s.register("campaign_register", module, true, s.handleCampaignRegister)
	s.register("campaign_complete", module, true, s.handleCampaignComplete)
	s.register("campaign_cancel", module, true, s.handleCampaignCancel)
	s.register("campaign_finalize", module, true, s.handleCampaignFinalize)
	s.register("campaign_setActive", module, true, s.handleCampaignSetActive)
	s.register("campaign_settleBatch", module, true, s.handleCampaignSettleBatch)
	s.register("campaign_withdraw", module, true, s.handleCampaignWithdraw)
	s.register("campaign_withdrawFees", module, true, s.handleCampaignWithdrawFees)
	s.register("campaign_guardDecision", module, true, s.handleCampaignGuardDecision)
	s.register("campaign_transferOwnership", module, true, s.handleCampaignTransferOwnership)
	s.register("campaign_setAuthority", module, true, s.handleCampaignSetAuthority)
	s.register("campaign_setCreationFee", module, true, s.handleCampaignSetCreationFee)
	s.register("campaign_setPaused", module, true, s.handleCampaignSetPaused)
	s.register("campaign_get", module, false, s.handleCampaignGet)
	s.register("campaign_participation", module, false, s.handleCampaignParticipation)
	s.register("campaign_nonce", module, false, s.handleCampaignNonce)
	s.register("campaign_pending", module, false, s.handleCampaignPending)
	s.register("campaign_openCount", module, false, s.handleCampaignOpenCount)
	s.register("campaign_status", module, false, s.handleCampaignStatus)
}

func (s *Server) handleCampaignCreate(caller [20]byte, req *RPCRequest) (interface{}, error) {
	var params campaignCreateParams
	if err := decodeParams(req, &params); err != nil {
		return nil, invalidParams(err)
	}
	escrow, err := parseAmount(params.Escrow)
	if err != nil {
		return nil, invalidParams(err)
	}
	created, err := s.campaign.CreateCampaign(caller, campaign.CampaignInput{
		Title:       params.Title,
		Description: params.Description,
		Target:      params.Target,
		Duration:    params.Duration,
		Unlimited:   params.Unlimited,
		Escrow:      escrow,
		Asset:       params.Asset,
	})
	if err != nil {
		return nil, err
	}
	return formatCampaign(created), nil
}

func (s *Server) handleCampaignRegister(caller [20]byte, req *RPCRequest) (interface{}, error) {
	var params idParams
	if err := decodeParams(req, &params); err != nil {
		return nil, invalidParams(err)
	}
	if err := s.campaign.RegisterCampaign(caller, params.ID); err != nil {
		return nil, err
	}
	return s.campaign.Participation(params.ID, caller)
}

func (s *Server) handleCampaignComplete(caller [20]byte, req *RPCRequest) (interface{}, error) {
	var params idParams
	if err := decodeParams(req, &params); err != nil {
		return nil, invalidParams(err)
	}
	reward, err := s.campaign.CompleteCampaign(caller, params.ID)
	if err != nil {
		return nil, err
	}
	return amountResult{Amount: bigString(reward)}, nil
}

func (s *Server) handleCampaignCancel(caller [20]byte, req *RPCRequest) (interface{}, error) {
	return s.closeCampaign(caller, req, s.campaign.CancelCampaign)
}

func (s *Server) handleCampaignFinalize(caller [20]byte, req *RPCRequest) (interface{}, error) {
	return s.closeCampaign(caller, req, s.campaign.FinalizeCampaign)
}

func (s *Server) closeCampaign(caller [20]byte, req *RPCRequest, closeFn func([20]byte, uint64) (*big.Int, error)) (interface{}, error) {
	var params idParams
	if err := decodeParams(req, &params); err != nil {
		return nil, invalidParams(err)
	}
	refund, err := closeFn(caller, params.ID)
	if err != nil {
		return nil, err
	}
	return amountResult{Amount: bigString(refund)}, nil
}

func (s *Server) handleCampaignSetActive(caller [20]byte, req *RPCRequest) (interface{}, error) {
	var params campaignActiveParams
	if err := decodeParams(req, &params); err != nil {
		return nil, invalidParams(err)
	}
	if err := s.campaign.SetCampaignActive(caller, params.ID, params.Active); err != nil {
		return nil, err
	}
	updated, err := s.campaign.Campaign(params.ID)
	if err != nil {
		return nil, err
	}
	return formatCampaign(updated), nil
}

// handleCampaignSettleBatch submits a backend authorization. The submitter
// may be any account; the authorization names the beneficiary.
func (s *Server) handleCampaignSettleBatch(caller [20]byte, req *RPCRequest) (interface{}, error) {
	var params settleBatchParams
	if err := decodeParams(req, &params); err != nil {
		return nil, invalidParams(err)
	}
	account, err := crypto.ParseAccount(params.Account)
	if err != nil {
		return nil, invalidParams(err)
	}
	sig, err := decodeHex(params.Signature)
	if err != nil {
		return nil, invalidParams(fmt.Errorf("signature: %w", err))
	}
	result, err := s.campaign.SettleBatch(caller, campaign.BatchRequest{
		Account:     account,
		CampaignIDs: params.CampaignIDs,
		Nonce:       params.Nonce,
		Signature:   sig,
	})
	if err != nil {
		return nil, err
	}
	return formatBatch(result), nil
}

func (s *Server) handleCampaignWithdraw(caller [20]byte, req *RPCRequest) (interface{}, error) {
	var params assetParams
	if len(req.Params) > 0 {
		if err := decodeParams(req, &params); err != nil {
			return nil, invalidParams(err)
		}
	}
	paid, err := s.campaign.Withdraw(caller, params.Asset)
	if err != nil {
		return nil, err
	}
	return withdrawResult{Asset: params.Asset, Amount: bigString(paid)}, nil
}

func (s *Server) handleCampaignWithdrawFees(caller [20]byte, _ *RPCRequest) (interface{}, error) {
	paid, err := s.campaign.WithdrawFees(caller)
	if err != nil {
		return nil, err
	}
	return amountResult{Amount: bigString(paid)}, nil
}

func (s *Server) handleCampaignGuardDecision(caller [20]byte, req *RPCRequest) (interface{}, error) {
	var params guardDecisionParams
	if err := decodeParams(req, &params); err != nil {
		return nil, invalidParams(err)
	}
	approved, err := s.campaign.RecordGuardDecision(caller, params.Approve)
	if err != nil {
		return nil, err
	}
	return decisionResult{Approved: approved}, nil
}

func (s *Server) handleCampaignTransferOwnership(caller [20]byte, req *RPCRequest) (interface{}, error) {
	var params transferOwnershipParams
	if err := decodeParams(req, &params); err != nil {
		return nil, invalidParams(err)
	}
	newOwner, err := crypto.ParseAccount(params.NewOwner)
	if err != nil {
		return nil, invalidParams(err)
	}
	if err := s.campaign.TransferOwnership(caller, newOwner); err != nil {
		return nil, err
	}
	return transferOwnershipParams{NewOwner: formatAddress(newOwner)}, nil
}

func (s *Server) handleCampaignSetAuthority(caller [20]byte, req *RPCRequest) (interface{}, error) {
	var params authorityParams
	if err := decodeParams(req, &params); err != nil {
		return nil, invalidParams(err)
	}
	authority, err := crypto.ParseAccount(params.Authority)
	if err != nil {
		return nil, invalidParams(err)
	}
	if err := s.campaign.SetBackendAuthority(caller, authority); err != nil {
		return nil, err
	}
	return authorityParams{Authority: formatAddress(authority)}, nil
}

func (s *Server) handleCampaignSetCreationFee(caller [20]byte, req *RPCRequest) (interface{}, error) {
	var params feeParams
	if err := decodeParams(req, &params); err != nil {
		return nil, invalidParams(err)
	}
	fee, err := parseAmount(params.Fee)
	if err != nil {
		return nil, invalidParams(err)
	}
	if err := s.campaign.SetCreationFee(caller, fee); err != nil {
		return nil, err
	}
	return feeParams{Fee: fee.String()}, nil
}

func (s *Server) handleCampaignSetPaused(caller [20]byte, req *RPCRequest) (interface{}, error) {
	var params pausedParams
	if err := decodeParams(req, &params); err != nil {
		return nil, invalidParams(err)
	}
	if err := s.campaign.SetPaused(caller, params.Paused); err != nil {
		return nil, err
	}
	return params, nil
}

func (s *Server) handleCampaignGet(_ [20]byte, req *RPCRequest) (interface{}, error) {
	var params idParams
	if err := decodeParams(req, &params); err != nil {
		return nil, invalidParams(err)
	}
	c, err := s.campaign.Campaign(params.ID)
	if err != nil {
		return nil, err
	}
	return formatCampaign(c), nil
}

func (s *Server) handleCampaignParticipation(_ [20]byte, req *RPCRequest) (interface{}, error) {
	var params participationParams
	if err := decodeParams(req, &params); err != nil {
		return nil, invalidParams(err)
	}
	account, err := crypto.ParseAccount(params.Account)
	if err != nil {
		return nil, invalidParams(err)
	}
	return s.campaign.Participation(params.ID, account)
}

func (s *Server) handleCampaignNonce(_ [20]byte, req *RPCRequest) (interface{}, error) {
	var params accountParams
	if err := decodeParams(req, &params); err != nil {
		return nil, invalidParams(err)
	}
	account, err := crypto.ParseAccount(params.Account)
	if err != nil {
		return nil, invalidParams(err)
	}
	nonce, err := s.campaign.Nonce(account)
	if err != nil {
		return nil, err
	}
	return nonceResult{Account: formatAddress(account), Nonce: nonce}, nil
}

func (s *Server) handleCampaignPending(_ [20]byte, req *RPCRequest) (interface{}, error) {
	var params pendingParams
	if err := decodeParams(req, &params); err != nil {
		return nil, invalidParams(err)
	}
	account, err := crypto.ParseAccount(params.Account)
	if err != nil {
		return nil, invalidParams(err)
	}
	pending, err := s.campaign.PendingBalance(account, params.Asset)
	if err != nil {
		return nil, err
	}
	return withdrawResult{Asset: params.Asset, Amount: bigString(pending)}, nil
}

func (s *Server) handleCampaignOpenCount(_ [20]byte, req *RPCRequest) (interface{}, error) {
	var params accountParams
	if err := decodeParams(req, &params); err != nil {
		return nil, invalidParams(err)
	}
	creator, err := crypto.ParseAccount(params.Account)
	if err != nil {
		return nil, invalidParams(err)
	}
	open, err := s.campaign.OpenCampaigns(creator)
	if err != nil {
		return nil, err
	}
	return openCountResult{Creator: formatAddress(creator), Open: open}, nil
}

func (s *Server) handleCampaignStatus(_ [20]byte, _ *RPCRequest) (interface{}, error) {
	owner, err := s.campaign.Owner()
	if err != nil {
		return nil, err
	}
	gate, err := guardStatus(s.campaign.GuardStatus)
	if err != nil {
		return nil, err
	}
	authority, err := s.campaign.BackendAuthority()
	if err != nil {
		return nil, err
	}
	fee, err := s.campaign.CreationFee()
	if err != nil {
		return nil, err
	}
	fees, err := s.campaign.Fees()
	if err != nil {
		return nil, err
	}
	count, err := s.campaign.CampaignCount()
	if err != nil {
		return nil, err
	}
	domain := s.campaign.Domain()
	return campaignStatusResult{
		Owner:            formatAddress(owner),
		Paused:           s.campaign.Paused(),
		Guard:            gate,
		BackendAuthority: formatAddress(authority),
		CreationFee:      bigString(fee),
		Fees:             bigString(fees),
		CampaignCount:    count,
		ChainID:          bigString(domain.ChainID),
		Contract:         formatAddress(domain.Contract),
	}, nil
}
