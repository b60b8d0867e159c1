package rpc

import (
	"encoding/hex"
	"errors"
	"fmt"

	"questchain/crypto"
	"questchain/native/guard"
	"questchain/native/nft"
)

type nftTierParams struct {
	ID        uint64 `json:"id,omitempty"`
	Name      string `json:"name"`
	Price     string `json:"price"`
	MaxSupply uint64 `json:"maxSupply"`
	PoolLimit uint64 `json:"poolLimit"`
	URI       string `json:"uri"`
	FreeMints uint64 `json:"freeMints"`
	Active    bool   `json:"active,omitempty"`
}

type tierActiveParams struct {
	ID     uint64 `json:"id"`
	Active bool   `json:"active"`
}

type whitelistRootParams struct {
	Root string `json:"root"`
}

type pausedParams struct {
	Paused bool `json:"paused"`
}

type nftMintParams struct {
	TierID uint64 `json:"tierId"`
	Value  string `json:"value"`
}

type nftWhitelistMintParams struct {
	TierID uint64   `json:"tierId"`
	Proof  []string `json:"proof"`
}

type guardDecisionParams struct {
	Approve bool `json:"approve"`
}

type transferOwnershipParams struct {
	NewOwner string `json:"newOwner"`
}

type idParams struct {
	ID uint64 `json:"id"`
}

type accountParams struct {
	Account string `json:"account"`
}

type mintRecordParams struct {
	Account string `json:"account"`
	TierID  uint64 `json:"tierId"`
}

type tierResult struct {
	ID        uint64 `json:"id"`
	Name      string `json:"name"`
	Price     string `json:"price"`
	MaxSupply uint64 `json:"maxSupply"`
	Minted    uint64 `json:"minted"`
	Remaining uint64 `json:"remaining"`
	PoolLimit uint64 `json:"poolLimit"`
	URI       string `json:"uri"`
	Active    bool   `json:"active"`
	FreeMints uint64 `json:"freeMints"`
}

type mintResult struct {
	TokenID uint64 `json:"tokenId"`
	TierID  uint64 `json:"tierId"`
	Path    string `json:"path"`
	Charged string `json:"charged"`
	Level   uint64 `json:"level"`
}

type tokenResult struct {
	ID       uint64 `json:"id"`
	Owner    string `json:"owner"`
	TierID   uint64 `json:"tierId"`
	URI      string `json:"uri"`
	MintedAt uint64 `json:"mintedAt"`
}

type guardResult struct {
	Guard1    string `json:"guard1"`
	Guard2    string `json:"guard2"`
	Decision1 bool   `json:"decision1"`
	Decision2 bool   `json:"decision2"`
	Phase     string `json:"phase"`
}

type decisionResult struct {
	Approved bool `json:"approved"`
}

type amountResult struct {
	Amount string `json:"amount"`
}

type nftStatusResult struct {
	Owner         string      `json:"owner"`
	Paused        bool        `json:"paused"`
	Guard         guardResult `json:"guard"`
	Proceeds      string      `json:"proceeds"`
	WhitelistRoot string      `json:"whitelistRoot,omitempty"`
	TierCount     uint64      `json:"tierCount"`
}

type holdingsResult struct {
	Owner  string   `json:"owner"`
	Level  uint64   `json:"level"`
	Tokens []uint64 `json:"tokens"`
}

func formatTier(t *nft.Tier) tierResult {
	return tierResult{
		ID:        t.ID,
		Name:      t.Name,
		Price:     bigString(t.Price),
		MaxSupply: t.MaxSupply,
		Minted:    t.Minted,
		Remaining: t.Remaining(),
		PoolLimit: t.PoolLimit,
		URI:       t.URI,
		Active:    t.Active,
		FreeMints: t.FreeMints,
	}
}

func formatGuard(status *guard.Status) guardResult {
	if status == nil {
		return guardResult{Phase: guard.PhasePending.String()}
	}
	return guardResult{
		Guard1:    formatAddress(status.Guard1),
		Guard2:    formatAddress(status.Guard2),
		Decision1: status.Decision1,
		Decision2: status.Decision2,
		Phase:     status.Phase().String(),
	}
}

// guardStatus reads a gate record, reporting an uninitialised gate as pending.
func guardStatus(read func() (*guard.Status, error)) (guardResult, error) {
	status, err := read()
	if errors.Is(err, guard.ErrGateUninitialised) {
		return formatGuard(nil), nil
	}
	if err != nil {
		return guardResult{}, err
	}
	return formatGuard(status), nil
}

func (p nftTierParams) input() (nft.TierInput, error) {
	price, err := parseAmount(p.Price)
	if err != nil {
		return nft.TierInput{}, err
	}
	return nft.TierInput{
		Name:      p.Name,
		Price:     price,
		MaxSupply: p.MaxSupply,
		PoolLimit: p.PoolLimit,
		URI:       p.URI,
		FreeMints: p.FreeMints,
	}, nil
}

func (s *Server) registerNFT() {
	const module = "nft"
	s.register("nft_addTier", module, true, s.handleNFTAddTier)
	s.register("nft_updateTier", module, true, s.handleNFTUpdateTier)
	s.register("nft_setTierActive", module, true, s.handleNFTSetTierActive)
	s.register("nft_setWhitelistRoot", module, true, s.handleNFTSetWhitelistRoot)
	s.register("nft_setPaused", module, true, s.handleNFTSetPaused)
	s.register("nft_mint", module, true, s.handleNFTMint)
	s.register("nft_whitelistMint", module, true, s.handleNFTWhitelistMint)
	s.register("nft_guardDecision", module, true, s.handleNFTGuardDecision)
	s.register("nft_withdrawProceeds", module, true, s.handleNFTWithdrawProceeds)
	s.register("nft_transferOwnership", module, true, s.handleNFTTransferOwnership)
	s.register("nft_getTier", module, false, s.handleNFTGetTier)
	s.register("nft_listTiers", module, false, s.handleNFTListTiers)
	s.register("nft_getToken", module, false, s.handleNFTGetToken)
	s.register("nft_holdings", module, false, s.handleNFTHoldings)
	s.register("nft_mintRecord", module, false, s.handleNFTMintRecord)
	s.register("nft_status", module, false, s.handleNFTStatus)
}

func (s *Server) handleNFTAddTier(caller [20]byte, req *RPCRequest) (interface{}, error) {
	var params nftTierParams
	if err := decodeParams(req, &params); err != nil {
		return nil, invalidParams(err)
	}
	input, err := params.input()
	if err != nil {
		return nil, invalidParams(err)
	}
	tier, err := s.nft.AddTier(caller, input)
	if err != nil {
		return nil, err
	}
	return formatTier(tier), nil
}

func (s *Server) handleNFTUpdateTier(caller [20]byte, req *RPCRequest) (interface{}, error) {
	var params nftTierParams
	if err := decodeParams(req, &params); err != nil {
		return nil, invalidParams(err)
	}
	input, err := params.input()
	if err != nil {
		return nil, invalidParams(err)
	}
	tier, err := s.nft.UpdateTier(caller, params.ID, input, params.Active)
	if err != nil {
		return nil, err
	}
	return formatTier(tier), nil
}

func (s *Server) handleNFTSetTierActive(caller [20]byte, req *RPCRequest) (interface{}, error) {
	var params tierActiveParams
	if err := decodeParams(req, &params); err != nil {
		return nil, invalidParams(err)
	}
	if err := s.nft.SetTierActive(caller, params.ID, params.Active); err != nil {
		return nil, err
	}
	tier, err := s.nft.Tier(params.ID)
	if err != nil {
		return nil, err
	}
	return formatTier(tier), nil
}

func (s *Server) handleNFTSetWhitelistRoot(caller [20]byte, req *RPCRequest) (interface{}, error) {
	var params whitelistRootParams
	if err := decodeParams(req, &params); err != nil {
		return nil, invalidParams(err)
	}
	root, err := parseHash(params.Root)
	if err != nil {
		return nil, invalidParams(err)
	}
	if err := s.nft.SetWhitelistRoot(caller, root); err != nil {
		return nil, err
	}
	return whitelistRootParams{Root: "0x" + hex.EncodeToString(root[:])}, nil
}

func (s *Server) handleNFTSetPaused(caller [20]byte, req *RPCRequest) (interface{}, error) {
	var params pausedParams
	if err := decodeParams(req, &params); err != nil {
		return nil, invalidParams(err)
	}
	if err := s.nft.SetPaused(caller, params.Paused); err != nil {
		return nil, err
	}
	return params, nil
}

func (s *Server) handleNFTMint(caller [20]byte, req *RPCRequest) (interface{}, error) {
	var params nftMintParams
	if err := decodeParams(req, &params); err != nil {
		return nil, invalidParams(err)
	}
	value, err := parseAmount(params.Value)
	if err != nil {
		return nil, invalidParams(err)
	}
	result, err := s.nft.Mint(caller, params.TierID, value)
	if err != nil {
		return nil, err
	}
	return formatMint(result), nil
}

func (s *Server) handleNFTWhitelistMint(caller [20]byte, req *RPCRequest) (interface{}, error) {
	var params nftWhitelistMintParams
	if err := decodeParams(req, &params); err != nil {
		return nil, invalidParams(err)
	}
	proof := make([][32]byte, 0, len(params.Proof))
	for i, raw := range params.Proof {
		node, err := parseHash(raw)
		if err != nil {
			return nil, invalidParams(fmt.Errorf("proof[%d]: %w", i, err))
		}
		proof = append(proof, node)
	}
	result, err := s.nft.WhitelistMint(caller, proof, params.TierID)
	if err != nil {
		return nil, err
	}
	return formatMint(result), nil
}

func formatMint(result *nft.MintResult) mintResult {
	return mintResult{
		TokenID: result.TokenID,
		TierID:  result.TierID,
		Path:    string(result.Path),
		Charged: bigString(result.Charged),
		Level:   result.Level,
	}
}

func (s *Server) handleNFTGuardDecision(caller [20]byte, req *RPCRequest) (interface{}, error) {
	var params guardDecisionParams
	if err := decodeParams(req, &params); err != nil {
		return nil, invalidParams(err)
	}
	approved, err := s.nft.RecordGuardDecision(caller, params.Approve)
	if err != nil {
		return nil, err
	}
	return decisionResult{Approved: approved}, nil
}

func (s *Server) handleNFTWithdrawProceeds(caller [20]byte, _ *RPCRequest) (interface{}, error) {
	paid, err := s.nft.WithdrawProceeds(caller)
	if err != nil {
		return nil, err
	}
	return amountResult{Amount: paid.String()}, nil
}

func (s *Server) handleNFTTransferOwnership(caller [20]byte, req *RPCRequest) (interface{}, error) {
	var params transferOwnershipParams
	if err := decodeParams(req, &params); err != nil {
		return nil, invalidParams(err)
	}
	newOwner, err := crypto.ParseAccount(params.NewOwner)
	if err != nil {
		return nil, invalidParams(err)
	}
	if err := s.nft.TransferOwnership(caller, newOwner); err != nil {
		return nil, err
	}
	return transferOwnershipParams{NewOwner: formatAddress(newOwner)}, nil
}

func (s *Server) handleNFTGetTier(_ [20]byte, req *RPCRequest) (interface{}, error) {
	var params idParams
	if err := decodeParams(req, &params); err != nil {
		return nil, invalidParams(err)
	}
	tier, err := s.nft.Tier(params.ID)
	if err != nil {
		return nil, err
	}
	return formatTier(tier), nil
}

func (s *Server) handleNFTListTiers(_ [20]byte, _ *RPCRequest) (interface{}, error) {
	tiers, err := s.nft.Tiers()
	if err != nil {
		return nil, err
	}
	out := make([]tierResult, 0, len(tiers))
	for _, tier := range tiers {
		out = append(out, formatTier(tier))
	}
	return out, nil
}

func (s *Server) handleNFTGetToken(_ [20]byte, req *RPCRequest) (interface{}, error) {
	var params idParams
	if err := decodeParams(req, &params); err != nil {
		return nil, invalidParams(err)
	}
	token, err := s.nft.Token(params.ID)
	if err != nil {
		return nil, err
	}
	return tokenResult{
		ID:       token.ID,
		Owner:    formatAddress(token.Owner),
		TierID:   token.TierID,
		URI:      token.URI,
		MintedAt: token.MintedAt,
	}, nil
}

func (s *Server) handleNFTHoldings(_ [20]byte, req *RPCRequest) (interface{}, error) {
	var params accountParams
	if err := decodeParams(req, &params); err != nil {
		return nil, invalidParams(err)
	}
	owner, err := crypto.ParseAccount(params.Account)
	if err != nil {
		return nil, invalidParams(err)
	}
	level, err := s.nft.LevelOf(owner)
	if err != nil {
		return nil, err
	}
	tokens, err := s.nft.TokensOf(owner)
	if err != nil {
		return nil, err
	}
	if tokens == nil {
		tokens = []uint64{}
	}
	return holdingsResult{Owner: formatAddress(owner), Level: level, Tokens: tokens}, nil
}

func (s *Server) handleNFTMintRecord(_ [20]byte, req *RPCRequest) (interface{}, error) {
	var params mintRecordParams
	if err := decodeParams(req, &params); err != nil {
		return nil, invalidParams(err)
	}
	account, err := crypto.ParseAccount(params.Account)
	if err != nil {
		return nil, invalidParams(err)
	}
	return s.nft.MintRecord(account, params.TierID)
}

func (s *Server) handleNFTStatus(_ [20]byte, _ *RPCRequest) (interface{}, error) {
	owner, err := s.nft.Owner()
	if err != nil {
		return nil, err
	}
	gate, err := guardStatus(s.nft.GuardStatus)
	if err != nil {
		return nil, err
	}
	proceeds, err := s.nft.Proceeds()
	if err != nil {
		return nil, err
	}
	root, err := s.nft.WhitelistRoot()
	if err != nil {
		return nil, err
	}
	count, err := s.nft.TierCount()
	if err != nil {
		return nil, err
	}
	result := nftStatusResult{
		Owner:     formatAddress(owner),
		Paused:    s.nft.Paused(),
		Guard:     gate,
		Proceeds:  bigString(proceeds),
		TierCount: count,
	}
	if root != ([32]byte{}) {
		result.WhitelistRoot = "0x" + hex.EncodeToString(root[:])
	}
	return result, nil
}
