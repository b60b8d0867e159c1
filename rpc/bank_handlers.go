package rpc

import (
	"questchain/crypto"
	"questchain/native/bank"
)

type balanceParams struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
}

type balanceResult struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
	Balance string `json:"balance"`
}

type supplyResult struct {
	Asset  string `json:"asset"`
	Supply string `json:"supply"`
}

func (s *Server) registerBank() {
	s.register("bank_getBalance", "bank", false, s.handleBankGetBalance)
	s.register("bank_totalSupply", "bank", false, s.handleBankTotalSupply)
}

func (s *Server) handleBankGetBalance(_ [20]byte, req *RPCRequest) (interface{}, error) {
	var params balanceParams
	if err := decodeParams(req, &params); err != nil {
		return nil, invalidParams(err)
	}
	account, err := crypto.ParseAccount(params.Account)
	if err != nil {
		return nil, invalidParams(err)
	}
	asset, err := bank.NormalizeAsset(params.Asset)
	if err != nil {
		return nil, invalidParams(err)
	}
	balance, err := s.ledger.BalanceOf(account, asset)
	if err != nil {
		return nil, err
	}
	return balanceResult{Account: formatAddress(account), Asset: asset, Balance: bigString(balance)}, nil
}

func (s *Server) handleBankTotalSupply(_ [20]byte, req *RPCRequest) (interface{}, error) {
	var params assetParams
	if len(req.Params) > 0 {
		if err := decodeParams(req, &params); err != nil {
			return nil, invalidParams(err)
		}
	}
	asset, err := bank.NormalizeAsset(params.Asset)
	if err != nil {
		return nil, invalidParams(err)
	}
	supply, err := s.ledger.TotalSupply(asset)
	if err != nil {
		return nil, err
	}
	return supplyResult{Asset: asset, Supply: bigString(supply)}, nil
}
