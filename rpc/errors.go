package rpc

import (
	"errors"
	"net/http"

	"questchain/native/bank"
	"questchain/native/campaign"
	"questchain/native/common"
	"questchain/native/guard"
	"questchain/native/nft"
)

var (
	forbiddenErrors = []error{
		common.ErrNotOwner,
		guard.ErrNotAGuard,
		campaign.ErrNotCreator,
	}
	notFoundErrors = []error{
		nft.ErrInvalidTierIndex,
		nft.ErrTokenNotFound,
		campaign.ErrCampaignNotFound,
	}
	conflictErrors = []error{
		common.ErrPaused,
		common.ErrReentrant,
		guard.ErrNotApproved,
		guard.ErrGateInitialised,
		nft.ErrAlreadyInitialised,
		nft.ErrAlreadyMinted,
		campaign.ErrAlreadyInitialised,
		campaign.ErrAlreadyRegistered,
		campaign.ErrAlreadyCompleted,
		campaign.ErrCampaignWasCompleted,
		campaign.ErrInvalidNonce,
		campaign.ErrBatchAlreadyProcessed,
	}
	rejectedErrors = []error{
		common.ErrZeroAddress,
		common.ErrNoFundsToWithdraw,
		common.ErrTransferFailed,
		guard.ErrInvalidGuardAddress,
		guard.ErrGateUninitialised,
		bank.ErrInvalidAsset,
		bank.ErrInvalidAmount,
		bank.ErrInsufficientBalance,
		bank.ErrAmountOverflow,
		nft.ErrNameLengthInvalid,
		nft.ErrEmptyLocation,
		nft.ErrSupplyMustBePositive,
		nft.ErrPoolMustBePositive,
		nft.ErrFreeMintExceedsSupply,
		nft.ErrInvalidPrice,
		nft.ErrSupplyBelowMinted,
		nft.ErrTierNotActive,
		nft.ErrMaxSupplyReached,
		nft.ErrInsufficientPayment,
		nft.ErrRootNotSet,
		nft.ErrInvalidProof,
		campaign.ErrInvalidCampaignData,
		campaign.ErrCampaignEnded,
		campaign.ErrCampaignNotEnded,
		campaign.ErrCampaignNotActive,
		campaign.ErrCampaignClosed,
		campaign.ErrRegistrationFull,
		campaign.ErrNotRegistered,
		campaign.ErrNoTierSource,
		campaign.ErrNoMembership,
		campaign.ErrTierLookup,
		campaign.ErrPoolLimitReached,
		campaign.ErrBadSignature,
		campaign.ErrAuthorityNotSet,
		campaign.ErrEmptyBatch,
		campaign.ErrBatchTooLarge,
		campaign.ErrInvalidFee,
	}
)

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// classifyError maps a handler error onto an HTTP status and JSON-RPC code.
func classifyError(err error) (int, int) {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return http.StatusBadRequest, rpcErr.Code
	}
	switch {
	case matchesAny(err, forbiddenErrors):
		return http.StatusForbidden, codeForbidden
	case matchesAny(err, notFoundErrors):
		return http.StatusNotFound, codeNotFound
	case matchesAny(err, conflictErrors):
		return http.StatusConflict, codeConflict
	case matchesAny(err, rejectedErrors):
		return http.StatusUnprocessableEntity, codeRejected
	default:
		return http.StatusInternalServerError, codeServerError
	}
}

func errorMessage(err error) string {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Message
	}
	status, _ := classifyError(err)
	if status >= http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}

func invalidParams(err error) error {
	return &RPCError{Code: codeInvalidParams, Message: "invalid params", Data: err.Error()}
}
