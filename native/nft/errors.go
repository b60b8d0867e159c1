package nft

import "errors"

var (
	ErrNameLengthInvalid     = errors.New("nft: name must be 1-50 characters")
	ErrEmptyLocation         = errors.New("nft: metadata location required")
	ErrSupplyMustBePositive  = errors.New("nft: max supply must be positive")
	ErrPoolMustBePositive    = errors.New("nft: pool limit must be positive")
	ErrFreeMintExceedsSupply = errors.New("nft: free mint allotment exceeds max supply")
	ErrInvalidPrice          = errors.New("nft: price must not be negative")
	ErrSupplyBelowMinted     = errors.New("nft: max supply below minted count")
	ErrInvalidTierIndex      = errors.New("nft: invalid tier index")
	ErrTierNotActive         = errors.New("nft: tier not active")
	ErrMaxSupplyReached      = errors.New("nft: max supply reached")
	ErrAlreadyMinted         = errors.New("nft: already minted")
	ErrInsufficientPayment   = errors.New("nft: insufficient payment")
	ErrRootNotSet            = errors.New("nft: whitelist root not set")
	ErrInvalidProof          = errors.New("nft: invalid whitelist proof")
	ErrTokenNotFound         = errors.New("nft: token not found")
	ErrAlreadyInitialised    = errors.New("nft: already initialised")
)
