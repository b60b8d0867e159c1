package campaign

import "errors"

var (
	ErrInvalidCampaignData   = errors.New("campaign: invalid campaign data")
	ErrCampaignNotFound      = errors.New("campaign: not found")
	ErrCampaignEnded         = errors.New("campaign: ended")
	ErrCampaignNotEnded      = errors.New("campaign: not ended")
	ErrCampaignNotActive     = errors.New("campaign: not active")
	ErrCampaignClosed        = errors.New("campaign: closed")
	ErrRegistrationFull      = errors.New("campaign: registration full")
	ErrAlreadyRegistered     = errors.New("campaign: already registered")
	ErrCampaignWasCompleted  = errors.New("campaign: target already completed")
	ErrNotRegistered         = errors.New("campaign: not registered")
	ErrAlreadyCompleted      = errors.New("campaign: already completed")
	ErrNotCreator            = errors.New("campaign: caller is neither creator nor owner")
	ErrNoTierSource          = errors.New("campaign: tier source unavailable")
	ErrNoMembership          = errors.New("campaign: creator holds no membership tier")
	ErrTierLookup            = errors.New("campaign: tier lookup failed")
	ErrPoolLimitReached      = errors.New("campaign: open campaign limit reached for tier")
	ErrInvalidNonce          = errors.New("campaign: invalid nonce")
	ErrBatchAlreadyProcessed = errors.New("campaign: batch already processed")
	ErrBadSignature          = errors.New("campaign: bad signature")
	ErrAuthorityNotSet       = errors.New("campaign: backend authority not set")
	ErrEmptyBatch            = errors.New("campaign: batch has no campaigns")
	ErrBatchTooLarge         = errors.New("campaign: batch too large")
	ErrInvalidFee            = errors.New("campaign: fee must not be negative")
	ErrAlreadyInitialised    = errors.New("campaign: already initialised")
)
