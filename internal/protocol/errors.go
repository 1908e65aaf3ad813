package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Trade negotiation layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrUserBusy      = "E_USER_BUSY"
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrSelfTrade     = "E_SELF_TRADE"
	ErrNotInTrade    = "E_NOT_IN_TRADE"
	ErrBadOffer      = "E_BAD_OFFER"
	ErrNoGold        = "E_NO_GOLD"
	ErrNoPermission  = "E_NO_PERMISSION"
	ErrRateLimit     = "E_RATE_LIMIT"

	// Commit layer.
	ErrStale    = "E_STALE"
	ErrBlocked  = "E_BLOCKED"
	ErrRollback = "E_ROLLBACK"
	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBadRequest:      {},
	ErrUserBusy:        {},
	ErrInvalidTarget:   {},
	ErrSelfTrade:       {},
	ErrNotInTrade:      {},
	ErrBadOffer:        {},
	ErrNoGold:          {},
	ErrNoPermission:    {},
	ErrRateLimit:       {},
	ErrStale:           {},
	ErrBlocked:         {},
	ErrRollback:        {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
