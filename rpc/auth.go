package rpc

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"questchain/crypto"
)

const (
	// HeaderTimestamp carries the unix time (seconds) the request was signed at.
	HeaderTimestamp = "X-Quest-Timestamp"
	// HeaderSignature carries the hex encoded 65-byte secp256k1 signature.
	HeaderSignature = "X-Quest-Signature"
)

const maxReplayEntries = 1 << 16

// RequestDigest returns the digest a caller signs to authenticate a request:
// the personal-message hash of keccak256(timestamp "|" body).
func RequestDigest(timestamp string, body []byte) []byte {
	inner := ethcrypto.Keccak256([]byte(timestamp), []byte("|"), body)
	return accounts.TextHash(inner)
}

// SignRequest produces the authentication headers for body.
func SignRequest(key *crypto.PrivateKey, body []byte, at time.Time) (timestamp, signature string, err error) {
	if key == nil {
		return "", "", fmt.Errorf("signing key required")
	}
	timestamp = strconv.FormatInt(at.Unix(), 10)
	sig, err := key.Sign(RequestDigest(timestamp, body))
	if err != nil {
		return "", "", err
	}
	return timestamp, "0x" + hex.EncodeToString(sig), nil
}

// replayCache remembers accepted request digests until they fall outside
// the timestamp window.
type replayCache struct {
	mu   sync.Mutex
	seen map[[32]byte]int64
}

func newReplayCache() *replayCache {
	return &replayCache{seen: make(map[[32]byte]int64)}
}

// observe records digest and reports false if it was already present.
func (c *replayCache) observe(digest [32]byte, expires, now int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if exp, ok := c.seen[digest]; ok && exp >= now {
		return false
	}
	if len(c.seen) >= maxReplayEntries {
		for key, exp := range c.seen {
			if exp < now {
				delete(c.seen, key)
			}
		}
	}
	c.seen[digest] = expires
	return true
}

// authenticate recovers the caller from the signed request headers.
func (s *Server) authenticate(r *http.Request, body []byte) ([20]byte, *RPCError) {
	var caller [20]byte
	tsHeader := strings.TrimSpace(r.Header.Get(HeaderTimestamp))
	sigHeader := strings.TrimSpace(r.Header.Get(HeaderSignature))
	if tsHeader == "" || sigHeader == "" {
		return caller, &RPCError{Code: codeUnauthorized, Message: "signed request required"}
	}
	ts, err := strconv.ParseInt(tsHeader, 10, 64)
	if err != nil {
		return caller, &RPCError{Code: codeUnauthorized, Message: "invalid timestamp", Data: err.Error()}
	}
	now := s.nowFn().Unix()
	skew := int64(s.cfg.MaxSkew / time.Second)
	if ts < now-skew || ts > now+skew {
		return caller, &RPCError{Code: codeUnauthorized, Message: "request timestamp outside allowed window"}
	}
	sig, err := decodeHex(sigHeader)
	if err != nil {
		return caller, &RPCError{Code: codeUnauthorized, Message: "invalid signature encoding", Data: err.Error()}
	}
	digest := RequestDigest(tsHeader, body)
	caller, err = crypto.RecoverSigner(digest, sig)
	if err != nil {
		return caller, &RPCError{Code: codeUnauthorized, Message: "invalid signature", Data: err.Error()}
	}
	var key [32]byte
	copy(key[:], digest)
	if !s.replays.observe(key, ts+skew, now) {
		return [20]byte{}, &RPCError{Code: codeUnauthorized, Message: "request already processed"}
	}
	return caller, nil
}
