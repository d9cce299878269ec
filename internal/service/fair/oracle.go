package fair

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	appErr "wager-service/pkg/errors"
)

const serverSeedBytes = 32

// Oracle implements the commit-reveal draw protocol: a round commits to a
// hashed server seed up front, players may set a client seed while betting is
// open, and the outcome is a deterministic function of (server seed, client
// seed, nonce) that anyone can recompute once the server seed is revealed.
type Oracle struct{}

func New() *Oracle {
	return &Oracle{}
}

type SeedPair struct {
	ServerSeed       string
	HashedServerSeed string
}

// Commit generates a fresh server seed and its SHA-256 commitment. The hash
// is published at round start; the seed is withheld until resolution.
func (o *Oracle) Commit() (SeedPair, error) {
	buf := make([]byte, serverSeedBytes)
	if _, err := rand.Read(buf); err != nil {
		return SeedPair{}, fmt.Errorf("generate server seed: %w", err)
	}
	seed := hex.EncodeToString(buf)
	return SeedPair{
		ServerSeed:       seed,
		HashedServerSeed: HashServerSeed(seed),
	}, nil
}

func HashServerSeed(serverSeed string) string {
	sum := sha256.Sum256([]byte(serverSeed))
	return hex.EncodeToString(sum[:])
}

// Draw returns a deterministic integer in [0, space). The server seed keys
// an HMAC-SHA512 over "clientSeed:nonce"; the first 8 bytes of the digest
// are reduced modulo space. With a 64-bit intermediate the modulo bias is
// below 2^-32 for any realistic outcome space.
func (o *Oracle) Draw(serverSeed, clientSeed string, nonce int64, space int64) (int64, error) {
	if space <= 0 {
		return 0, appErr.ErrInvalidOutcomeSpace
	}
	mac := hmac.New(sha512.New, []byte(serverSeed))
	fmt.Fprintf(mac, "%s:%d", clientSeed, nonce)
	digest := mac.Sum(nil)
	value := binary.BigEndian.Uint64(digest[:8])
	return int64(value % uint64(space)), nil
}

// Verify recomputes the draw and compares it to a claimed outcome. Auditors
// combine this with VerifyCommitment against the hash published at round
// start.
func (o *Oracle) Verify(serverSeed, clientSeed string, nonce, space, claimed int64) bool {
	got, err := o.Draw(serverSeed, clientSeed, nonce, space)
	if err != nil {
		return false
	}
	return got == claimed
}

// VerifyCommitment checks that a revealed server seed matches the hash
// published before the round accepted bets.
func (o *Oracle) VerifyCommitment(serverSeed, hashedServerSeed string) bool {
	return hmac.Equal([]byte(HashServerSeed(serverSeed)), []byte(hashedServerSeed))
}
