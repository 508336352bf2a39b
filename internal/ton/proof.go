package ton

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// https://docs.ton.org/develop/dapps/ton-connect/sign#checking-ton_proof-on-server-side
	TonProofPrefix   = "ton-proof-item-v2/"
	TonConnectPrefix = "ton-connect"

	MaxProofAge  = 5 * time.Minute
	maxClockSkew = time.Minute
)

// ProofData is what a TON Connect wallet returns for a ton_proof request.
type ProofData struct {
	Address   string `json:"address"` // raw, "0:<hex>"
	Network   string `json:"network"`
	PublicKey string `json:"public_key"` // hex
	Proof     Proof  `json:"proof"`
}

type Proof struct {
	Timestamp int64       `json:"timestamp"`
	Domain    ProofDomain `json:"domain"`
	Payload   string      `json:"payload"`
	Signature string      `json:"signature"` // base64 or hex
}

type ProofDomain struct {
	LengthBytes int    `json:"lengthBytes"`
	Value       string `json:"value"`
}

// VerifyProof checks a ton_proof signature made by pubKeyHex for the wallet
// workchain:address.
//
//	message   = "ton-proof-item-v2/" ++ wc(4 LE) ++ hash(32) ++ len(domain)(4 LE) ++ domain ++ ts(8 LE) ++ payload
//	signed    = sha256(0xffff ++ "ton-connect" ++ sha256(message))
func VerifyProof(pubKeyHex string, address []byte, workchain int32, proof Proof, allowedDomains []string) error {
	return verifyProofAt(time.Now(), pubKeyHex, address, workchain, proof, allowedDomains)
}

func verifyProofAt(now time.Time, pubKeyHex string, address []byte, workchain int32, proof Proof, allowedDomains []string) error {
	signedAt := time.Unix(proof.Timestamp, 0)
	if now.Sub(signedAt) > MaxProofAge {
		return fmt.Errorf("proof expired: %s old", now.Sub(signedAt).Round(time.Second))
	}
	if signedAt.After(now.Add(maxClockSkew)) {
		return fmt.Errorf("proof timestamp is in the future")
	}
	if !isDomainAllowed(proof.Domain.Value, allowedDomains) {
		return fmt.Errorf("domain %q not in allowed list", proof.Domain.Value)
	}

	pubKey, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return fmt.Errorf("invalid public key hex: %w", err)
	}
	if len(pubKey) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid public key size: %d", len(pubKey))
	}

	sig, err := decodeSignature(proof.Signature)
	if err != nil {
		return err
	}

	digest := ProofDigest(address, workchain, proof)
	if !ed25519.Verify(pubKey, digest[:], sig) {
		return fmt.Errorf("invalid signature")
	}
	return nil
}

// ProofDigest is the 32-byte digest a wallet signs for proof.
func ProofDigest(address []byte, workchain int32, proof Proof) [32]byte {
	msg := make([]byte, 0, len(TonProofPrefix)+4+len(address)+4+len(proof.Domain.Value)+8+len(proof.Payload))
	msg = append(msg, TonProofPrefix...)
	msg = binary.LittleEndian.AppendUint32(msg, uint32(workchain))
	msg = append(msg, address...)
	msg = binary.LittleEndian.AppendUint32(msg, uint32(proof.Domain.LengthBytes))
	msg = append(msg, proof.Domain.Value...)
	msg = binary.LittleEndian.AppendUint64(msg, uint64(proof.Timestamp))
	msg = append(msg, proof.Payload...)
	msgHash := sha256.Sum256(msg)

	full := make([]byte, 0, 2+len(TonConnectPrefix)+len(msgHash))
	full = append(full, 0xff, 0xff)
	full = append(full, TonConnectPrefix...)
	full = append(full, msgHash[:]...)
	return sha256.Sum256(full)
}

// Wallets send base64; older clients of this API sent hex.
func decodeSignature(s string) ([]byte, error) {
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == ed25519.SignatureSize {
		return b, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("signature is neither base64 nor hex")
	}
	if len(b) != ed25519.SignatureSize {
		return nil, fmt.Errorf("invalid signature size: %d", len(b))
	}
	return b, nil
}

// NetworkName maps TON Connect chain ids to network names.
func NetworkName(n string) string {
	switch n {
	case "-239":
		return "mainnet"
	case "-3":
		return "testnet"
	}
	return n
}

// ParseRawAddress splits "<workchain>:<64 hex>" into its parts.
func ParseRawAddress(raw string) (int32, []byte, error) {
	wcPart, hashHex, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return 0, nil, fmt.Errorf("invalid raw address format: %s", raw)
	}
	wc, err := strconv.ParseInt(wcPart, 10, 32)
	if err != nil {
		return 0, nil, fmt.Errorf("invalid workchain in %s", raw)
	}
	hash, err := hex.DecodeString(hashHex)
	if err != nil {
		return 0, nil, fmt.Errorf("invalid address hash hex: %w", err)
	}
	if len(hash) != 32 {
		return 0, nil, fmt.Errorf("address hash must be 32 bytes, got %d", len(hash))
	}
	return int32(wc), hash, nil
}

// An empty allow-list accepts any domain (local development).
func isDomainAllowed(domain string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, d := range allowed {
		if d == domain {
			return true
		}
	}
	return false
}
