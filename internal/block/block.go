// Copyright (c) 2026 The powd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package block

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/minio/sha256-simd"
)

// DocumentVersion is the block document version used when a block does not
// carry one explicitly.
const DocumentVersion = 10

// Block is a block document of the chain.  Only the fields that take part in
// the raw inner part, the proof and the chain linkage are modeled.  Content
// lines (identities, certifications, transactions, ...) are carried in their
// compact inline form and are never interpreted here.
type Block struct {
	Version         uint32  `json:"version"`
	Currency        string  `json:"currency"`
	Number          uint32  `json:"number"`
	PowMin          uint32  `json:"powMin"`
	Time            int64   `json:"time"`
	MedianTime      int64   `json:"medianTime"`
	Dividend        *uint64 `json:"dividend"`
	UnitBase        uint32  `json:"unitbase"`
	Issuer          string  `json:"issuer"`
	IssuersFrame    uint32  `json:"issuersFrame"`
	IssuersFrameVar int32   `json:"issuersFrameVar"`
	IssuersCount    uint32  `json:"issuersCount"`
	PreviousHash    string  `json:"previousHash,omitempty"`
	PreviousIssuer  string  `json:"previousIssuer,omitempty"`
	Parameters      string  `json:"parameters,omitempty"`
	MembersCount    uint32  `json:"membersCount"`
	MonetaryMass    uint64  `json:"monetaryMass"`

	Identities     []string `json:"identities"`
	Joiners        []string `json:"joiners"`
	Actives        []string `json:"actives"`
	Leavers        []string `json:"leavers"`
	Revoked        []string `json:"revoked"`
	Excluded       []string `json:"excluded"`
	Certifications []string `json:"certifications"`
	Transactions   []string `json:"transactions"`

	InnerHash string `json:"inner_hash"`
	Nonce     uint64 `json:"nonce"`
	Signature string `json:"signature"`
	Hash      string `json:"hash"`
}

// Overrides are values forced into a generated candidate block.  Zero fields
// are left to the generator.
type Overrides struct {
	Time       int64
	MedianTime int64
}

// Clone returns a deep copy of the block so that a worker can mutate its
// nonce, time and proof fields without touching the caller's candidate.
func (b *Block) Clone() *Block {
	c := *b
	if b.Dividend != nil {
		d := *b.Dividend
		c.Dividend = &d
	}
	cloneLines := func(lines []string) []string {
		if lines == nil {
			return nil
		}
		return append([]string(nil), lines...)
	}
	c.Identities = cloneLines(b.Identities)
	c.Joiners = cloneLines(b.Joiners)
	c.Actives = cloneLines(b.Actives)
	c.Leavers = cloneLines(b.Leavers)
	c.Revoked = cloneLines(b.Revoked)
	c.Excluded = cloneLines(b.Excluded)
	c.Certifications = cloneLines(b.Certifications)
	c.Transactions = cloneLines(b.Transactions)
	return &c
}

// Stamp returns the "number-hash" stamp identifying the block.
func (b *Block) Stamp() string {
	return strconv.FormatUint(uint64(b.Number), 10) + "-" + b.Hash
}

// RawInnerPart returns the part of the raw block document covered by the inner
// hash.
func (b *Block) RawInnerPart() string {
	var sb strings.Builder
	version := b.Version
	if version == 0 {
		version = DocumentVersion
	}
	fmt.Fprintf(&sb, "Version: %d\n", version)
	sb.WriteString("Type: Block\n")
	fmt.Fprintf(&sb, "Currency: %s\n", b.Currency)
	fmt.Fprintf(&sb, "Number: %d\n", b.Number)
	fmt.Fprintf(&sb, "PoWMin: %d\n", b.PowMin)
	fmt.Fprintf(&sb, "Time: %d\n", b.Time)
	fmt.Fprintf(&sb, "MedianTime: %d\n", b.MedianTime)
	if b.Dividend != nil && *b.Dividend > 0 {
		fmt.Fprintf(&sb, "UniversalDividend: %d\n", *b.Dividend)
	}
	fmt.Fprintf(&sb, "UnitBase: %d\n", b.UnitBase)
	fmt.Fprintf(&sb, "Issuer: %s\n", b.Issuer)
	fmt.Fprintf(&sb, "IssuersFrame: %d\n", b.IssuersFrame)
	fmt.Fprintf(&sb, "IssuersFrameVar: %d\n", b.IssuersFrameVar)
	fmt.Fprintf(&sb, "DifferentIssuersCount: %d\n", b.IssuersCount)
	if b.PreviousHash != "" {
		fmt.Fprintf(&sb, "PreviousHash: %s\n", b.PreviousHash)
	}
	if b.PreviousIssuer != "" {
		fmt.Fprintf(&sb, "PreviousIssuer: %s\n", b.PreviousIssuer)
	}
	if b.Parameters != "" {
		fmt.Fprintf(&sb, "Parameters: %s\n", b.Parameters)
	}
	fmt.Fprintf(&sb, "MembersCount: %d\n", b.MembersCount)
	writeSection := func(title string, lines []string) {
		sb.WriteString(title)
		sb.WriteString(":\n")
		for _, line := range lines {
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
	}
	writeSection("Identities", b.Identities)
	writeSection("Joiners", b.Joiners)
	writeSection("Actives", b.Actives)
	writeSection("Leavers", b.Leavers)
	writeSection("Revoked", b.Revoked)
	writeSection("Excluded", b.Excluded)
	writeSection("Certifications", b.Certifications)
	writeSection("Transactions", b.Transactions)
	return sb.String()
}

// ComputeInnerHash returns the hash of the raw inner part of the block.
func (b *Block) ComputeInnerHash() string {
	return Hashf(b.RawInnerPart())
}

// ProofPayload returns the part of the document that is signed by the issuer
// and then hashed along with the signature to produce the block hash.
func ProofPayload(innerHash string, nonce uint64) string {
	return "InnerHash: " + innerHash + "\nNonce: " +
		strconv.FormatUint(nonce, 10) + "\n"
}

// ProofHash returns the block hash for the provided proof payload and its
// signature.
func ProofHash(payload, signature string) string {
	return Hashf(payload + signature + "\n")
}

// RawSigned returns the complete raw block document including its signature.
func (b *Block) RawSigned() string {
	return b.RawInnerPart() + ProofPayload(b.InnerHash, b.Nonce) +
		b.Signature + "\n"
}

// CheckProof ensures the inner hash and the hash of the block are consistent
// with its content, nonce and signature.
func (b *Block) CheckProof() error {
	if inner := b.ComputeInnerHash(); inner != b.InnerHash {
		str := fmt.Sprintf("block #%d inner hash %s does not match computed "+
			"inner hash %s", b.Number, b.InnerHash, inner)
		return makeError(ErrInnerHashMismatch, str)
	}
	hash := ProofHash(ProofPayload(b.InnerHash, b.Nonce), b.Signature)
	if hash != b.Hash {
		str := fmt.Sprintf("block #%d hash %s does not match computed hash %s",
			b.Number, b.Hash, hash)
		return makeError(ErrHashMismatch, str)
	}
	return nil
}

// Hashf returns the uppercase hexadecimal SHA-256 digest of the string.
func Hashf(s string) string {
	sum := sha256.Sum256([]byte(s))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}
