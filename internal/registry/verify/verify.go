// Package verify joins the provenance registry's stored responses and
// hash-chain with the statistical/zero-width detector to answer "was
// this text produced, signed, and anchored by a registered company?".
package verify

import (
	"context"
	"fmt"

	"github.com/rawblock/watermark-gateway/internal/detector"
	"github.com/rawblock/watermark-gateway/internal/registry/chain"
	"github.com/rawblock/watermark-gateway/internal/registry/signature"
	"github.com/rawblock/watermark-gateway/internal/store"
)

// Result is the outcome of a provenance verification request.
type Result struct {
	Verified     bool
	Reason       string
	IssuerID     int64
	TxHash       string
	BlockNum     int64
	DataHash     string
	WatermarkTag *detector.VerifyResult
}

// Verifier combines the provenance store, chain, and the text
// watermark detector.
type Verifier struct {
	store    *store.Store
	chain    *chain.Chain
	detector *detector.Detector
}

// New builds a Verifier.
func New(s *store.Store, c *chain.Chain, d *detector.Detector) *Verifier {
	return &Verifier{store: s, chain: c, detector: d}
}

// VerifyText looks up text's stored response by its SHA-256 hash,
// confirms a chain block anchors that hash, cross-checks the
// signature against the registered company, and layers the zero-width
// tag / statistical watermark detector on top for defense in depth.
func (v *Verifier) VerifyText(ctx context.Context, text string) (*Result, error) {
	dataHash := signature.HashText(text)

	resp, err := v.store.GetResponseByHash(ctx, dataHash)
	if err != nil {
		return nil, fmt.Errorf("verify: lookup response: %w", err)
	}
	if resp == nil {
		result := &Result{Verified: false, Reason: "hash not found in registry", DataHash: dataHash}
		v.attachWatermark(text, result)
		return result, nil
	}

	block, err := v.store.GetBlockByDataHash(ctx, dataHash)
	if err != nil {
		return nil, fmt.Errorf("verify: lookup chain block: %w", err)
	}
	if block == nil {
		result := &Result{Verified: false, Reason: "response found but not anchored on chain", DataHash: dataHash, IssuerID: resp.IssuerID}
		v.attachWatermark(text, result)
		return result, nil
	}

	company, err := v.store.GetCompanyByIssuer(ctx, resp.IssuerID)
	if err != nil {
		return nil, fmt.Errorf("verify: lookup company: %w", err)
	}
	if company == nil {
		result := &Result{Verified: false, Reason: "issuer is no longer an active registered company", DataHash: dataHash, IssuerID: resp.IssuerID}
		v.attachWatermark(text, result)
		return result, nil
	}

	verifiedSigner := signature.VerifySignature(dataHash, resp.SignatureHex, &signature.Company{
		IssuerID:   company.IssuerID,
		Name:       company.Name,
		EthAddress: company.EthAddress,
	})
	if verifiedSigner == nil {
		result := &Result{Verified: false, Reason: "stored signature does not match the registered company", DataHash: dataHash, IssuerID: resp.IssuerID}
		v.attachWatermark(text, result)
		return result, nil
	}

	result := &Result{
		Verified: true,
		Reason:   "ok",
		IssuerID: resp.IssuerID,
		TxHash:   block.TxHash,
		BlockNum: block.BlockNum,
		DataHash: dataHash,
	}
	v.attachWatermark(text, result)
	return result, nil
}

// VerifyAnchor confirms dataHash is anchored under exactly txHash,
// without requiring the full text (spec's lower-level chain.verify).
func (v *Verifier) VerifyAnchor(ctx context.Context, dataHash, txHash string) (bool, error) {
	return v.chain.Verify(ctx, v.store, dataHash, txHash)
}

func (v *Verifier) attachWatermark(text string, result *Result) {
	if v.detector == nil {
		return
	}
	r := v.detector.Verify(text, "", nil, nil, nil, 7)
	result.WatermarkTag = &r
}
