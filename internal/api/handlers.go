package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/watermark-gateway/internal/apierr"
	"github.com/rawblock/watermark-gateway/internal/payload"
	"github.com/rawblock/watermark-gateway/internal/registry/credentials"
	"github.com/rawblock/watermark-gateway/internal/registry/signature"
	"github.com/rawblock/watermark-gateway/internal/store"
	"github.com/rawblock/watermark-gateway/internal/zerowidth"
)

func mustJSON(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte(`{}`)
	}
	return b
}

func writeAPIErr(c *gin.Context, err error) {
	c.JSON(apierr.HTTPStatus(err), gin.H{"error": err.Error(), "kind": apierr.KindOf(err)})
}

// handleCreateCompany issues a fresh secp256k1 keypair, allocates the
// next issuer id, and persists the company. The private key is
// returned exactly once and never stored.
func (h *APIHandler) handleCreateCompany(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected a non-empty {name}"})
		return
	}

	ctx := c.Request.Context()
	maxID, err := h.store.MaxIssuerID(ctx)
	if err != nil {
		writeAPIErr(c, apierr.Wrap(apierr.Internal, err, "look up max issuer id"))
		return
	}
	issuerID := credentials.NextIssuerID(maxID)

	privHex, pubHex, ethAddr, err := credentials.GenerateKeypair()
	if err != nil {
		writeAPIErr(c, apierr.Wrap(apierr.Internal, err, "generate keypair"))
		return
	}

	id, err := h.store.InsertCompany(ctx, req.Name, issuerID, ethAddr, pubHex)
	if err != nil {
		if errors.Is(err, store.ErrUniqueViolation) {
			writeAPIErr(c, apierr.Wrap(apierr.TransientConflict, err, "issuer_id or eth_address already registered"))
			return
		}
		writeAPIErr(c, apierr.Wrap(apierr.Internal, err, "insert company"))
		return
	}

	h.log.Info("registered new company", "company_id", id, "issuer_id", issuerID, "eth_address", ethAddr)

	c.JSON(http.StatusCreated, gin.H{
		"company_id":      id,
		"issuer_id":       issuerID,
		"name":            req.Name,
		"eth_address":     ethAddr,
		"public_key_hex":  pubHex,
		"private_key_hex": privHex,
	})
}

// handleDeactivateCompany flips a company inactive so future
// signatures from it no longer verify.
func (h *APIHandler) handleDeactivateCompany(c *gin.Context) {
	issuerID, err := strconv.ParseInt(c.Param("issuer_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "issuer_id must be an integer"})
		return
	}
	if err := h.store.DeactivateCompany(c.Request.Context(), issuerID); err != nil {
		writeAPIErr(c, apierr.Wrap(apierr.Internal, err, "deactivate company"))
		return
	}
	h.log.Info("deactivated company", "issuer_id", issuerID)
	c.JSON(http.StatusOK, gin.H{"issuer_id": issuerID, "active": false})
}

// handleListCompanies is a public listing of registered issuers; no
// private key or admin secret is ever included.
func (h *APIHandler) handleListCompanies(c *gin.Context) {
	companies, err := h.store.ListCompanies(c.Request.Context())
	if err != nil {
		writeAPIErr(c, apierr.Wrap(apierr.Internal, err, "list companies"))
		return
	}
	out := make([]gin.H, 0, len(companies))
	for _, co := range companies {
		out = append(out, gin.H{
			"issuer_id":   co.IssuerID,
			"name":        co.Name,
			"eth_address": co.EthAddress,
			"active":      co.Active,
			"created_at":  co.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"companies": out})
}

// handleApply tags already-generated text with a zero-width metadata
// payload. Unlike the generation path, the tokens are already fixed,
// so no statistical bias can be applied — this is pure tagging.
func (h *APIHandler) handleApply(c *gin.Context) {
	var req struct {
		Text     string `json:"text"`
		WmParams struct {
			SchemaVersion  uint8  `json:"schema_version"`
			IssuerID       uint16 `json:"issuer_id"`
			ModelID        uint16 `json:"model_id"`
			ModelVersionID uint16 `json:"model_version_id"`
			KeyID          uint8  `json:"key_id"`
		} `json:"wm_params"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected {text, wm_params}"})
		return
	}

	meta := payload.New(req.WmParams.SchemaVersion, req.WmParams.IssuerID, req.WmParams.ModelID, req.WmParams.ModelVersionID, req.WmParams.KeyID)
	word, err := payload.Pack(meta)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tag := zerowidth.EncodePayloadToTag(word, zerowidth.DefaultConfig())

	c.JSON(http.StatusOK, gin.H{
		"text":     req.Text + tag,
		"raw_text": req.Text,
	})
}

// handleAnchor signs-checks and anchors a watermarked response onto
// the hash chain, keyed off its SHA-256 hash. Anchoring text whose
// hash already has a stored response and chain block returns the
// existing receipt instead of anchoring a duplicate block; no
// idempotency header is read.
func (h *APIHandler) handleAnchor(c *gin.Context) {
	var req struct {
		Text         string                 `json:"text"`
		RawText      string                 `json:"raw_text"`
		SignatureHex string                 `json:"signature_hex"`
		IssuerID     int64                  `json:"issuer_id"`
		Metadata     map[string]interface{} `json:"metadata"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Text == "" || req.SignatureHex == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected {text, raw_text, signature_hex, issuer_id, metadata}"})
		return
	}

	ctx := c.Request.Context()
	dataHash := signature.HashText(req.Text)

	if existing, err := h.store.GetResponseByHash(ctx, dataHash); err == nil && existing != nil {
		if block, err := h.store.GetBlockByDataHash(ctx, dataHash); err == nil && block != nil {
			c.JSON(http.StatusOK, gin.H{
				"tx_hash":    block.TxHash,
				"block_num":  block.BlockNum,
				"data_hash":  dataHash,
				"issuer_id":  block.IssuerID,
				"idempotent": true,
			})
			return
		}
	}

	company, err := h.store.GetCompanyByIssuer(ctx, req.IssuerID)
	if err != nil {
		writeAPIErr(c, apierr.Wrap(apierr.Internal, err, "look up issuer"))
		return
	}
	if company == nil {
		writeAPIErr(c, apierr.New(apierr.PermissionDenied, "issuer %d is not an active registered company", req.IssuerID))
		return
	}
	verified := signature.VerifySignature(dataHash, req.SignatureHex, &signature.Company{
		IssuerID: company.IssuerID, Name: company.Name, EthAddress: company.EthAddress,
	})
	if verified == nil {
		writeAPIErr(c, apierr.New(apierr.PermissionDenied, "signature does not match the claimed issuer"))
		return
	}

	if _, err := h.store.InsertResponse(ctx, dataHash, req.IssuerID, req.SignatureHex, req.RawText, req.Text, ""); err != nil {
		writeAPIErr(c, apierr.Wrap(apierr.Internal, err, "insert response"))
		return
	}

	receipt, err := h.chain.Anchor(ctx, dataHash, req.IssuerID, req.SignatureHex, req.Metadata)
	if err != nil {
		writeAPIErr(c, apierr.Wrap(apierr.Internal, err, "anchor block"))
		return
	}

	requestID, _ := c.Get("request_id")
	h.hub.Broadcast(mustJSON(gin.H{
		"type":       "anchor",
		"data_hash":  dataHash,
		"tx_hash":    receipt.TxHash,
		"request_id": stringOrEmpty(requestID),
	}))

	c.JSON(http.StatusOK, gin.H{
		"tx_hash":   receipt.TxHash,
		"block_num": receipt.BlockNum,
		"data_hash": receipt.DataHash,
		"issuer_id": receipt.IssuerID,
		"timestamp": receipt.Timestamp,
	})
}

func stringOrEmpty(v interface{}) string {
	s, _ := v.(string)
	return s
}

// handleRegistryVerify answers "was this text produced, signed, and
// anchored by a registered company?" — the full provenance join.
func (h *APIHandler) handleRegistryVerify(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected {text}"})
		return
	}
	result, err := h.verifier.VerifyText(c.Request.Context(), req.Text)
	if err != nil {
		writeAPIErr(c, apierr.Wrap(apierr.Internal, err, "verify text"))
		return
	}

	h.hub.Broadcast(mustJSON(gin.H{
		"type":      "verify",
		"verified":  result.Verified,
		"reason":    result.Reason,
		"issuer_id": result.IssuerID,
	}))

	c.JSON(http.StatusOK, result)
}

// handleChainStatus reports chain length and linkage integrity.
func (h *APIHandler) handleChainStatus(c *gin.Context) {
	ctx := c.Request.Context()
	length, err := h.chain.ChainLength(ctx, h.store)
	if err != nil {
		writeAPIErr(c, apierr.Wrap(apierr.Internal, err, "chain length"))
		return
	}
	valid, message, err := h.chain.ValidateChain(ctx, h.store)
	if err != nil {
		writeAPIErr(c, apierr.Wrap(apierr.Internal, err, "validate chain"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"chain_length": length,
		"valid":        valid,
		"message":      message,
	})
}

// handleListBlocks pages through the chain in block_num order.
func (h *APIHandler) handleListBlocks(c *gin.Context) {
	limit := int64(50)
	offset := int64(0)
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			offset = n
		}
	}
	blocks, err := h.store.ListBlocksPaged(c.Request.Context(), limit, offset)
	if err != nil {
		writeAPIErr(c, apierr.Wrap(apierr.Internal, err, "list blocks"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"blocks": blocks, "limit": limit, "offset": offset})
}

// handleGetBlock returns a single block by its number.
func (h *APIHandler) handleGetBlock(c *gin.Context) {
	n, err := strconv.ParseInt(c.Param("n"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "block number must be an integer"})
		return
	}
	block, err := h.store.GetBlockByNum(c.Request.Context(), n)
	if err != nil {
		writeAPIErr(c, apierr.Wrap(apierr.Internal, err, "get block"))
		return
	}
	if block == nil {
		writeAPIErr(c, apierr.New(apierr.NotFound, "no block numbered %d", n))
		return
	}
	c.JSON(http.StatusOK, block)
}

// handleDetectorVerify runs the zero-width + statistical detector
// directly against arbitrary text, independent of the registry.
func (h *APIHandler) handleDetectorVerify(c *gin.Context) {
	var req struct {
		Text      string `json:"text"`
		ModelHint string `json:"model_hint"`
		TokenIDs  []int  `json:"token_ids"`
		DaysBack  int    `json:"days_back"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected {text}"})
		return
	}
	daysBack := req.DaysBack
	if daysBack == 0 {
		daysBack = 7
	}

	model, vocabSize, tokenIDs, err := h.gateway.ResolveVerifyInputs(c.Request.Context(), req.Text, req.ModelHint, req.TokenIDs)
	if err != nil {
		writeAPIErr(c, apierr.Wrap(apierr.Upstream, err, "resolve verify inputs"))
		return
	}

	result := h.detector.Verify(req.Text, model, tokenIDs, nil, &vocabSize, daysBack)

	h.hub.Broadcast(mustJSON(gin.H{
		"type":   "watermark_verify",
		"status": result.Status,
	}))

	c.JSON(http.StatusOK, result)
}

// handleStrip removes the zero-width wire alphabet from text, used to
// render a clean copy for a human reader.
func (h *APIHandler) handleStrip(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected {text}"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"text": zerowidth.Strip(req.Text)})
}

// handleCompletions is the OpenAI-compatible completion endpoint,
// proxied through the watermarking gateway.
func (h *APIHandler) handleCompletions(c *gin.Context) {
	var body map[string]interface{}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	resp, err := h.gateway.HandleCompletion(c.Request.Context(), body)
	if err != nil {
		writeAPIErr(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// handleChatCompletions is the OpenAI-compatible chat completion
// endpoint, proxied through the watermarking gateway.
func (h *APIHandler) handleChatCompletions(c *gin.Context) {
	var body map[string]interface{}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	resp, err := h.gateway.HandleChatCompletion(c.Request.Context(), body)
	if err != nil {
		writeAPIErr(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
