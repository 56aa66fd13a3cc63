package gateway

import "context"

// ResolveVerifyInputs fills in whatever the caller omitted for a
// /internal/watermark/verify request: the model id behind modelHint
// and, if tokenIDs was nil, a fresh tokenization of text.
func (g *Gateway) ResolveVerifyInputs(ctx context.Context, text, modelHint string, tokenIDs []int) (resolvedModel string, vocabSize int, resolvedTokens []int, err error) {
	modelID, nVocab, err := g.upstream.ModelMeta(ctx, modelHint)
	if err != nil {
		return "", 0, nil, err
	}

	if tokenIDs == nil {
		resolvedTokens, err = g.upstream.Tokenize(ctx, text, true)
		if err != nil {
			return "", 0, nil, err
		}
	} else {
		resolvedTokens = tokenIDs
	}

	return modelID, nVocab, resolvedTokens, nil
}
