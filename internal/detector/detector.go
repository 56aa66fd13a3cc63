// Package detector combines the payload codec, zero-width codec, and
// statistical core into a single text -> VerifyResult classification.
package detector

import (
	"fmt"
	"time"

	"github.com/rawblock/watermark-gateway/internal/keys"
	"github.com/rawblock/watermark-gateway/internal/payload"
	"github.com/rawblock/watermark-gateway/internal/statistical"
	"github.com/rawblock/watermark-gateway/internal/zerowidth"
)

// Thresholds for z-score classification (spec §4.D).
const (
	ZThresholdVerified = 4.0
	ZThresholdLikely   = 2.5
)

// Config carries the subset of watermark configuration the detector needs.
type Config struct {
	MasterKeys     keys.MasterKeySet
	ActiveKeyID    int
	ContextWidth   int
	GreenlistRatio float64
	MaxBiasTokens  int
	ModelIDFor     func(modelHint string) int
	Tag            zerowidth.Config
}

// VerifyResult is the outcome of verifying a piece of text.
type VerifyResult struct {
	Status           string // "none" | "likely" | "verified"
	StatisticalScore *statistical.Score
	Payload          *payload.PackedMetadata
	KeyID            *int
	Explanations     []string
}

// Detector implements spec §4.E.
type Detector struct {
	cfg Config
}

// New builds a Detector bound to cfg.
func New(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// candidateDates returns YYYYMMDD strings for today and the daysBack
// preceding days (inclusive), in UTC.
func candidateDates(daysBack int) []string {
	now := time.Now().UTC()
	out := make([]string, 0, daysBack+1)
	for i := 0; i <= daysBack; i++ {
		out = append(out, now.AddDate(0, 0, -i).Format(keys.DateFormat))
	}
	return out
}

// Verify implements spec §4.E steps 1-5.
func (d *Detector) Verify(
	text string,
	modelHint string,
	tokenIDs []int,
	tokenize func(string) ([]int, error),
	vocabSize *int,
	daysBack int,
) VerifyResult {
	var explanations []string

	var pl *payload.PackedMetadata
	var payloadKeyID *int

	candidates := zerowidth.DecodeTagsFromText(text, d.cfg.Tag)
	if len(candidates) > 0 {
		explanations = append(explanations, fmt.Sprintf("found %d zero-width tag candidate(s)", len(candidates)))
	}
	for _, candidate := range candidates {
		meta, ok := payload.Unpack(candidate)
		if ok {
			m := meta
			pl = &m
			kid := int(meta.KeyID)
			payloadKeyID = &kid
			explanations = append(explanations, "valid CRC metadata payload recovered")
			break
		}
	}
	if pl == nil && len(candidates) > 0 {
		explanations = append(explanations, "zero-width tags found but CRC invalid")
	}

	if tokenIDs == nil && tokenize != nil {
		toks, err := tokenize(text)
		if err != nil {
			explanations = append(explanations, fmt.Sprintf("tokenization failed for statistical scoring: %v", err))
		} else {
			tokenIDs = toks
		}
	}

	modelID := 0
	if d.cfg.ModelIDFor != nil {
		modelID = d.cfg.ModelIDFor(modelHint)
	}

	statKeyID := d.cfg.ActiveKeyID
	if payloadKeyID != nil {
		statKeyID = *payloadKeyID
	}

	var statScore *statistical.Score
	if len(tokenIDs) > 0 {
		statScore = d.scoreStatistical(tokenIDs, modelID, statKeyID, daysBack, vocabSize)
		if statScore != nil {
			explanations = append(explanations, fmt.Sprintf(
				"statistical z-score=%.3f over %d tokens", statScore.ZScore, statScore.TotalScored))
		}
	}

	status := "none"
	switch {
	case pl != nil:
		status = "verified"
	case statScore != nil:
		if statScore.ZScore >= ZThresholdVerified {
			status = "verified"
		} else if statScore.ZScore >= ZThresholdLikely {
			status = "likely"
		}
	}

	keyID := payloadKeyID
	if keyID == nil {
		k := statKeyID
		keyID = &k
	}

	return VerifyResult{
		Status:           status,
		StatisticalScore: statScore,
		Payload:          pl,
		KeyID:            keyID,
		Explanations:     explanations,
	}
}

func (d *Detector) scoreStatistical(tokenIDs []int, modelID, keyID, daysBack int, vocabSize *int) *statistical.Score {
	if len(tokenIDs) == 0 {
		return nil
	}

	masterID, masterKey := d.cfg.MasterKeys.GetMasterKey(&keyID)

	var best *statistical.Score
	for _, dateStr := range candidateDates(daysBack) {
		dkey, err := keys.DeriveStepKey(masterKey, modelID, dateStr, masterID)
		if err != nil {
			continue
		}
		var score statistical.Score
		if vocabSize == nil {
			score = statistical.ScoreDense(tokenIDs, dkey, d.cfg.ContextWidth, d.cfg.GreenlistRatio)
		} else {
			score = statistical.ScoreSparse(tokenIDs, dkey, *vocabSize, d.cfg.ContextWidth, d.cfg.GreenlistRatio, d.cfg.MaxBiasTokens)
		}
		if best == nil || score.ZScore > best.ZScore {
			s := score
			best = &s
		}
	}
	return best
}
