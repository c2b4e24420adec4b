package fetcher

import (
	"math"

	"github.com/samber/lo"

	"hotpool/internal/model"
)

const (
	organicMinTxns        = 20
	organicActiveTxns     = 100.0
	organicSkewWeight     = 60.0
	organicActivityWeight = 10.0
)

// OrganicScore estimates how much of a token's recent flow looks organic, on a
// 0-100 scale, from one hour of buy and sell counts. It is a proxy used only
// because no trusted score is available.
//
// Lopsided flow (all buys or all sells) costs up to 60 points and thin flow
// under 100 transactions up to 10. Fewer than 20 transactions is too little to
// judge and yields model.NeutralOrganicScore.
func OrganicScore(buys, sells int) float64 {
	total := buys + sells
	if buys < 0 || sells < 0 || total < organicMinTxns {
		return model.NeutralOrganicScore
	}

	skew := math.Abs(float64(buys-sells)) / float64(total)
	activity := math.Min(float64(total)/organicActiveTxns, 1)
	score := 100 - organicSkewWeight*skew - organicActivityWeight*(1-activity)
	return lo.Clamp(score, 0, 100)
}
