package grid

import "grid-maker-go/strategy"

// BuildParams 构建一整套档位所需的参数。
type BuildParams struct {
	Ladder    strategy.LadderParams
	Direction strategy.Direction
	Targets   strategy.TargetParams
}

// BuildLevels 生成价格阶梯，按方向分配买卖，并预先计算每档止盈止损。
func BuildLevels(p BuildParams) ([]Level, error) {
	prices, err := strategy.BuildLadder(p.Ladder)
	if err != nil {
		return nil, err
	}
	mid := p.Ladder.Mid()
	levels := make([]Level, len(prices))
	for i, px := range prices {
		side := p.Direction.SideFor(px, mid)
		levels[i] = Level{
			Index:      i,
			Price:      px,
			Side:       side,
			TakeProfit: p.Targets.TakeProfit(px, i, side, prices),
			StopLoss:   p.Targets.StopLoss(px, side),
		}
	}
	return levels, nil
}
