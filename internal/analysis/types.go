package analysis

// Direction represents the directional read of a detected event
type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
	Neutral Direction = "neutral"
)

// Minimum bar counts below which a detector yields an empty result set
// instead of failing the run.
const (
	MinBarsFVG       = 2
	MinBarsMSS       = 3
	MinBarsLevels    = 5
	MinBarsLiquidity = 2
	MinBarsDisplace  = 1
)
