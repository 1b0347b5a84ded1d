package hyperliquid

// Wire types for the Hyperliquid info API. The exchange reports numeric
// fields as decimal strings; they are passed through unparsed and decoded at
// the point of use.

type leverage struct {
	Type   string `json:"type"`
	Value  int    `json:"value"`
	RawUSD string `json:"rawUsd"`
}

type cumFunding struct {
	AllTime     string `json:"allTime"`
	SinceOpen   string `json:"sinceOpen"`
	SinceChange string `json:"sinceChange"`
}

type position struct {
	Coin           string     `json:"coin"`
	Szi            string     `json:"szi"`
	EntryPx        string     `json:"entryPx"`
	PositionValue  string     `json:"positionValue"`
	UnrealizedPnl  string     `json:"unrealizedPnl"`
	ReturnOnEquity string     `json:"returnOnEquity"`
	LiquidationPx  string     `json:"liquidationPx"`
	MarginUsed     string     `json:"marginUsed"`
	MaxLeverage    int        `json:"maxLeverage"`
	Leverage       leverage   `json:"leverage"`
	CumFunding     cumFunding `json:"cumFunding"`
}

type assetPosition struct {
	Type     string   `json:"type"`
	Position position `json:"position"`
}

type marginSummary struct {
	AccountValue    string `json:"accountValue"`
	TotalNtlPos     string `json:"totalNtlPos"`
	TotalRawUSD     string `json:"totalRawUsd"`
	TotalMarginUsed string `json:"totalMarginUsed"`
}

type clearinghouseState struct {
	AssetPositions             []assetPosition `json:"assetPositions"`
	MarginSummary              marginSummary   `json:"marginSummary"`
	CrossMarginSummary         marginSummary   `json:"crossMarginSummary"`
	CrossMaintenanceMarginUsed string          `json:"crossMaintenanceMarginUsed"`
	Withdrawable               string          `json:"withdrawable"`
	Time                       int64           `json:"time"`
}

type userFill struct {
	Coin          string `json:"coin"`
	Px            string `json:"px"`
	Sz            string `json:"sz"`
	Side          string `json:"side"` // "B" or "A" (ask)
	Dir           string `json:"dir"`
	Time          int64  `json:"time"`
	StartPosition string `json:"startPosition"`
	ClosedPnl     string `json:"closedPnl"`
	Hash          string `json:"hash"`
	Oid           int64  `json:"oid"`
	Tid           int64  `json:"tid"`
	Crossed       bool   `json:"crossed"`
	Fee           string `json:"fee"`
	FeeToken      string `json:"feeToken"`
}

type universeItem struct {
	Name         string `json:"name"`
	SzDecimals   int    `json:"szDecimals"`
	MaxLeverage  int    `json:"maxLeverage"`
	OnlyIsolated bool   `json:"onlyIsolated"`
}

type universe struct {
	Universe []universeItem `json:"universe"`
}
