package kite

import "encoding/json"

// envelope is the JSON wrapper around every Kite Connect response.
type envelope struct {
	Status    string          `json:"status"`
	Data      json.RawMessage `json:"data"`
	Message   string          `json:"message"`
	ErrorType string          `json:"error_type"`
}

// TokenSession is the payload returned by the token exchange endpoint.
type TokenSession struct {
	UserID        string   `json:"user_id"`
	UserName      string   `json:"user_name"`
	UserShortname string   `json:"user_shortname"`
	Email         string   `json:"email"`
	UserType      string   `json:"user_type"`
	Broker        string   `json:"broker"`
	Exchanges     []string `json:"exchanges"`
	Products      []string `json:"products"`
	OrderTypes    []string `json:"order_types"`
	APIKey        string   `json:"api_key"`
	AccessToken   string   `json:"access_token"`
	PublicToken   string   `json:"public_token"`
	RefreshToken  string   `json:"refresh_token"`
	AvatarURL     string   `json:"avatar_url"`
	LoginTime     string   `json:"login_time"`
}

// Profile is the user profile payload.
type Profile struct {
	UserID        string   `json:"user_id"`
	UserName      string   `json:"user_name"`
	UserShortname string   `json:"user_shortname"`
	Email         string   `json:"email"`
	UserType      string   `json:"user_type"`
	Broker        string   `json:"broker"`
	Exchanges     []string `json:"exchanges"`
	Products      []string `json:"products"`
	OrderTypes    []string `json:"order_types"`
	AvatarURL     string   `json:"avatar_url"`
}

// Holding is a single portfolio holding as reported by the broker.
type Holding struct {
	InstrumentToken     int64   `json:"instrument_token"`
	Exchange            string  `json:"exchange"`
	Tradingsymbol       string  `json:"tradingsymbol"`
	ISIN                string  `json:"isin"`
	Product             string  `json:"product"`
	Quantity            int64   `json:"quantity"`
	T1Quantity          int64   `json:"t1_quantity"`
	AveragePrice        float64 `json:"average_price"`
	LastPrice           float64 `json:"last_price"`
	ClosePrice          float64 `json:"close_price"`
	PnL                 float64 `json:"pnl"`
	DayChange           float64 `json:"day_change"`
	DayChangePercentage float64 `json:"day_change_percentage"`
}

// Margins holds both margin segments. A segment is nil if the broker
// omitted it from the response.
type Margins struct {
	Equity    *MarginSegment `json:"equity,omitempty"`
	Commodity *MarginSegment `json:"commodity,omitempty"`
}

// MarginSegment is the margin state of one account segment.
type MarginSegment struct {
	Enabled   bool            `json:"enabled"`
	Net       float64         `json:"net"`
	Available MarginAvailable `json:"available"`
	Utilised  MarginUtilised  `json:"utilised"`
}

// MarginAvailable is the available-funds breakdown of a margin segment.
type MarginAvailable struct {
	AdhocMargin    float64 `json:"adhoc_margin"`
	Cash           float64 `json:"cash"`
	OpeningBalance float64 `json:"opening_balance"`
	LiveBalance    float64 `json:"live_balance"`
	Collateral     float64 `json:"collateral"`
	IntradayPayin  float64 `json:"intraday_payin"`
}

// MarginUtilised is the utilised-funds breakdown of a margin segment.
type MarginUtilised struct {
	Debits           float64 `json:"debits"`
	Exposure         float64 `json:"exposure"`
	M2MRealised      float64 `json:"m2m_realised"`
	M2MUnrealised    float64 `json:"m2m_unrealised"`
	OptionPremium    float64 `json:"option_premium"`
	Payout           float64 `json:"payout"`
	Span             float64 `json:"span"`
	HoldingSales     float64 `json:"holding_sales"`
	Turnover         float64 `json:"turnover"`
	LiquidCollateral float64 `json:"liquid_collateral"`
	StockCollateral  float64 `json:"stock_collateral"`
	Delivery         float64 `json:"delivery"`
}
