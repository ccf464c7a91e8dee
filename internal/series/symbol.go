package series

import "strings"

// Stable-coin quotes collapse to plain USD for the fallback provider.
var stableToFiat = map[string]string{
	"usdt": "usd", "usdc": "usd", "dai": "usd", "busd": "usd", "tusd": "usd",
}

// The fallback provider addresses coins by id, the primary by trading pair.
// This table bridges the two namespaces for the majors.
var cgIDToBase = map[string]string{
	"bitcoin":  "BTC",
	"ethereum": "ETH",
	"litecoin": "LTC",
	"dogecoin": "DOGE",
	"cardano":  "ADA",
	"solana":   "SOL",
	"ripple":   "XRP",
	"polkadot": "DOT",
	"tron":     "TRX",
}

var baseToCGID = func() map[string]string {
	m := make(map[string]string, len(cgIDToBase))
	for id, base := range cgIDToBase {
		m[base] = id
	}
	return m
}()

var knownQuotes = []string{"USDT", "USDC", "BUSD", "TUSD", "USD", "DAI", "EUR", "BTC"}

// NormalizeVs maps stable-coin quote currencies to their fiat equivalent.
func NormalizeVs(vs string) string {
	if vs == "" {
		return "usd"
	}
	vs = strings.ToLower(vs)
	if fiat, ok := stableToFiat[vs]; ok {
		return fiat
	}
	return vs
}

// BinancePair resolves a caller-supplied symbol to a Binance trading pair.
// Coin ids like "bitcoin" map via the bridge table; anything pair-shaped
// passes through uppercased. Returns false when no pair can be derived.
func BinancePair(symbol, vs string) (string, bool) {
	if base, ok := cgIDToBase[strings.ToLower(symbol)]; ok {
		quote := "USDT"
		if v := NormalizeVs(vs); v != "usd" {
			quote = strings.ToUpper(v)
		}
		return base + quote, true
	}
	s := strings.ToUpper(symbol)
	if len(s) >= 6 && isAlnum(s) {
		return s, true
	}
	return "", false
}

// CoinGeckoID resolves a caller-supplied symbol to a CoinGecko coin id.
// Ids pass through; trading pairs are stripped of a known quote and mapped
// back through the bridge table.
func CoinGeckoID(symbol string) (string, bool) {
	lower := strings.ToLower(symbol)
	if _, ok := cgIDToBase[lower]; ok {
		return lower, true
	}
	upper := strings.ToUpper(symbol)
	for _, q := range knownQuotes {
		if strings.HasSuffix(upper, q) && len(upper) > len(q) {
			if id, ok := baseToCGID[strings.TrimSuffix(upper, q)]; ok {
				return id, true
			}
		}
	}
	return "", false
}

func isAlnum(s string) bool {
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
