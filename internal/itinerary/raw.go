package itinerary

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ErrMalformed marks provider output that cannot become an itinerary.
var ErrMalformed = errors.New("malformed itinerary response")

// Amount is a provider-supplied price. Providers return numbers, numeric
// strings or strings with a currency token and separators ("₹1,250",
// "Rs. 500"). Anything else, including exponents and ranges, is rejected.
type Amount int64

// maxAmount bounds a single price so rounding never overflows int64.
const maxAmount = 1e12

var (
	plainNumber = regexp.MustCompile(`^-?\d+(\.\d+)?$`)

	// "rs." precedes "rs" so the dot is consumed with it.
	currencyTokens = []string{"inr", "usd", "eur", "rs.", "rs", "₹", "$", "€", "£"}
)

// UnmarshalJSON accepts numbers, numeric strings, "free" and null.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == "" {
		*a = 0
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		str = cleanNumber(str)
		if str == "" || strings.EqualFold(str, "free") {
			*a = 0
			return nil
		}
		s = str
	}
	if !plainNumber.MatchString(s) {
		return fmt.Errorf("%w: invalid amount %s", ErrMalformed, string(data))
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.Abs(f) > maxAmount {
		return fmt.Errorf("%w: amount %s out of range", ErrMalformed, string(data))
	}
	*a = Amount(math.Round(f))
	return nil
}

// cleanNumber strips one leading or trailing currency token and the
// thousands separators. What is left must be a plain decimal.
func cleanNumber(s string) string {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	for _, tok := range currencyTokens {
		if strings.HasPrefix(lower, tok) {
			s = s[len(tok):]
			break
		}
		if strings.HasSuffix(lower, tok) {
			s = s[:len(s)-len(tok)]
			break
		}
	}
	return strings.NewReplacer(",", "", "_", "", " ", "").Replace(strings.TrimSpace(s))
}

// RawActivity is an activity as the provider returns it.
type RawActivity struct {
	Title    string `json:"title"`
	Duration string `json:"duration"`
	Cost     Amount `json:"cost"`
}

// RawMeal is a meal as the provider returns it.
type RawMeal struct {
	Restaurant string `json:"restaurant"`
	Type       string `json:"type"`
	Cost       Amount `json:"cost"`
}

// RawAccommodation is an accommodation record as the provider returns it.
type RawAccommodation struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Cost Amount `json:"cost"`
}

// RawTransport is a transport record as the provider returns it.
type RawTransport struct {
	Mode    string `json:"mode"`
	Details string `json:"details"`
	Cost    Amount `json:"cost"`
}

// RawDay is one day of the provider response.
type RawDay struct {
	Day           int              `json:"day"`
	Date          string           `json:"date"`
	City          string           `json:"city"`
	Theme         string           `json:"theme"`
	Activities    []RawActivity    `json:"activities"`
	Meals         []RawMeal        `json:"meals"`
	Accommodation RawAccommodation `json:"accommodation"`
	Transport     RawTransport     `json:"transport"`
	EstimatedCost Amount           `json:"estimatedCost"`
}

// RawItinerary is the provider response before normalization. Provider
// totals are decoded but never trusted.
type RawItinerary struct {
	Title           string            `json:"title"`
	Overview        string            `json:"overview"`
	TotalCost       Amount            `json:"totalCost"`
	Currency        string            `json:"currency"`
	BudgetBreakdown map[string]Amount `json:"budgetBreakdown"`
	Days            []RawDay          `json:"days"`
}

// Decode parses the provider's text output. Markdown code fences and
// leading chatter around the JSON object are tolerated.
func Decode(content string) (RawItinerary, error) {
	body := extractJSONObject(content)
	if body == "" {
		return RawItinerary{}, fmt.Errorf("%w: no JSON object in response", ErrMalformed)
	}

	var raw RawItinerary
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return RawItinerary{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return raw, nil
}

func extractJSONObject(content string) string {
	s := strings.TrimSpace(content)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}
