package financing

import (
	"errors"
	"math"
)

// Simulation is the outcome of an annuity loan simulation.
type Simulation struct {
	Principal            float64       `json:"principal"`
	MonthlyPayment       float64       `json:"monthly_payment"`
	TotalPaid            float64       `json:"total_paid"`
	TotalInterest        float64       `json:"total_interest"`
	EffectiveRatePercent float64       `json:"effective_rate_percent"`
	YearEndBalances      []YearBalance `json:"year_end_balances"`
}

// YearBalance is the remaining principal at the end of a loan year.
type YearBalance struct {
	Year    int     `json:"year"`
	Balance float64 `json:"balance"`
}

// Input errors.
var (
	ErrInvalidPrice       = errors.New("price must be positive")
	ErrInvalidDownPayment = errors.New("down payment must be at least zero and below the price")
	ErrInvalidRate        = errors.New("annual rate must be between 0 and 100 percent")
	ErrInvalidTerm        = errors.New("term must be between 1 and 50 years")
)

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Simulate computes a fixed-rate annuity schedule. Zero-interest loans
// degrade to straight-line amortization.
func Simulate(price, downPayment, annualRatePercent float64, termYears int) (*Simulation, error) {
	if price <= 0 {
		return nil, ErrInvalidPrice
	}
	if downPayment < 0 || downPayment >= price {
		return nil, ErrInvalidDownPayment
	}
	if annualRatePercent < 0 || annualRatePercent > 100 {
		return nil, ErrInvalidRate
	}
	if termYears < 1 || termYears > 50 {
		return nil, ErrInvalidTerm
	}

	principal := price - downPayment
	months := termYears * 12
	monthlyRate := annualRatePercent / 100 / 12

	var payment float64
	if monthlyRate == 0 {
		payment = principal / float64(months)
	} else {
		payment = principal * monthlyRate / (1 - math.Pow(1+monthlyRate, -float64(months)))
	}

	balances := make([]YearBalance, 0, termYears)
	balance := principal
	for m := 1; m <= months; m++ {
		balance = balance*(1+monthlyRate) - payment
		if m%12 == 0 {
			b := balance
			if b < 0 || m == months {
				b = 0
			}
			balances = append(balances, YearBalance{Year: m / 12, Balance: round2(b)})
		}
	}

	totalPaid := payment * float64(months)
	effective := (math.Pow(1+monthlyRate, 12) - 1) * 100

	return &Simulation{
		Principal:            round2(principal),
		MonthlyPayment:       round2(payment),
		TotalPaid:            round2(totalPaid),
		TotalInterest:        round2(totalPaid - principal),
		EffectiveRatePercent: round2(effective),
		YearEndBalances:      balances,
	}, nil
}
