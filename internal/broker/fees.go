package broker

import (
	"math"
)

// FeeModel prices the commission and tax of a trade. consideration is
// price times quantity.
type FeeModel interface {
	Commission(asset string, quantity int, consideration float64) float64
	Tax(asset string, quantity int, consideration float64) float64
	TotalCost(asset string, quantity int, consideration float64) float64
}

// ZeroFeeModel charges nothing.
type ZeroFeeModel struct{}

func (ZeroFeeModel) Commission(string, int, float64) float64 { return 0 }
func (ZeroFeeModel) Tax(string, int, float64) float64        { return 0 }
func (ZeroFeeModel) TotalCost(string, int, float64) float64  { return 0 }

// PercentFeeModel charges a fraction of the absolute consideration for
// commission and for tax. 0.001 is 0.1%.
type PercentFeeModel struct {
	CommissionPct float64
	TaxPct        float64
}

func (m PercentFeeModel) Commission(_ string, _ int, consideration float64) float64 {
	return m.CommissionPct * math.Abs(consideration)
}

func (m PercentFeeModel) Tax(_ string, _ int, consideration float64) float64 {
	return m.TaxPct * math.Abs(consideration)
}

func (m PercentFeeModel) TotalCost(asset string, quantity int, consideration float64) float64 {
	return m.Commission(asset, quantity, consideration) + m.Tax(asset, quantity, consideration)
}
