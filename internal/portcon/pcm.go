package portcon

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"backtester/internal/models"
	"backtester/internal/universe"
)

// AlphaModel forecasts raw target weights.
type AlphaModel interface {
	Weights(dt time.Time) models.Weights
}

// RiskModel adjusts alpha weights.
type RiskModel interface {
	Adjust(dt time.Time, weights models.Weights) models.Weights
}

// Rebalance is the outcome of one construction pass.
type Rebalance struct {
	Dt            time.Time
	TargetWeights models.Weights
	Orders        []models.Order
}

// ConstructionModel runs alpha, risk, optimisation and sizing, then diffs
// the sized targets against the broker's holdings.
type ConstructionModel struct {
	account     Account
	portfolioID string
	universe    universe.Universe
	sizer       OrderSizer
	optimiser   Optimiser
	alpha       AlphaModel
	risk        RiskModel
	logger      zerolog.Logger
}

// ConstructionConfig holds the collaborators of a ConstructionModel.
// Alpha and Risk are optional.
type ConstructionConfig struct {
	Account     Account
	PortfolioID string
	Universe    universe.Universe
	Sizer       OrderSizer
	Optimiser   Optimiser
	Alpha       AlphaModel
	Risk        RiskModel
	Logger      *zerolog.Logger
}

func NewConstructionModel(cfg ConstructionConfig) *ConstructionModel {
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "portcon").Logger()
	}
	optimiser := cfg.Optimiser
	if optimiser == nil {
		optimiser = FixedWeight{}
	}
	return &ConstructionModel{
		account:     cfg.Account,
		portfolioID: cfg.PortfolioID,
		universe:    cfg.Universe,
		sizer:       cfg.Sizer,
		optimiser:   optimiser,
		alpha:       cfg.Alpha,
		risk:        cfg.Risk,
		logger:      logger,
	}
}

// FullAssetList is the sorted union of the universe at dt and the assets
// currently held.
func (m *ConstructionModel) FullAssetList(dt time.Time) ([]string, error) {
	held, err := m.account.GetPortfolioQuantities(m.portfolioID)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{})
	for asset := range held {
		set[asset] = struct{}{}
	}
	for _, asset := range m.universe.Assets(dt) {
		set[asset] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for asset := range set {
		out = append(out, asset)
	}
	sort.Strings(out)
	return out, nil
}

// Construct produces the rebalance orders for dt.
func (m *ConstructionModel) Construct(dt time.Time) (*Rebalance, error) {
	var weights models.Weights
	if m.alpha != nil {
		weights = m.alpha.Weights(dt)
	} else {
		weights = models.ZeroWeights(m.universe.Assets(dt))
	}
	if m.risk != nil {
		weights = m.risk.Adjust(dt, weights)
	}
	optimised := m.optimiser.Optimise(dt, weights)

	full, err := m.FullAssetList(dt)
	if err != nil {
		return nil, err
	}
	target := models.ZeroWeights(full)
	for asset, w := range optimised {
		target[asset] = w
	}
	m.logger.Debug().Time("dt", dt).Interface("weights", target).Msg("Target weights")

	targetQty, err := m.sizer.Size(dt, target)
	if err != nil {
		return nil, err
	}
	current, err := m.account.GetPortfolioQuantities(m.portfolioID)
	if err != nil {
		return nil, err
	}

	return &Rebalance{
		Dt:            dt,
		TargetWeights: target,
		Orders:        RebalanceOrders(dt, targetQty, current),
	}, nil
}

// RebalanceOrders emits one order per asset whose target and current
// quantities differ, sorted by asset. An asset missing on either side
// counts as zero there.
func RebalanceOrders(dt time.Time, target, current map[string]int) []models.Order {
	assets := make(map[string]struct{}, len(target)+len(current))
	for a := range target {
		assets[a] = struct{}{}
	}
	for a := range current {
		assets[a] = struct{}{}
	}
	sorted := make([]string, 0, len(assets))
	for a := range assets {
		sorted = append(sorted, a)
	}
	sort.Strings(sorted)

	var orders []models.Order
	for _, asset := range sorted {
		if delta := target[asset] - current[asset]; delta != 0 {
			orders = append(orders, models.NewOrder(dt, asset, delta))
		}
	}
	return orders
}
