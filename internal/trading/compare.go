package trading

import (
	"context"
	"sort"

	"backtester/internal/logging"
	"backtester/internal/performance"
	"backtester/internal/statistics"
)

// NamedSession labels a session for comparison.
type NamedSession struct {
	Name    string
	Session *BacktestSession
}

// Comparison is the outcome of one session in a Compare run.
type Comparison struct {
	Name       string                 `json:"name"`
	Rank       int                    `json:"rank"`
	Statistics *statistics.Statistics `json:"statistics,omitempty"`
	Err        error                  `json:"-"`
}

// Compare runs independent sessions concurrently on pool and ranks the
// successful ones by Sharpe ratio, best first. Failed sessions follow with
// a zero rank. The ranking is logged to the context logger.
func Compare(ctx context.Context, pool *performance.WorkerPool, sessions []NamedSession) []Comparison {
	tasks := make([]func(context.Context) (*statistics.Statistics, error), len(sessions))
	for i, ns := range sessions {
		sess := ns.Session
		tasks[i] = func(ctx context.Context) (*statistics.Statistics, error) {
			if err := sess.Run(ctx); err != nil {
				return nil, err
			}
			return sess.Statistics(), nil
		}
	}

	results := performance.RunAll(ctx, pool, tasks)
	out := make([]Comparison, len(sessions))
	for i, r := range results {
		out[i] = Comparison{Name: sessions[i].Name, Statistics: r.Value, Err: r.Err}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if (a.Err == nil) != (b.Err == nil) {
			return a.Err == nil
		}
		if a.Err != nil {
			return false
		}
		return a.Statistics.Sharpe > b.Statistics.Sharpe
	})
	logger := logging.WithOperation(logging.FromContext(ctx), "compare")
	for i := range out {
		if out[i].Err == nil {
			out[i].Rank = i + 1
			logger.Info().
				Str("session", out[i].Name).
				Int("rank", out[i].Rank).
				Float64("sharpe", out[i].Statistics.Sharpe).
				Msg("Session ranked")
			continue
		}
		logger.Warn().Err(out[i].Err).Str("session", out[i].Name).Msg("Session failed")
	}
	return out
}
