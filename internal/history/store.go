// Package history provides historical price storage and return series
// derivation. It is the injected data source behind covariance and
// correlation builds: production code never generates synthetic returns.
package history

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/database"
)

// DefaultLookbackDays is one year of trading days.
const DefaultLookbackDays = 252

// ReturnsProvider supplies a periodic return series for one asset.
// The engine's risk builders depend on this interface, not on the store,
// so callers can substitute any data source.
type ReturnsProvider interface {
	ReturnsSeries(assetID string) ([]float64, error)
}

// SeriesProvider extends ReturnsProvider with aligned multi-asset series,
// which covariance builds need.
type SeriesProvider interface {
	ReturnsProvider
	AlignedReturns(assetIDs []string, lookbackDays int) (map[string][]float64, error)
}

// DailyPrice is one closing price observation.
type DailyPrice struct {
	Date  string  `json:"date"`
	Close float64 `json:"close"`
}

// timeSeries holds per-asset prices aligned on a shared date axis.
// Missing observations are NaN until filled.
type timeSeries struct {
	Dates []string
	Data  map[string][]float64
}

// Store is a SQLite-backed price history store.
type Store struct {
	db           *database.DB
	lookbackDays int
	log          zerolog.Logger
}

// NewStore creates a new history store.
func NewStore(db *database.DB, log zerolog.Logger) *Store {
	return &Store{
		db:           db,
		lookbackDays: DefaultLookbackDays,
		log:          log.With().Str("component", "history").Logger(),
	}
}

// Init creates the daily_prices table if it does not exist.
func (s *Store) Init() error {
	_, err := s.db.Conn().Exec(`
		CREATE TABLE IF NOT EXISTS daily_prices (
			asset_id TEXT NOT NULL,
			date     TEXT NOT NULL,
			close    REAL NOT NULL,
			PRIMARY KEY (asset_id, date)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create daily_prices table: %w", err)
	}
	return nil
}

// SavePrice upserts one closing price.
func (s *Store) SavePrice(assetID, date string, close float64) error {
	_, err := s.db.Conn().Exec(`
		INSERT INTO daily_prices (asset_id, date, close)
		VALUES (?, ?, ?)
		ON CONFLICT(asset_id, date) DO UPDATE SET close = excluded.close
	`, assetID, date, close)
	if err != nil {
		return fmt.Errorf("failed to save price for %s: %w", assetID, err)
	}
	return nil
}

// DailyPrices returns prices for an asset in ascending date order.
// A limit of 0 means no limit.
func (s *Store) DailyPrices(assetID string, limit int) ([]DailyPrice, error) {
	query := `SELECT date, close FROM daily_prices WHERE asset_id = ? ORDER BY date ASC`
	args := []interface{}{assetID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices for %s: %w", assetID, err)
	}
	defer rows.Close()

	var prices []DailyPrice
	for rows.Next() {
		var p DailyPrice
		if err := rows.Scan(&p.Date, &p.Close); err != nil {
			return nil, fmt.Errorf("failed to scan price row: %w", err)
		}
		prices = append(prices, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating price rows: %w", err)
	}
	return prices, nil
}

// ReturnsSeries derives the daily return series for one asset over the
// default lookback window.
func (s *Store) ReturnsSeries(assetID string) ([]float64, error) {
	aligned, err := s.AlignedReturns([]string{assetID}, s.lookbackDays)
	if err != nil {
		return nil, err
	}
	return aligned[assetID], nil
}

// AlignedReturns fetches price history for the given assets, aligns the
// series on a shared date axis, fills gaps, and converts to daily returns.
func (s *Store) AlignedReturns(assetIDs []string, lookbackDays int) (map[string][]float64, error) {
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}
	ts, err := s.fetchPriceHistory(assetIDs, lookbackDays)
	if err != nil {
		return nil, err
	}
	if len(ts.Dates) < 2 {
		return nil, fmt.Errorf("insufficient price history: only %d days available", len(ts.Dates))
	}
	return calculateReturns(fillMissing(ts, s.log)), nil
}

// fetchPriceHistory builds an asset -> price series map on a shared,
// sorted date axis. Missing observations are NaN.
func (s *Store) fetchPriceHistory(assetIDs []string, days int) (timeSeries, error) {
	if len(assetIDs) == 0 {
		return timeSeries{}, fmt.Errorf("no asset IDs provided")
	}

	startTime := time.Now().AddDate(0, 0, -days)
	startDate := time.Date(startTime.Year(), startTime.Month(), startTime.Day(), 0, 0, 0, 0, time.UTC).Format("2006-01-02")

	pricesByAsset := make(map[string]map[string]float64)
	dateSet := make(map[string]bool)

	for _, id := range assetIDs {
		dailyPrices, err := s.DailyPrices(id, 0)
		if err != nil {
			s.log.Warn().Err(err).Str("asset_id", id).Msg("Failed to get prices for asset")
			continue
		}

		pricesByAsset[id] = make(map[string]float64)
		for _, p := range dailyPrices {
			if p.Date >= startDate {
				pricesByAsset[id][p.Date] = p.Close
				dateSet[p.Date] = true
			}
		}
	}

	dates := make([]string, 0, len(dateSet))
	for date := range dateSet {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	data := make(map[string][]float64)
	for _, id := range assetIDs {
		prices := make([]float64, len(dates))
		for i, date := range dates {
			if price, ok := pricesByAsset[id][date]; ok {
				prices[i] = price
			} else {
				prices[i] = math.NaN()
			}
		}
		data[id] = prices
	}

	return timeSeries{Dates: dates, Data: data}, nil
}

// fillMissing fills gaps using forward-fill then back-fill.
func fillMissing(data timeSeries, log zerolog.Logger) timeSeries {
	filledData := timeSeries{
		Dates: data.Dates,
		Data:  make(map[string][]float64),
	}

	missingCount := 0
	filledCount := 0

	for assetID, prices := range data.Data {
		filled := make([]float64, len(prices))
		copy(filled, prices)

		var lastValid float64
		hasLastValid := false
		for i := 0; i < len(filled); i++ {
			if math.IsNaN(filled[i]) {
				missingCount++
				if hasLastValid {
					filled[i] = lastValid
					filledCount++
				}
			} else {
				lastValid = filled[i]
				hasLastValid = true
			}
		}

		// Back-fill for leading NaNs
		var nextValid float64
		hasNextValid := false
		for i := len(filled) - 1; i >= 0; i-- {
			if math.IsNaN(filled[i]) {
				if hasNextValid {
					filled[i] = nextValid
					filledCount++
				}
			} else {
				nextValid = filled[i]
				hasNextValid = true
			}
		}

		filledData.Data[assetID] = filled
	}

	if missingCount > 0 {
		log.Warn().
			Int("missing_data_points", missingCount).
			Int("filled_data_points", filledCount).
			Int("still_missing", missingCount-filledCount).
			Msg("Filled missing price data")
	}

	return filledData
}

// calculateReturns converts aligned prices to daily returns.
func calculateReturns(data timeSeries) map[string][]float64 {
	returns := make(map[string][]float64)

	for assetID, prices := range data.Data {
		if len(prices) < 2 {
			returns[assetID] = []float64{}
			continue
		}

		dailyReturns := make([]float64, len(prices)-1)
		for i := 1; i < len(prices); i++ {
			if prices[i-1] > 0 && !math.IsNaN(prices[i]) && !math.IsNaN(prices[i-1]) {
				dailyReturns[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
			}
		}
		returns[assetID] = dailyReturns
	}

	return returns
}

// StaticProvider serves fixed return series from memory. Used when the
// caller supplies series directly on the holdings, and in tests.
type StaticProvider map[string][]float64

// ReturnsSeries returns the stored series for an asset.
func (p StaticProvider) ReturnsSeries(assetID string) ([]float64, error) {
	series, ok := p[assetID]
	if !ok {
		return nil, fmt.Errorf("no return series for asset %s", assetID)
	}
	return series, nil
}

// AlignedReturns truncates all requested series to the shortest common
// length so downstream covariance math sees consistent observation counts.
func (p StaticProvider) AlignedReturns(assetIDs []string, lookbackDays int) (map[string][]float64, error) {
	shortest := -1
	for _, id := range assetIDs {
		series, ok := p[id]
		if !ok {
			return nil, fmt.Errorf("no return series for asset %s", id)
		}
		if shortest < 0 || len(series) < shortest {
			shortest = len(series)
		}
	}
	if lookbackDays > 0 && shortest > lookbackDays {
		shortest = lookbackDays
	}

	aligned := make(map[string][]float64, len(assetIDs))
	for _, id := range assetIDs {
		series := p[id]
		aligned[id] = series[len(series)-shortest:]
	}
	return aligned, nil
}
