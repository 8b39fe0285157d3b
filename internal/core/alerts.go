package core

import (
	"fmt"
	"time"
)

// Alert flags an operational condition on one dimension group. Higher
// severity numbers are more urgent.
type Alert struct {
	Type     string    `json:"type"`
	Severity int       `json:"severity"`
	Group    GroupKey  `json:"group"`
	Message  string    `json:"message"`
	Since    time.Time `json:"since,omitempty"`
}

const (
	AlertOverReserved = "over_reserved"
	AlertNoAvailable  = "no_available"
	AlertLowStock     = "low_stock"
	AlertHasDigOrder  = "has_dig_order"
)

// AlertConfig tunes the alert thresholds.
type AlertConfig struct {
	// LowStockThreshold fires low_stock when available drops to or below it.
	LowStockThreshold int
	// DigOrderSLA fires has_dig_order when a tag sits in dig_ordered longer.
	DigOrderSLA time.Duration
}

// DefaultAlertConfig returns the stock thresholds used when no override is
// configured.
func DefaultAlertConfig() AlertConfig {
	return AlertConfig{
		LowStockThreshold: 5,
		DigOrderSLA:       7 * 24 * time.Hour,
	}
}

// EvaluateAlerts derives alerts from the current ledger rows and tag set.
// It is a pure function of its inputs; the same state yields the same
// alerts in the same order.
func EvaluateAlerts(rows []LedgerRow, tags []Tag, cfg AlertConfig, now time.Time) []Alert {
	oldestOrdered := make(map[GroupKey]time.Time)
	for _, tag := range tags {
		if tag.Status != StatusDigOrdered {
			continue
		}
		key := tag.Group()
		if at, ok := oldestOrdered[key]; !ok || tag.StatusChangedAt.Before(at) {
			oldestOrdered[key] = tag.StatusChangedAt
		}
	}

	var alerts []Alert
	for _, row := range rows {
		c := row.Counts
		if c.Committed() > c.Total {
			alerts = append(alerts, Alert{
				Type:     AlertOverReserved,
				Severity: 3,
				Group:    row.Group,
				Message:  fmt.Sprintf("committed %d exceeds total %d", c.Committed(), c.Total),
			})
		}
		if c.Available == 0 && c.Total > 0 {
			alerts = append(alerts, Alert{
				Type:     AlertNoAvailable,
				Severity: 2,
				Group:    row.Group,
				Message:  "no sellable stock left in group",
			})
		} else if c.Available > 0 && c.Available <= cfg.LowStockThreshold {
			alerts = append(alerts, Alert{
				Type:     AlertLowStock,
				Severity: 1,
				Group:    row.Group,
				Message:  fmt.Sprintf("only %d sellable left", c.Available),
			})
		}
		if since, ok := oldestOrdered[row.Group]; ok && now.Sub(since) > cfg.DigOrderSLA {
			alerts = append(alerts, Alert{
				Type:     AlertHasDigOrder,
				Severity: 2,
				Group:    row.Group,
				Message:  fmt.Sprintf("dig order pending since %s", since.Format("2006-01-02")),
				Since:    since,
			})
		}
	}
	return alerts
}
