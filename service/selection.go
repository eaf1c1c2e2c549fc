package service

import (
	"fmt"
	"strconv"
	"strings"

	"devicegateway/models"

	"github.com/samber/lo"
)

// SelectionRule is one step of the device tie-break policy
type SelectionRule string

const (
	// SelectExact picks an online device whose serial mentions the target host or port
	SelectExact SelectionRule = "exact"
	// SelectOnline picks the first online device
	SelectOnline SelectionRule = "online"
	// SelectAny picks the first device in any state
	SelectAny SelectionRule = "any"
)

// DefaultSelection is exact, then any online device, then anything at all
var DefaultSelection = []SelectionRule{SelectExact, SelectOnline, SelectAny}

// ParseSelection validates a configured policy
func ParseSelection(rules []string) ([]SelectionRule, error) {
	if len(rules) == 0 {
		return DefaultSelection, nil
	}
	policy := make([]SelectionRule, 0, len(rules))
	for _, r := range rules {
		rule := SelectionRule(strings.ToLower(strings.TrimSpace(r)))
		switch rule {
		case SelectExact, SelectOnline, SelectAny:
			policy = append(policy, rule)
		default:
			return nil, fmt.Errorf("unknown selection rule %q (want exact, online or any)", r)
		}
	}
	return lo.Uniq(policy), nil
}

// Eager drops the last-resort rule. Connect polls with the eager policy so
// an offline device does not win before an online one has had time to appear.
func Eager(policy []SelectionRule) []SelectionRule {
	return lo.Filter(policy, func(r SelectionRule, _ int) bool {
		return r != SelectAny
	})
}

// SelectDevice applies the policy rules in order and returns the first match
func SelectDevice(devices []models.DeviceEntry, host string, port int, policy []SelectionRule) (models.DeviceEntry, bool) {
	portStr := strconv.Itoa(port)

	for _, rule := range policy {
		var (
			d  models.DeviceEntry
			ok bool
		)
		switch rule {
		case SelectExact:
			d, ok = lo.Find(devices, func(d models.DeviceEntry) bool {
				return d.Online() && ((host != "" && strings.Contains(d.Serial, host)) || strings.Contains(d.Serial, portStr))
			})
		case SelectOnline:
			d, ok = lo.Find(devices, models.DeviceEntry.Online)
		case SelectAny:
			d, ok = lo.First(devices)
		}
		if ok {
			return d, true
		}
	}

	return models.DeviceEntry{}, false
}
