package stages

import (
	"fmt"
	"time"
)

const (
	// eventTimeGap is the minimum gap between consecutive items that splits
	// one contiguous run into two.
	eventTimeGap = 4 * time.Hour
	// eventGPSJump is the minimum lat/lon delta between consecutive items
	// that sub-splits a time-contiguous run.
	eventGPSJump = 0.05
	// eventMinMembers is the minimum run length to keep as an Event.
	eventMinMembers = 3
)

// TimedItemInput is one item's timestamp, location, and place name, fed into
// DetectEvents. Items must be supplied in ascending timestamp order.
type TimedItemInput struct {
	ItemKey   string
	Timestamp time.Time
	Lat       *float64
	Lon       *float64
	City      *string
	Country   *string
}

// EventCluster is one contiguous, same-place run of items kept as an Event.
type EventCluster struct {
	Items []TimedItemInput
}

// Start returns the timestamp of the earliest item in the cluster.
func (c EventCluster) Start() time.Time { return c.Items[0].Timestamp }

// End returns the timestamp of the latest item in the cluster.
func (c EventCluster) End() time.Time { return c.Items[len(c.Items)-1].Timestamp }

// Location synthesizes a location string from the cluster's most common
// city+country pair, empty if no item has location data.
func (c EventCluster) Location() string {
	type place struct{ city, country string }
	counts := make(map[place]int)
	for _, item := range c.Items {
		if item.City == nil && item.Country == nil {
			continue
		}
		p := place{}
		if item.City != nil {
			p.city = *item.City
		}
		if item.Country != nil {
			p.country = *item.Country
		}
		counts[p]++
	}

	var best place
	bestCount := 0
	for p, count := range counts {
		if count > bestCount {
			best = p
			bestCount = count
		}
	}
	if bestCount == 0 {
		return ""
	}
	if best.city != "" && best.country != "" {
		return fmt.Sprintf("%s, %s", best.city, best.country)
	}
	if best.city != "" {
		return best.city
	}
	return best.country
}

// Name synthesizes an event name from the date range and dominant location,
// per the batch stage's "name synthesized from date range and most-common
// city+country" rule.
func (c EventCluster) Name() string {
	start, end := c.Start(), c.End()
	location := c.Location()

	var dateLabel string
	if start.Format("2006-01-02") == end.Format("2006-01-02") {
		dateLabel = start.Format("Jan 2, 2006")
	} else {
		dateLabel = fmt.Sprintf("%s - %s", start.Format("Jan 2"), end.Format("Jan 2, 2006"))
	}

	if location == "" {
		return dateLabel
	}
	return fmt.Sprintf("%s (%s)", location, dateLabel)
}

// DetectEvents splits ascending-timestamp items into contiguous runs broken
// by time gaps exceeding eventTimeGap, sub-splits each run on GPS jumps
// exceeding eventGPSJump, and keeps only runs with at least eventMinMembers
// items, per the EVENTS batch protocol.
func DetectEvents(items []TimedItemInput) []EventCluster {
	timeRuns := splitByTimeGap(items)

	var runs []EventCluster
	for _, run := range timeRuns {
		runs = append(runs, splitByGPSJump(run)...)
	}

	var events []EventCluster
	for _, run := range runs {
		if len(run.Items) >= eventMinMembers {
			events = append(events, run)
		}
	}
	return events
}

func splitByTimeGap(items []TimedItemInput) []EventCluster {
	if len(items) == 0 {
		return nil
	}

	var runs []EventCluster
	current := EventCluster{Items: []TimedItemInput{items[0]}}
	for i := 1; i < len(items); i++ {
		gap := items[i].Timestamp.Sub(items[i-1].Timestamp)
		if gap > eventTimeGap {
			runs = append(runs, current)
			current = EventCluster{Items: []TimedItemInput{items[i]}}
			continue
		}
		current.Items = append(current.Items, items[i])
	}
	runs = append(runs, current)
	return runs
}

func splitByGPSJump(run EventCluster) []EventCluster {
	items := run.Items
	if len(items) == 0 {
		return nil
	}

	var runs []EventCluster
	current := EventCluster{Items: []TimedItemInput{items[0]}}
	for i := 1; i < len(items); i++ {
		if gpsJumped(items[i-1], items[i]) {
			runs = append(runs, current)
			current = EventCluster{Items: []TimedItemInput{items[i]}}
			continue
		}
		current.Items = append(current.Items, items[i])
	}
	runs = append(runs, current)
	return runs
}

func gpsJumped(a, b TimedItemInput) bool {
	if a.Lat == nil || a.Lon == nil || b.Lat == nil || b.Lon == nil {
		return false
	}
	return absFloat(*a.Lat-*b.Lat) > eventGPSJump || absFloat(*a.Lon-*b.Lon) > eventGPSJump
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
