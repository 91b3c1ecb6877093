// Copyright 2026 The ScaleCI Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cloudapi

import (
	"context"
	"time"

	"github.com/scaleci/fleet/internal/clock"
)

// PriceCache memoizes ListServerTypePrices for one Scale-Down cycle
// rather than calling it once per recycle decision (SPEC_FULL
// "per-server-type cost ranking cache").
type PriceCache struct {
	Provider Provider
	Clock    clock.Clock
	TTL      time.Duration

	fetchedAt time.Time
	prices    map[[2]string]float64
}

// PricePerHour returns the cached hourly price in cents for (type,
// location). The second return is false when price data is unavailable
// for that pair at all (spec §9 Open Question), not merely stale.
func (c *PriceCache) PricePerHour(ctx context.Context, serverType, location string) (float64, bool, error) {
	if err := c.refresh(ctx); err != nil {
		return 0, false, err
	}
	price, ok := c.prices[[2]string{serverType, location}]
	return price, ok, nil
}

// Available reports whether any price data could be fetched at all,
// distinguishing "provider gave us a price list, this pair just wasn't
// in it" from "we have no price data whatsoever" (spec §4.5 step 7:
// "if current-hour price data is available").
func (c *PriceCache) Available(ctx context.Context) bool {
	if err := c.refresh(ctx); err != nil {
		return false
	}
	return len(c.prices) > 0
}

func (c *PriceCache) refresh(ctx context.Context) error {
	now := c.Clock.Now()
	if c.prices != nil && now.Sub(c.fetchedAt) < c.TTL {
		return nil
	}
	list, err := c.Provider.ListServerTypePrices(ctx)
	if err != nil {
		return err
	}
	c.prices = make(map[[2]string]float64, len(list))
	for _, p := range list {
		c.prices[[2]string{p.Type, p.Location}] = p.PricePerHourCents
	}
	c.fetchedAt = now
	return nil
}
