package marketdata

import "math"

// adx computes Wilder's Average Directional Index over candle arrays and
// returns the final value, or 0 with ok=false when history is too short.
// Warmup needs 2*period candles: period to seed the smoothed TR/DM averages
// and period DX values to seed the ADX itself.
func adx(high, low, close []float64, period int) (float64, bool) {
	n := len(close)
	if n != len(high) || n != len(low) || n < 2*period+1 {
		return 0, false
	}

	var tr14, pdm14, mdm14 float64
	var adxVal, dxSum float64
	dxCount := 0
	seeded := false

	for i := 1; i < n; i++ {
		upMove := high[i] - high[i-1]
		downMove := low[i-1] - low[i]

		var pdm, mdm float64
		if upMove > downMove && upMove > 0 {
			pdm = upMove
		}
		if downMove > upMove && downMove > 0 {
			mdm = downMove
		}

		tr := math.Max(high[i]-low[i],
			math.Max(math.Abs(high[i]-close[i-1]), math.Abs(low[i]-close[i-1])))

		p := float64(period)
		if i <= period {
			tr14 += tr
			pdm14 += pdm
			mdm14 += mdm
			if i == period {
				tr14 /= p
				pdm14 /= p
				mdm14 /= p
			}
			continue
		}

		tr14 = (tr14*(p-1) + tr) / p
		pdm14 = (pdm14*(p-1) + pdm) / p
		mdm14 = (mdm14*(p-1) + mdm) / p

		if tr14 == 0 {
			continue
		}
		pdi := 100 * pdm14 / tr14
		mdi := 100 * mdm14 / tr14
		den := pdi + mdi
		if den == 0 {
			continue
		}
		dx := 100 * math.Abs(pdi-mdi) / den

		if !seeded {
			dxSum += dx
			dxCount++
			if dxCount == period {
				adxVal = dxSum / p
				seeded = true
			}
			continue
		}
		adxVal = (adxVal*(p-1) + dx) / p
	}

	if !seeded {
		return 0, false
	}
	return adxVal, true
}
