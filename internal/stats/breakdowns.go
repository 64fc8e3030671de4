package stats

import (
	"fmt"

	"gorm.io/gorm"

	"reftrail/internal/timeframe"
)

// breakdown columns are fixed identifiers, never user input.
var breakdownColumns = map[string]bool{
	"device_type": true,
	"browser":     true,
	"country":     true,
	"utm_source":  true,
}

// topColumn fetches the top values of one click column for the time frame.
// Empty values are bucketed under "Unknown" so the breakdown always accounts
// for every click.
func topColumn(db *gorm.DB, partnerID uint, tf timeframe.TimeFrame, column string) ([]MetricCountResult, error) {
	if !breakdownColumns[column] {
		return nil, fmt.Errorf("unsupported breakdown column: %s", column)
	}

	timeCond, args := timeCondition(partnerID, tf)
	args = append(args, topLimit)

	query := fmt.Sprintf(`
    SELECT
        CASE WHEN %s = '' OR %s IS NULL THEN 'Unknown' ELSE %s END as name,
        COUNT(*) as count
    FROM clicks
    %s
    GROUP BY name
    HAVING count > 0
    ORDER BY count DESC, name ASC
    LIMIT ?
    `, column, column, column, timeCond)

	var results []MetricCountResult
	if err := db.Raw(query, args...).Scan(&results).Error; err != nil {
		return nil, fmt.Errorf("error fetching top %s: %w", column, err)
	}
	return results, nil
}

// channelCounts groups attributed clicks by terminal channel for the time
// frame. Clicks still in the landing state are excluded; they are reported
// separately as landing views.
func channelCounts(db *gorm.DB, partnerID uint, tf timeframe.TimeFrame) (map[string]int64, error) {
	timeCond, args := timeCondition(partnerID, tf)

	query := `
    SELECT redirect_type as name, COUNT(*) as count
    FROM clicks
    ` + timeCond + `
    AND redirect_type != 'landing'
    GROUP BY redirect_type
    ORDER BY count DESC
    `

	var rows []MetricCountResult
	if err := db.Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("error fetching channel counts: %w", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Name] = row.Count
	}
	return counts, nil
}
