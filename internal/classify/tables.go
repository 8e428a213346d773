// Package classify maps feature attributes to categories and default dimensions.
//
// The lookup tables are fixed domain data embedded from tables.csv. Every lookup
// is case-insensitive and falls back to a documented default for unknown or
// absent values.
package classify

import (
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

//go:embed tables.csv
// Columns: table, key, value. Membership tables leave value empty.
var tablesCSV string

const (
	tableBuildingHeight   = "building_height"
	tableRoadWidth        = "road_width"
	tableAreaClass        = "area_class"
	tableLandcoverDensity = "landcover_density"
	tableWaterwayWidth    = "waterway_width"
	tablePOIType          = "poi_type"
	tablePlaceType        = "place_type"
)

var (
	numbers    map[string]map[string]float64
	labels     map[string]map[string]string
	tablesOnce sync.Once
)

// loadTables parses the embedded CSV. A malformed table is a build defect.
func loadTables() {
	var err error
	numbers, labels, err = parseTables(tablesCSV)
	if err != nil {
		panic(fmt.Sprintf("classify: embedded tables.csv: %v", err))
	}
}

// parseTables reads table,key,value rows after a header. Numeric values go to
// the first map, everything else (including empty membership values) to the
// second.
func parseTables(src string) (map[string]map[string]float64, map[string]map[string]string, error) {
	reader := csv.NewReader(strings.NewReader(src))
	reader.FieldsPerRecord = 3
	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) < 2 {
		return nil, nil, errors.New("no rows")
	}

	nums := make(map[string]map[string]float64)
	strs := make(map[string]map[string]string)

	// Skip header row
	for _, record := range records[1:] {
		table, key, value := record[0], strings.ToLower(record[1]), record[2]

		if v, err := strconv.ParseFloat(value, 64); err == nil {
			if nums[table] == nil {
				nums[table] = make(map[string]float64)
			}
			nums[table][key] = v
			continue
		}

		if strs[table] == nil {
			strs[table] = make(map[string]string)
		}
		strs[table][key] = value
	}
	return nums, strs, nil
}

func number(table, key string) (float64, bool) {
	tablesOnce.Do(loadTables)
	v, ok := numbers[table][normalize(key)]
	return v, ok
}

func label(table, key string) (string, bool) {
	tablesOnce.Do(loadTables)
	v, ok := labels[table][normalize(key)]
	return v, ok
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
