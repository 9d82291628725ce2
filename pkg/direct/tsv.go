package direct

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"rsyaclean/internal/model"
)

// ParseReportTSV reads a report body with a header row naming at least
// CampaignId, Placement, Impressions, Clicks, Cost and Conversions. Cells
// holding "--" count as zero. Report title and summary lines are skipped.
func ParseReportTSV(body []byte) ([]model.Placement, error) {
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var (
		columns    map[string]int
		placements []model.Placement
		line       int
	)

	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		if text == "" {
			continue
		}
		cells := strings.Split(text, "\t")

		if columns == nil {
			if !isHeader(cells) {
				// report title line
				continue
			}
			columns = make(map[string]int, len(cells))
			for i, name := range cells {
				columns[strings.TrimSpace(name)] = i
			}
			continue
		}

		if strings.HasPrefix(cells[0], "Total rows") {
			continue
		}

		p, err := parseRow(cells, columns)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		placements = append(placements, p)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if columns == nil && len(bytes.TrimSpace(body)) > 0 {
		return nil, fmt.Errorf("report has no header row")
	}

	return placements, nil
}

func isHeader(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) == "Placement" {
			return true
		}
	}
	return false
}

func parseRow(cells []string, columns map[string]int) (model.Placement, error) {
	cell := func(name string) string {
		i, ok := columns[name]
		if !ok || i >= len(cells) {
			return ""
		}
		v := strings.TrimSpace(cells[i])
		if v == "--" {
			return ""
		}
		return v
	}

	var (
		p   model.Placement
		err error
	)

	p.Domain = strings.ToLower(cell("Placement"))
	if p.CampaignID, err = parseInt(cell("CampaignId")); err != nil {
		return p, fmt.Errorf("CampaignId: %w", err)
	}
	if p.Impressions, err = parseInt(cell("Impressions")); err != nil {
		return p, fmt.Errorf("Impressions: %w", err)
	}
	if p.Clicks, err = parseInt(cell("Clicks")); err != nil {
		return p, fmt.Errorf("Clicks: %w", err)
	}
	if p.Conversions, err = parseInt(cell("Conversions")); err != nil {
		return p, fmt.Errorf("Conversions: %w", err)
	}
	if v := cell("Cost"); v != "" {
		if p.Cost, err = strconv.ParseFloat(v, 64); err != nil {
			return p, fmt.Errorf("Cost: %w", err)
		}
	}

	return p, nil
}

func parseInt(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.ParseInt(v, 10, 64)
}
