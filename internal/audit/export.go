/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// exportJSON exports audit events to JSON format.
func (m *Manager) exportJSON(filename string, events []Event) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("audit: create file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(events); err != nil {
		return fmt.Errorf("audit: encode JSON: %w", err)
	}

	m.logger.Info("exported audit events to JSON", "filename", filename, "count", len(events))
	return nil
}

// exportCSV exports audit events to CSV format.
func (m *Manager) exportCSV(filename string, events []Event) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("audit: create file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"ID", "Timestamp", "EventType", "Resource", "Term",
		"Member", "Status", "Detail", "DurationMs", "Metadata",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("audit: write CSV header: %w", err)
	}

	for _, event := range events {
		metadata := ""
		if len(event.Metadata) > 0 {
			metaJSON, _ := json.Marshal(event.Metadata)
			metadata = string(metaJSON)
		}

		row := []string{
			strconv.FormatInt(event.ID, 10),
			event.Timestamp.Format("2006-01-02 15:04:05"),
			string(event.EventType),
			event.Resource,
			strconv.FormatUint(event.Term, 10),
			event.Member,
			string(event.Status),
			event.Detail,
			strconv.FormatInt(event.DurationMs, 10),
			metadata,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("audit: write CSV row: %w", err)
		}
	}

	m.logger.Info("exported audit events to CSV", "filename", filename, "count", len(events))
	return nil
}
