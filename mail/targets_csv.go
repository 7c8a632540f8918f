package mail

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
)

// unmarshalCsvTargets maps every CSV row to its header names
func unmarshalCsvTargets(raw []byte) ([]map[string]any, error) {
	csvReader := csv.NewReader(bytes.NewReader(raw))
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	header, err := csvReader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	data := make([]map[string]any, 0)
	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("CSV parse error: %w", err)
		}

		rec := make(map[string]any, len(header))
		for i, h := range header {
			if i < len(record) {
				rec[h] = record[i]
			}
		}
		data = append(data, rec)
	}

	return data, nil
}
