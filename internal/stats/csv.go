package stats

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"

	"dhtprobe/internal/model"
)

// WriteCSV writes one row per probe record with a fixed column order, for
// spreadsheet analysis of the snapshot. Rows are sorted by record key so
// repeated exports diff cleanly.
func WriteCSV(w io.Writer, records map[string]model.ProbeRecord) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	header := []string{
		"record_key",
		"active",
		"payload_size_b",
		"evaluation_interval_h",
		"next_evaluation_unixtime",
		"evaluations",
		"first_evaluation_unixtime",
		"last_evaluation_unixtime",
		"lifetime_s",
		"failure_reason",
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	keys := make([]string, 0, len(records))
	for key := range records {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		rec := records[key]

		next := ""
		if rec.NextEvaluationUnix != nil {
			next = formatUnix(*rec.NextEvaluationUnix)
		}
		first, last := "", ""
		if n := len(rec.EvaluationStartUnix); n > 0 {
			first = formatUnix(rec.EvaluationStartUnix[0])
			last = formatUnix(rec.EvaluationStartUnix[n-1])
		}
		lifetime := ""
		if v, ok := rec.Lifetime(); ok {
			lifetime = strconv.FormatFloat(v, 'f', 3, 64)
		}

		row := []string{
			rec.RecordKey,
			strconv.FormatBool(rec.Active()),
			strconv.Itoa(rec.PayloadSizeB),
			strconv.Itoa(rec.EvaluationIntervalH),
			next,
			strconv.Itoa(len(rec.EvaluationStartUnix)),
			first,
			last,
			lifetime,
			rec.FailureReason,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	return writer.Error()
}

func formatUnix(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
