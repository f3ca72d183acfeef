package roster

import (
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"

	"RosterMail/internal/models"
)

// LoadCSV parses a roster from an io.Reader. The CSV must contain a header
// row with at least "name" and "email" columns (case-insensitive); the other
// recognized columns are optional. Malformed or address-less rows are
// skipped, not fatal.
//
// maxRows limits how many data rows are parsed (excluding header).
func LoadCSV(r io.Reader, maxRows int) ([]models.Recipient, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	// rows with the wrong arity are skipped below instead of failing the file
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		return nil, err
	}
	if len(headers) == 0 {
		return nil, errors.New("csv header row is empty")
	}

	cols := make(map[string]int, len(headers))
	for i, h := range headers {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := cols["email"]; !ok {
		return nil, errors.New("csv must contain an email column")
	}
	if _, ok := cols["name"]; !ok {
		return nil, errors.New("csv must contain a name column")
	}

	if maxRows <= 0 {
		maxRows = 1000
	}

	field := func(record []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	recipients := make([]models.Recipient, 0)
	row := 0
	for len(recipients) < maxRows {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row++
		if len(record) != len(headers) {
			// skip malformed row
			continue
		}

		email := field(record, "email")
		if email == "" {
			continue
		}

		id := field(record, "id")
		if id == "" {
			id = "row-" + strconv.Itoa(row)
		}

		recipients = append(recipients, models.Recipient{
			ID:           id,
			Name:         field(record, "name"),
			Email:        email,
			Gender:       parseGender(field(record, "gender")),
			Title:        field(record, "title"),
			Department:   field(record, "department"),
			Position:     field(record, "position"),
			BossName:     field(record, "boss_name"),
			BossPosition: field(record, "boss_position"),
			BossEmail:    field(record, "boss_email"),
		})
	}

	if len(recipients) == 0 {
		return nil, errors.New("csv must contain at least one data row")
	}

	return recipients, nil
}

func parseGender(s string) models.Gender {
	switch strings.ToLower(s) {
	case "male", "m", "masculino":
		return models.GenderMale
	case "female", "f", "femenino":
		return models.GenderFemale
	default:
		return models.GenderUnspecified
	}
}
