package services

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/soaringjerry/modern360/internal/models"
)

// ProjectionSchema maps answer keys onto the fixed answer columns of a
// ResponseDetail. Keys without a column are kept only in the authoritative
// answers.
type ProjectionSchema struct {
	columns map[string]string
}

// DefaultProjectionSchema maps q1..q39 onto the columns of the same name.
func DefaultProjectionSchema() ProjectionSchema {
	cols := make(map[string]string, models.ProjectionColumnCount)
	for i := 1; i <= models.ProjectionColumnCount; i++ {
		c := models.ProjectionColumn(i)
		cols[c] = c
	}
	return ProjectionSchema{columns: cols}
}

// NewProjectionSchema validates a custom key to column mapping. Each column
// may be targeted by one key only.
func NewProjectionSchema(mapping map[string]string) (ProjectionSchema, error) {
	valid := DefaultProjectionSchema().columns
	used := map[string]string{}
	cols := make(map[string]string, len(mapping))
	for key, col := range mapping {
		key, col = strings.TrimSpace(key), strings.ToLower(strings.TrimSpace(col))
		if key == "" {
			return ProjectionSchema{}, fmt.Errorf("projection: empty answer key")
		}
		if _, ok := valid[col]; !ok {
			return ProjectionSchema{}, fmt.Errorf("projection: unknown column %q", col)
		}
		if prev, ok := used[col]; ok {
			return ProjectionSchema{}, fmt.Errorf("projection: column %s mapped by %q and %q", col, prev, key)
		}
		used[col] = key
		cols[key] = col
	}
	return ProjectionSchema{columns: cols}, nil
}

// Keys lists the mapped answer keys in a stable order.
func (p ProjectionSchema) Keys() []string {
	out := make([]string, 0, len(p.columns))
	for k := range p.columns {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Project derives the column row of resp. It never fails: unknown keys are
// simply not projected.
func (p ProjectionSchema) Project(resp *models.Response, respondentEmail, title string) *models.ResponseDetail {
	d := &models.ResponseDetail{
		ResponseID:      resp.ID,
		AssessmentID:    resp.AssessmentID,
		InvitationID:    resp.InvitationID,
		UserID:          resp.UserID,
		RespondentEmail: respondentEmail,
		AssessmentTitle: title,
		SubmittedAt:     resp.SubmittedAt,
		Columns:         map[string]string{},
	}
	for key, val := range resp.Answers {
		if col, ok := p.columns[key]; ok {
			d.Columns[col] = val
		}
	}
	return d
}

// NormalizeAnswers turns decoded JSON answers into strings. Scalars are
// accepted; objects and arrays are not.
func NormalizeAnswers(raw map[string]any) (map[string]string, error) {
	out := make(map[string]string, len(raw))
	for key, v := range raw {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		switch val := v.(type) {
		case nil:
			continue
		case string:
			out[key] = val
		case bool:
			out[key] = strconv.FormatBool(val)
		case float64:
			out[key] = strconv.FormatFloat(val, 'f', -1, 64)
		case json.Number:
			out[key] = val.String()
		case int:
			out[key] = strconv.Itoa(val)
		case int64:
			out[key] = strconv.FormatInt(val, 10)
		default:
			return nil, NewInvalidError("Invalid answer for " + key)
		}
	}
	if len(out) == 0 {
		return nil, NewInvalidError("No answers submitted")
	}
	return out, nil
}
