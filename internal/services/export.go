package services

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"strings"

	"github.com/soaringjerry/modern360/internal/models"
)

const csvTimeLayout = "2006-01-02 15:04"

// ExportReportCSV renders the two report tables one after the other,
// separated by an empty row.
func ExportReportCSV(assessments []AssessmentReport, users []UserReport) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"Assessment Title", "Creator", "Type", "Created Date", "Invitations Sent", "Responses Received", "Completion Rate (%)", "Deadline"})
	for _, a := range assessments {
		kind := "360 Assessment"
		if a.IsSelf {
			kind = "Self-Assessment"
		}
		creator := a.CreatorName
		if creator == "" {
			creator = "N/A"
		}
		deadline := "No deadline"
		if a.Deadline != nil {
			deadline = a.Deadline.Format(csvTimeLayout)
		}
		rec := []string{
			a.Title,
			creator,
			kind,
			a.CreatedAt.Format(csvTimeLayout),
			strconv.Itoa(a.Invitations),
			strconv.Itoa(a.Responses),
			strconv.FormatFloat(a.CompletionRate, 'f', 1, 64),
			deadline,
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	_ = w.Write([]string{})
	_ = w.Write([]string{"User Name", "Email", "Company", "Role", "Assessments Created", "Responses Submitted", "Invitations Sent", "Activity Score"})
	for _, u := range users {
		company := u.CompanyName
		if company == "" {
			company = "N/A"
		}
		rec := []string{
			u.Name,
			u.Email,
			company,
			titleWord(string(u.Role)),
			strconv.Itoa(u.AssessmentsCreated),
			strconv.Itoa(u.Responses),
			strconv.Itoa(u.InvitationsSent),
			strconv.Itoa(u.ActivityScore),
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// ExportDetailsCSV renders the projection of one assessment in wide format:
// one row per response, one column per answer column in question order.
func ExportDetailsCSV(questions []*models.Question, details []*models.ResponseDetail) ([]byte, error) {
	cols := make([]string, 0, models.ProjectionColumnCount)
	if len(questions) > 0 {
		for _, q := range questions {
			if q.Position >= 1 && q.Position <= models.ProjectionColumnCount {
				cols = append(cols, q.Key())
			}
		}
	} else {
		for i := 1; i <= models.ProjectionColumnCount; i++ {
			cols = append(cols, models.ProjectionColumn(i))
		}
	}
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	header := append([]string{"response_id", "respondent_email", "submitted_at"}, cols...)
	_ = w.Write(header)
	for _, d := range details {
		row := make([]string, 0, len(header))
		row = append(row, strconv.FormatInt(d.ResponseID, 10), d.RespondentEmail, d.SubmittedAt.Format(csvTimeLayout))
		for _, c := range cols {
			row = append(row, d.Columns[c])
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func titleWord(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
