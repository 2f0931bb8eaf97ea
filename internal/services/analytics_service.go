package services

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/soaringjerry/modern360/internal/models"
)

// RatingPoints is the size of the rating scale used by the question set.
const RatingPoints = 5

type AnalyticsStore interface {
	GetAssessment(ctx context.Context, id int64) (*models.Assessment, error)
	ListQuestions(ctx context.Context, assessmentID int64) ([]*models.Question, error)
	ListResponses(ctx context.Context, assessmentID int64) ([]*models.Response, error)
}

// AnalyticsService summarizes the rating answers of one assessment.
type AnalyticsService struct {
	store AnalyticsStore
}

func NewAnalyticsService(store AnalyticsStore) *AnalyticsService {
	return &AnalyticsService{store: store}
}

type QuestionSummary struct {
	Key       string `json:"key"`
	Text      string `json:"text"`
	Group     string `json:"group,omitempty"`
	Histogram []int  `json:"histogram"`
	Total     int    `json:"total"`
	// Means are nil when nobody in that population answered.
	SelfMean   *float64 `json:"self_mean"`
	OthersMean *float64 `json:"others_mean"`
}

type GroupSummary struct {
	Group      string   `json:"group"`
	SelfMean   *float64 `json:"self_mean"`
	OthersMean *float64 `json:"others_mean"`
}

type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type AssessmentAnalytics struct {
	AssessmentID      int64             `json:"assessment_id"`
	Points            int               `json:"points"`
	TotalResponses    int               `json:"total_responses"`
	SelfResponses     int               `json:"self_responses"`
	AssessorResponses int               `json:"assessor_responses"`
	Questions         []QuestionSummary `json:"questions"`
	Groups            []GroupSummary    `json:"groups"`
	Timeseries        []DailyCount      `json:"timeseries"`
	Alpha             float64           `json:"alpha"`
	N                 int               `json:"n"`
}

// meanAcc accumulates a running mean.
type meanAcc struct {
	sum float64
	n   int
}

func (m *meanAcc) add(v float64) {
	m.sum += v
	m.n++
}

func (m meanAcc) value() *float64 {
	if m.n == 0 {
		return nil
	}
	v := math.Round(m.sum/float64(m.n)*100) / 100
	return &v
}

// Summary builds per-question rating histograms, self versus others means
// by question and by group, a daily submission count and Cronbach's alpha
// over respondents who rated every question.
func (s *AnalyticsService) Summary(ctx context.Context, assessmentID int64) (*AssessmentAnalytics, error) {
	a, err := s.store.GetAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	if a == nil || a.IsSystem {
		return nil, NewNotFoundError("assessment not found")
	}
	questions, err := s.store.ListQuestions(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	responses, err := s.store.ListResponses(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	rated := ratingQuestions(questions)
	out := &AssessmentAnalytics{
		AssessmentID:   assessmentID,
		Points:         RatingPoints,
		TotalResponses: len(responses),
		Questions:      make([]QuestionSummary, len(rated)),
	}
	self := make([]meanAcc, len(rated))
	others := make([]meanAcc, len(rated))
	groupOrder := []string{}
	groupSelf := map[string]*meanAcc{}
	groupOthers := map[string]*meanAcc{}
	for i, q := range rated {
		out.Questions[i] = QuestionSummary{Key: q.Key(), Text: q.Text, Group: q.Group, Histogram: make([]int, RatingPoints)}
		if _, ok := groupSelf[q.Group]; !ok && q.Group != "" {
			groupOrder = append(groupOrder, q.Group)
			groupSelf[q.Group], groupOthers[q.Group] = &meanAcc{}, &meanAcc{}
		}
	}
	perDay := map[string]int{}
	var matrix [][]float64
	for _, r := range responses {
		isSelf := r.Type == models.ResponseSelf
		if isSelf {
			out.SelfResponses++
		} else {
			out.AssessorResponses++
		}
		perDay[r.SubmittedAt.UTC().Format("2006-01-02")]++
		row := make([]float64, 0, len(rated))
		for i, q := range rated {
			v, ok := parseRating(r.Answers[q.Key()])
			if !ok {
				continue
			}
			row = append(row, float64(v))
			qs := &out.Questions[i]
			qs.Histogram[v-1]++
			qs.Total++
			acc, gacc := &others[i], groupOthers[q.Group]
			if isSelf {
				acc, gacc = &self[i], groupSelf[q.Group]
			}
			acc.add(float64(v))
			if gacc != nil {
				gacc.add(float64(v))
			}
		}
		if len(rated) > 0 && len(row) == len(rated) {
			matrix = append(matrix, row)
		}
	}
	for i := range out.Questions {
		out.Questions[i].SelfMean = self[i].value()
		out.Questions[i].OthersMean = others[i].value()
	}
	for _, g := range groupOrder {
		out.Groups = append(out.Groups, GroupSummary{Group: g, SelfMean: groupSelf[g].value(), OthersMean: groupOthers[g].value()})
	}
	out.Timeseries = dailyCounts(perDay)
	out.Alpha = CronbachAlpha(matrix)
	out.N = len(matrix)
	return out, nil
}

func ratingQuestions(qs []*models.Question) []*models.Question {
	out := make([]*models.Question, 0, len(qs))
	for _, q := range qs {
		if q.Type == "" || q.Type == models.QuestionRating {
			out = append(out, q)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// parseRating accepts whole numbers on the scale, written as "4" or "4.0".
func parseRating(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, false
	}
	v := int(f)
	if v < 1 || v > RatingPoints {
		return 0, false
	}
	return v, true
}

func dailyCounts(counts map[string]int) []DailyCount {
	days := make([]string, 0, len(counts))
	for d := range counts {
		days = append(days, d)
	}
	sort.Strings(days)
	out := make([]DailyCount, 0, len(days))
	for _, d := range days {
		out = append(out, DailyCount{Date: d, Count: counts[d]})
	}
	return out
}
