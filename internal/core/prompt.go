package core

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/google/generative-ai-go/genai"

	"airr.io/student-analytics/internal/store"
)

const analystSystemInstruction = `You are a Senior Data Analyst for AIRR (AI Transcript Processing).
You have access to a student dataset. Your goal is to:
1. Answer natural language questions about the data.
2. Perform calculations (averages, counts, distributions).
3. Suggest and provide data for a visualization if the query warrants it.

Data Schema:
- id, name, age, city, state, schoolName, schoolType, schoolState, schoolCity, cumulativeGpa, unweightedGpa, weightedGpa, rigorCoursesCount, creditsEarned, majorInterest, graduationYear.

Return a valid JSON object.`

// BuildAnalysisPrompt serializes the whole dataset next to the question.
// There is no retrieval step: the model always sees every record.
func BuildAnalysisPrompt(question string, ds store.Dataset) ([]genai.Part, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question is empty")
	}
	if ds == nil {
		ds = store.Dataset{}
	}
	datasetJSON, err := json.Marshal(ds)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize dataset: %w", err)
	}
	return []genai.Part{
		genai.Text("Current Dataset (JSON): " + string(datasetJSON)),
		genai.Text("User Query: " + question),
	}, nil
}

// DatasetSummary carries the headline figures shown next to the chat.
type DatasetSummary struct {
	Records      int     `json:"records"`
	MeanGPA      float64 `json:"meanGpa"`
	TotalCredits int     `json:"totalCredits"`
}

func Summarize(ds store.Dataset) DatasetSummary {
	summary := DatasetSummary{Records: len(ds)}
	if len(ds) == 0 {
		return summary
	}
	var gpaSum float64
	for _, r := range ds {
		gpaSum += r.CumulativeGPA
		summary.TotalCredits += r.CreditsEarned
	}
	summary.MeanGPA = math.Round(gpaSum/float64(len(ds))*100) / 100
	return summary
}
