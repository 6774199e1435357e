package store

import "time"

type SchoolType string

const (
	SchoolTypeCollege    SchoolType = "College"
	SchoolTypeHighSchool SchoolType = "High School"
)

// StudentRecord is the uniform record shape every data channel produces.
type StudentRecord struct {
	ID                string     `json:"id" yaml:"id"`
	Name              string     `json:"name" yaml:"name"`
	Age               int        `json:"age" yaml:"age"`
	City              string     `json:"city" yaml:"city"`
	State             string     `json:"state" yaml:"state"`
	SchoolName        string     `json:"schoolName" yaml:"schoolName"`
	SchoolType        SchoolType `json:"schoolType" yaml:"schoolType"`
	SchoolState       string     `json:"schoolState" yaml:"schoolState"`
	SchoolCity        string     `json:"schoolCity" yaml:"schoolCity"`
	CumulativeGPA     float64    `json:"cumulativeGpa" yaml:"cumulativeGpa"`
	UnweightedGPA     float64    `json:"unweightedGpa" yaml:"unweightedGpa"`
	WeightedGPA       float64    `json:"weightedGpa" yaml:"weightedGpa"`
	RigorCoursesCount int        `json:"rigorCoursesCount" yaml:"rigorCoursesCount"`
	CreditsEarned     int        `json:"creditsEarned" yaml:"creditsEarned"`
	MajorInterest     string     `json:"majorInterest,omitempty" yaml:"majorInterest,omitempty"`
	GraduationYear    int        `json:"graduationYear" yaml:"graduationYear"`
}

// Dataset is an ordered sequence of records owned by one channel.
type Dataset []StudentRecord

// Clone returns a copy that shares no backing array with d.
func (d Dataset) Clone() Dataset {
	if d == nil {
		return nil
	}
	out := make(Dataset, len(d))
	copy(out, d)
	return out
}

type Session struct {
	ID        string    `json:"id"` // UUID
	CreatedAt time.Time `json:"created_at"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChartType string

const (
	ChartBar     ChartType = "BAR"
	ChartLine    ChartType = "LINE"
	ChartPie     ChartType = "PIE"
	ChartScatter ChartType = "SCATTER"
	ChartNone    ChartType = "NONE"
)

type ChartPoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

type Visualization struct {
	Type       ChartType    `json:"type"`
	Data       []ChartPoint `json:"data"`
	XAxisLabel string       `json:"xAxisLabel"`
	YAxisLabel string       `json:"yAxisLabel"`
	Title      string       `json:"title"`
}

// AnalysisResponse is the typed answer returned by the analysis model.
type AnalysisResponse struct {
	Answer             string         `json:"answer"`
	CalculationSummary string         `json:"calculationSummary,omitempty"`
	Visualization      *Visualization `json:"visualization,omitempty"`
}

type Message struct {
	ID        string            `json:"id"` // UUID
	SessionID string            `json:"session_id"`
	Role      string            `json:"role"` // "user" or "assistant"
	Content   string            `json:"content"`
	Analysis  *AnalysisResponse `json:"analysis,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
