package interview

import "time"

const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// QuizRequest is the validated submission payload for the resume quiz.
// RequestID is the client-supplied idempotency key; a fresh one is generated
// when absent.
type QuizRequest struct {
	RequestID     string `json:"requestId"`
	Company       string `json:"company" binding:"required,max=100"`
	Position      string `json:"position" binding:"required,max=100"`
	MinSalary     string `json:"minSalary" binding:"required,max=100"`
	MaxSalary     string `json:"maxSalary" binding:"required,max=100"`
	JD            string `json:"jd" binding:"required,max=1000"`
	ResumeURL     string `json:"resumeUrl" binding:"required,max=1000"`
	ResumeContent string `json:"resumeContent,omitempty"`
}

// Attempt is the consumption record for one quiz submission. For a given
// (user, request) pair at most one non-failed attempt exists at a time; a
// failed attempt frees the request ID for retry.
type Attempt struct {
	ID           string      `json:"id"`
	RequestID    string      `json:"requestId"`
	UserID       string      `json:"userId"`
	Status       string      `json:"status"`
	ResultID     string      `json:"resultId,omitempty"`
	Input        QuizRequest `json:"input"`
	ErrorMessage *string     `json:"errorMessage,omitempty"`
	Refunded     bool        `json:"refunded"`
	StartedAt    time.Time   `json:"startedAt"`
	CompletedAt  *time.Time  `json:"completedAt,omitempty"`
}

// Question is one generated interview question with scoring guidance.
type Question struct {
	Prompt          string `json:"prompt"`
	ReferenceAnswer string `json:"referenceAnswer"`
	Category        string `json:"category"`
	Difficulty      string `json:"difficulty"`
}

// MatchAnalysis is the resume/job match scoring payload.
type MatchAnalysis struct {
	MatchScore    float64            `json:"matchScore"`
	MatchedSkills []string           `json:"matchedSkills"`
	MissingSkills []string           `json:"missingSkills"`
	RadarData     map[string]float64 `json:"radarData"`
	Strengths     []string           `json:"strengths"`
	Weaknesses    []string           `json:"weaknesses"`
	Tips          []string           `json:"tips"`
}

// Result is the durable output of a successful quiz run, keyed by the same
// request ID the attempt was deduplicated on.
type Result struct {
	ID        string        `json:"id"`
	RequestID string        `json:"requestId"`
	UserID    string        `json:"userId"`
	Questions []Question    `json:"questions"`
	Summary   string        `json:"summary"`
	Match     MatchAnalysis `json:"match"`
	CreatedAt time.Time     `json:"createdAt"`
}
