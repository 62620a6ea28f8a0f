package interview

import (
	"sync"
	"time"
)

// Mock interview types select the question style and the quota category the
// session debits.
const (
	MockTypeSpecial  = "special"
	MockTypeBehavior = "behavior"
)

// Lifecycle states of a mock interview record.
const (
	MockStatusInProgress = "in_progress"
	MockStatusPaused     = "paused"
	MockStatusCompleted  = "completed"
	MockStatusAbandoned  = "abandoned"
)

// Event types on a mock interview stream.
const (
	MockEventStart     = "start"
	MockEventQuestion  = "question"
	MockEventWaiting   = "waiting"
	MockEventReference = "reference"
	MockEventThinking  = "thinking"
	MockEventEnd       = "end"
	MockEventError     = "error"
)

// MockInterviewRequest is the payload starting a mock interview session.
type MockInterviewRequest struct {
	Type          string `json:"type" binding:"required,oneof=special behavior"`
	CandidateName string `json:"candidateName" binding:"required,max=100"`
	CompanyName   string `json:"companyName" binding:"required,max=100"`
	PositionName  string `json:"positionName" binding:"required,max=100"`
	MinSalary     int    `json:"minSalary" binding:"min=0,max=100000"`
	MaxSalary     int    `json:"maxSalary" binding:"min=0,max=100000"`
	JD            string `json:"jd" binding:"required,max=1000"`
	ResumeURL     string `json:"resumeUrl" binding:"max=1000"`
	ResumeContent string `json:"resumeContent" binding:"max=10000"`
}

// MockEvent is one frame on a mock interview stream.
type MockEvent struct {
	Type            string `json:"type"`
	SessionID       string `json:"sessionId,omitempty"`
	ResultID        string `json:"resultId,omitempty"`
	InterviewerName string `json:"interviewerName,omitempty"`
	Content         string `json:"content,omitempty"`
	QuestionIndex   int    `json:"questionIndex"`
	TotalQuestions  int    `json:"totalQuestions"`
	UsedTime        int64  `json:"usedTime"`
	ErrorMessage    string `json:"errorMessage,omitempty"`
}

// STARScore grades a behavioral answer along the STAR dimensions, 0-100 each.
type STARScore struct {
	Situation float64 `json:"situation"`
	Task      float64 `json:"task"`
	Action    float64 `json:"action"`
	Result    float64 `json:"result"`
	Overall   float64 `json:"overallScore"`
	Feedback  string  `json:"feedback,omitempty"`
}

// MockTurn is one question/answer exchange of a mock interview. Questions
// are generated up front; answer fields fill in as the candidate responds.
type MockTurn struct {
	Question        string     `json:"question"`
	ReferenceAnswer string     `json:"referenceAnswer"`
	Answer          string     `json:"answer,omitempty"`
	Score           float64    `json:"score"`
	Feedback        string     `json:"feedback,omitempty"`
	Highlights      []string   `json:"highlights,omitempty"`
	Improvements    []string   `json:"improvements,omitempty"`
	StarScore       *STARScore `json:"starScore,omitempty"`
	AskedAt         *time.Time `json:"askedAt,omitempty"`
	AnsweredAt      *time.Time `json:"answeredAt,omitempty"`
}

// MockResult is the persisted record of one mock interview session. The
// session transcript lives here, keyed by the session ID handed to the
// client on start.
type MockResult struct {
	ID                string     `json:"resultId"`
	UserID            string     `json:"userId"`
	SessionID         string     `json:"sessionId"`
	Type              string     `json:"interviewType"`
	Company           string     `json:"company"`
	Position          string     `json:"position"`
	SalaryRange       string     `json:"salaryRange"`
	JD                string     `json:"jd,omitempty"`
	Turns             []MockTurn `json:"turns"`
	TotalQuestions    int        `json:"totalQuestions"`
	AnsweredQuestions int        `json:"answeredQuestions"`
	OverallScore      float64    `json:"overallScore"`
	Status            string     `json:"status"`
	StartedAt         time.Time  `json:"startedAt"`
	PausedAt          *time.Time `json:"pausedAt,omitempty"`
	ResumedAt         *time.Time `json:"resumedAt,omitempty"`
	CompletedAt       *time.Time `json:"completedAt,omitempty"`
}

// MockStream carries the events of one mock interview exchange to its SSE
// consumer. Each exchange (start, or one answer) gets its own short-lived
// stream that closes after its final event; sends never block and are
// dropped once the stream is closed.
type MockStream struct {
	mu     sync.Mutex
	ch     chan MockEvent
	closed bool
}

const mockStreamBuffer = 16

func newMockStream() *MockStream {
	return &MockStream{ch: make(chan MockEvent, mockStreamBuffer)}
}

// Events returns the consumer side of the stream.
func (m *MockStream) Events() <-chan MockEvent {
	return m.ch
}

// Emit sends a non-terminal event.
func (m *MockStream) Emit(ev MockEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.send(ev)
}

// Fail sends a terminal error event and closes the stream.
func (m *MockStream) Fail(sessionID, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.send(MockEvent{Type: MockEventError, SessionID: sessionID, ErrorMessage: message})
	close(m.ch)
}

// Close ends the stream after its last regular event.
func (m *MockStream) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.ch)
}

func (m *MockStream) send(ev MockEvent) {
	select {
	case m.ch <- ev:
	default:
		// Buffer full means the consumer is gone; drop rather than block.
	}
}
