package llm

import (
	"fmt"
	"strings"
)

// QuizInput carries the candidate/position parameters shared by the quiz
// pipeline stages.
type QuizInput struct {
	Company        string
	Position       string
	SalaryRange    string
	JobDescription string
	ResumeText     string
}

const questionsSystem = `You are a senior technical interviewer. Respond with a single JSON object and nothing else.`

// QuestionsPrompt builds the interview-question generation prompt.
func QuestionsPrompt(in QuizInput) string {
	var b strings.Builder
	b.WriteString("Generate likely interview questions for the candidate below.\n\n")
	writeProfile(&b, in)
	b.WriteString(`
Return JSON with this exact shape:
{
  "questions": [
    {"prompt": string, "referenceAnswer": string, "category": string, "difficulty": "easy"|"medium"|"hard"}
  ],
  "summary": string
}
Produce 8 to 12 questions ordered from warm-up to hardest. Categories should
reflect the job description (e.g. "fundamentals", "project", "system design",
"behavior"). Reference answers must be grounded in the resume content.`)
	return b.String()
}

// MatchAnalysisPrompt builds the resume/job match-scoring prompt.
func MatchAnalysisPrompt(in QuizInput) string {
	var b strings.Builder
	b.WriteString("Score how well the candidate below matches the position.\n\n")
	writeProfile(&b, in)
	b.WriteString(`
Return JSON with this exact shape:
{
  "matchScore": number (0-100),
  "matchedSkills": [string],
  "missingSkills": [string],
  "radarData": {"technical": number, "experience": number, "education": number, "communication": number, "potential": number},
  "strengths": [string],
  "weaknesses": [string],
  "tips": [string]
}
Radar axes are scored 0-100. Tips must be concrete interview-preparation
advice for this specific position.`)
	return b.String()
}

// ResumeReportPrompt builds the standalone resume-analysis report prompt.
func ResumeReportPrompt(resumeContent, position string) string {
	return fmt.Sprintf(`Analyze the resume below for a candidate targeting the position %q.

Resume:
%s

Return JSON with this exact shape:
{
  "overallScore": number (0-100),
  "highlights": [string],
  "gaps": [string],
  "suggestions": [string],
  "summary": string
}`, position, resumeContent)
}

// ContinuationPrompt builds the conversation-continuation prompt from an
// ordered message history.
func ContinuationPrompt(history []string) string {
	return fmt.Sprintf(`Continue the interview conversation below as the interviewer.
Stay in role, reference earlier answers, and ask at most one follow-up question.

Conversation:
%s

Return JSON with this exact shape: {"reply": string}`, strings.Join(history, "\n\n"))
}

// MockInput carries the parameters of a mock interview session.
type MockInput struct {
	Type           string
	CandidateName  string
	Company        string
	Position       string
	SalaryRange    string
	JobDescription string
	ResumeText     string
}

// MockQuestionsPrompt builds the mock interview question-plan prompt. A
// "special" interview drills the position's technical domain; a "behavior"
// interview covers soft skills and past experience.
func MockQuestionsPrompt(in MockInput, count int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Plan a %s mock interview for the candidate below.\n", in.Type)
	if in.Type == "behavior" {
		b.WriteString("Ask behavioral questions about past experience, teamwork and conflict, answerable in STAR form.\n\n")
	} else {
		b.WriteString("Ask technical questions drilling the skills the job description demands.\n\n")
	}
	fmt.Fprintf(&b, "Candidate: %s\n", in.CandidateName)
	writeProfile(&b, QuizInput{
		Company:        in.Company,
		Position:       in.Position,
		SalaryRange:    in.SalaryRange,
		JobDescription: in.JobDescription,
		ResumeText:     in.ResumeText,
	})
	fmt.Fprintf(&b, `
Return JSON with this exact shape:
{
  "questions": [
    {"question": string, "referenceAnswer": string}
  ]
}
Produce exactly %d questions ordered from warm-up to hardest. Address the
candidate by name in the first question.`, count)
	return b.String()
}

// MockScoringPrompt builds the answer-grading prompt for one mock interview
// turn. Behavioral answers are additionally graded on the STAR dimensions.
func MockScoringPrompt(interviewType, question, referenceAnswer, answer string) string {
	var b strings.Builder
	b.WriteString("Grade the candidate's answer to the mock interview question below.\n\n")
	fmt.Fprintf(&b, "Question: %s\n", question)
	fmt.Fprintf(&b, "Reference answer: %s\n", referenceAnswer)
	fmt.Fprintf(&b, "Candidate answer: %s\n", answer)
	b.WriteString(`
Return JSON with this exact shape:
{
  "score": number (0-100),
  "feedback": string,
  "highlights": [string],
  "improvements": [string]`)
	if interviewType == "behavior" {
		b.WriteString(`,
  "starScore": {"situation": number, "task": number, "action": number, "result": number, "overallScore": number, "feedback": string}`)
	}
	b.WriteString(`
}
Feedback must be specific to the candidate's answer, not generic advice.`)
	return b.String()
}

// System returns the shared system message for quiz-pipeline completions.
func System() string {
	return questionsSystem
}

func writeProfile(b *strings.Builder, in QuizInput) {
	fmt.Fprintf(b, "Company: %s\n", in.Company)
	fmt.Fprintf(b, "Position: %s\n", in.Position)
	fmt.Fprintf(b, "Salary range: %s\n", in.SalaryRange)
	fmt.Fprintf(b, "Job description:\n%s\n\n", in.JobDescription)
	fmt.Fprintf(b, "Resume:\n%s\n", in.ResumeText)
}
