package bridge

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"stututor-go/internal/model"
	"stututor-go/pkg/apperr"
)

var errNoJSONObject = errors.New("reply contains no JSON object")

// parseReply 按意图规整回复，任何不符合结构的回复都返回 MalformedResponse。
func parseReply(call *Call, text string) (*Result, error) {
	res := &Result{Intent: call.Intent}
	switch call.Intent {
	case IntentChatTurn:
		reply := strings.TrimSpace(text)
		if reply == "" {
			return nil, apperr.Malformed(nil, "empty chat reply")
		}
		res.Reply = reply
	case IntentStudyNotesFromTopic, IntentStudyNotesFromDocument:
		notes, err := parseNotes(text)
		if err != nil {
			return nil, err
		}
		if notes.Topic == "" {
			notes.Topic = strings.TrimSpace(call.Topic)
		}
		if notes.Focus == "" {
			notes.Focus = strings.TrimSpace(call.Focus)
		}
		res.Notes = notes
	case IntentQuizFromTopic, IntentQuizFromDocument:
		quiz, err := parseQuiz(text, call)
		if err != nil {
			return nil, err
		}
		res.Quiz = quiz
	}
	return res, nil
}

// extractJSON 去掉 markdown 代码块，截取第一个 { 到最后一个 } 之间的内容。
func extractJSON(text string) (string, error) {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", errNoJSONObject
	}
	return s[start : end+1], nil
}

type notesReply struct {
	Summary           string   `json:"summary"`
	KeyConcepts       []string `json:"key_concepts"`
	ImportantTerms    []string `json:"important_terms"`
	PracticeQuestions []string `json:"practice_questions"`
	Topic             string   `json:"topic"`
	Focus             string   `json:"focus"`
}

func parseNotes(text string) (*model.StudyNotes, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return nil, apperr.Malformed(err, "study notes reply is not JSON")
	}
	var r notesReply
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, apperr.Malformed(err, "study notes reply is not valid JSON")
	}

	var missing []string
	if strings.TrimSpace(r.Summary) == "" {
		missing = append(missing, "summary")
	}
	if r.KeyConcepts == nil {
		missing = append(missing, "key_concepts")
	}
	if r.ImportantTerms == nil {
		missing = append(missing, "important_terms")
	}
	if r.PracticeQuestions == nil {
		missing = append(missing, "practice_questions")
	}
	if len(missing) > 0 {
		return nil, apperr.Malformed(nil, "study notes reply is missing %s", strings.Join(missing, ", "))
	}

	return &model.StudyNotes{
		ID:                uuid.NewString(),
		Summary:           strings.TrimSpace(r.Summary),
		KeyConcepts:       r.KeyConcepts,
		ImportantTerms:    r.ImportantTerms,
		PracticeQuestions: r.PracticeQuestions,
		Topic:             strings.TrimSpace(r.Topic),
		Focus:             strings.TrimSpace(r.Focus),
	}, nil
}

type quizReply struct {
	Questions []struct {
		ID         json.RawMessage `json:"id"`
		Question   string          `json:"question"`
		Answer     string          `json:"answer"`
		Choices    []string        `json:"choices"`
		Difficulty string          `json:"difficulty"`
		Topic      string          `json:"topic"`
	} `json:"questions"`
}

func parseQuiz(text string, call *Call) (*model.Quiz, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return nil, apperr.Malformed(err, "quiz reply is not JSON")
	}
	var r quizReply
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, apperr.Malformed(err, "quiz reply is not valid JSON")
	}
	if len(r.Questions) == 0 {
		return nil, apperr.Malformed(nil, "quiz reply has no questions")
	}

	quiz := &model.Quiz{
		ID:         uuid.NewString(),
		Topic:      strings.TrimSpace(call.Topic),
		Difficulty: call.Difficulty,
		Questions:  make([]model.QuizQuestion, 0, len(r.Questions)),
	}
	for i, q := range r.Questions {
		question := strings.TrimSpace(q.Question)
		answer := strings.TrimSpace(q.Answer)
		if question == "" {
			return nil, apperr.Malformed(nil, "quiz question %d is empty", i+1)
		}
		if len(q.Choices) < 2 {
			return nil, apperr.Malformed(nil, "quiz question %d has fewer than two choices", i+1)
		}
		choices := make([]string, len(q.Choices))
		found := false
		for j, c := range q.Choices {
			choices[j] = strings.TrimSpace(c)
			if choices[j] == answer {
				found = true
			}
		}
		if !found {
			return nil, apperr.Malformed(nil, "quiz question %d answer is not among its choices", i+1)
		}

		qq := model.QuizQuestion{
			ID:         questionID(q.ID, i),
			Question:   question,
			Answer:     answer,
			Choices:    choices,
			Difficulty: strings.TrimSpace(q.Difficulty),
			Topic:      strings.TrimSpace(q.Topic),
		}
		if qq.Difficulty == "" {
			qq.Difficulty = call.Difficulty
		}
		if qq.Topic == "" {
			qq.Topic = quiz.Topic
		}
		quiz.Questions = append(quiz.Questions, qq)
	}
	return quiz, nil
}

// questionID 接受字符串或数字形式的 id，缺失时按序号生成。
func questionID(raw json.RawMessage, index int) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil && n != "" {
		return n.String()
	}
	return strconv.Itoa(index + 1)
}
