package bridge

import (
	"strconv"
	"strings"

	"stututor-go/internal/model"
	"stututor-go/pkg/apperr"
	"stututor-go/pkg/llm"
)

const jsonMIMEType = "application/json"

const notesFormat = `When you generate the study notes. If the user does not provide a focus, move on. It is very important that you always follow this format:
{
    "summary": "summary",
    "key_concepts": ["key_concept1", "key_concept2", "key_concept3"],
    "important_terms": ["important_term1", "important_term2", "important_term3"],
    "practice_questions": ["practice_question1", "practice_question2", "practice_question3"],
    "topic": "topic",
    "focus": "focus"
}
Respond with only valid JSON. Do not include any other text.`

const quizFormat = `When you generate the quiz, it must always follow this format:
{
    "questions": [
        {
            "id": "1",
            "question": "question",
            "answer": "answer",
            "choices": ["choice1", "choice2", "choice3", "choice4"],
            "difficulty": "difficulty",
            "topic": "topic"
        }
    ]
}
The answer must be exactly one of the choices.
Respond with only valid JSON. Do not include any other text.`

var systemInstructions = map[Intent]string{
	IntentStudyNotesFromTopic:    "You are a helpful assistant that generates study notes from a topic based on the course and focus requested.\n" + notesFormat,
	IntentStudyNotesFromDocument: "You are a helpful assistant that generates study notes from a PDF document based on the course and focus requested.\n" + notesFormat,
	IntentQuizFromTopic:          "You are a helpful assistant that generates quizzes from a topic based on the difficulty and number of questions requested.\n" + quizFormat,
	IntentQuizFromDocument:       "You are a helpful assistant that generates quizzes from a PDF document based on the difficulty and number of questions requested.\n" + quizFormat,
}

// buildRequest 校验调用并构造出站请求，同时补全测验默认参数。
func (b *bridge) buildRequest(call *Call) (*llm.Request, error) {
	switch call.Intent {
	case IntentChatTurn:
		return b.chatRequest(call)
	case IntentStudyNotesFromTopic, IntentStudyNotesFromDocument:
		return b.notesRequest(call)
	case IntentQuizFromTopic, IntentQuizFromDocument:
		return b.quizRequest(call)
	default:
		return nil, apperr.Validation("unknown intent %q", call.Intent)
	}
}

func (b *bridge) chatRequest(call *Call) (*llm.Request, error) {
	text := strings.TrimSpace(call.Message)
	if text == "" {
		return nil, apperr.Validation("message must not be empty")
	}
	if call.Document != nil && !call.Document.HasPayload() {
		return nil, apperr.Validation("document %s has no content loaded", call.Document.ID)
	}

	messages := make([]llm.Message, 0, len(call.History)+1)
	for _, m := range call.History {
		role := llm.RoleUser
		if m.Role == model.RoleAssistant {
			role = llm.RoleModel
		}
		messages = append(messages, llm.TextMessage(role, m.Content))
	}

	last := llm.Message{Role: llm.RoleUser}
	if call.Document != nil {
		last.Parts = append(last.Parts, documentPart(call.Document))
	}
	last.Parts = append(last.Parts, llm.Part{Text: text})
	messages = append(messages, last)

	return &llm.Request{Model: b.models.Chat, Messages: messages}, nil
}

func (b *bridge) notesRequest(call *Call) (*llm.Request, error) {
	var parts []llm.Part
	if call.Intent == IntentStudyNotesFromDocument {
		if !call.Document.HasPayload() {
			return nil, apperr.Validation("no document is loaded")
		}
		parts = append(parts, documentPart(call.Document))
	} else {
		topic := strings.TrimSpace(call.Topic)
		if topic == "" {
			return nil, apperr.Validation("topic must not be empty")
		}
		parts = append(parts, llm.Part{Text: topic})
	}
	if focus := strings.TrimSpace(call.Focus); focus != "" {
		parts = append(parts, llm.Part{Text: focus})
	}

	return &llm.Request{
		Model:             b.models.Notes,
		SystemInstruction: systemInstructions[call.Intent],
		Messages:          []llm.Message{{Role: llm.RoleUser, Parts: parts}},
		ResponseMIMEType:  jsonMIMEType,
	}, nil
}

func (b *bridge) quizRequest(call *Call) (*llm.Request, error) {
	if call.Difficulty = strings.TrimSpace(call.Difficulty); call.Difficulty == "" {
		call.Difficulty = DefaultDifficulty
	}
	if call.NumQuestions == 0 {
		call.NumQuestions = DefaultNumQuestions
	}
	if call.NumQuestions < 0 || call.NumQuestions > MaxNumQuestions {
		return nil, apperr.Validation("numQuestions must be between 1 and %d", MaxNumQuestions)
	}

	var parts []llm.Part
	if call.Intent == IntentQuizFromDocument {
		if !call.Document.HasPayload() {
			return nil, apperr.Validation("no document is loaded")
		}
		parts = append(parts, documentPart(call.Document))
	} else {
		topic := strings.TrimSpace(call.Topic)
		if topic == "" {
			return nil, apperr.Validation("topic must not be empty")
		}
		parts = append(parts, llm.Part{Text: topic})
	}
	parts = append(parts, llm.Part{Text: call.Difficulty}, llm.Part{Text: strconv.Itoa(call.NumQuestions)})

	return &llm.Request{
		Model:             b.models.Quiz,
		SystemInstruction: systemInstructions[call.Intent],
		Messages:          []llm.Message{{Role: llm.RoleUser, Parts: parts}},
		ResponseMIMEType:  jsonMIMEType,
	}, nil
}

func documentPart(doc *model.Document) llm.Part {
	mime := doc.MIMEType
	if mime == "" {
		mime = model.MIMETypePDF
	}
	return llm.Part{Data: doc.Data, MIMEType: mime}
}
