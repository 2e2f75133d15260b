package model

import "time"

// StudyNotes 是一次生成调用产出的学习笔记，重新生成时整体替换。
type StudyNotes struct {
	ID                string   `json:"id"`
	Summary           string   `json:"summary"`
	KeyConcepts       []string `json:"key_concepts"`
	ImportantTerms    []string `json:"important_terms"`
	PracticeQuestions []string `json:"practice_questions"`
	Topic             string   `json:"topic,omitempty"`
	Focus             string   `json:"focus,omitempty"`
}

// QuizQuestion 是测验中的一道题，Answer 必须是 Choices 之一。
type QuizQuestion struct {
	ID         string   `json:"id"`
	Question   string   `json:"question"`
	Answer     string   `json:"answer"`
	Choices    []string `json:"choices"`
	Difficulty string   `json:"difficulty"`
	Topic      string   `json:"topic"`
}

// Quiz 是一批一起生成的题目。
type Quiz struct {
	ID         string         `json:"id"`
	Topic      string         `json:"topic,omitempty"`
	Difficulty string         `json:"difficulty"`
	Questions  []QuizQuestion `json:"questions"`
}

// ArtifactInfo 描述产物的来源。
// 由文档生成的产物在会话绑定新文档后被标记为过期，必须重新生成。
type ArtifactInfo struct {
	SourceDocumentID string    `json:"sourceDocumentId,omitempty"`
	GeneratedAt      time.Time `json:"generatedAt"`
	Stale            bool      `json:"stale"`
}

// NotesArtifact 是会话当前的学习笔记及其来源。
type NotesArtifact struct {
	Notes StudyNotes `json:"notes"`
	ArtifactInfo
}

// QuizArtifact 是会话当前的测验及其来源。
type QuizArtifact struct {
	Quiz Quiz `json:"quiz"`
	ArtifactInfo
}
