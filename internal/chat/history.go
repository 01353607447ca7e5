package chat

import (
	"sort"
	"strings"

	"aide/internal/assistants"
)

// DisplayPair is one question with the reply that followed it, shaped for
// chat-style display.
type DisplayPair struct {
	QuestionID string `json:"question_id"`
	Question   string `json:"question"`
	AnswerID   string `json:"answer_id,omitempty"`
	Answer     string `json:"answer"`
	CreatedAt  int64  `json:"created_at"`
}

// FormatHistory pairs user messages with the assistant replies that follow
// them and returns the pairs most recent first. A user message with no reply
// before the next user message yields a pair with an empty answer. Messages
// with no content are skipped entirely.
func FormatHistory(messages []assistants.Message) []DisplayPair {
	ordered := make([]assistants.Message, 0, len(messages))
	for _, msg := range messages {
		if len(msg.Content) == 0 {
			continue
		}
		ordered = append(ordered, msg)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt < ordered[j].CreatedAt
	})

	var ascending []DisplayPair
	var open *DisplayPair
	for _, msg := range ordered {
		switch msg.Role {
		case assistants.RoleUser:
			if open != nil {
				ascending = append(ascending, *open)
			}
			open = &DisplayPair{
				QuestionID: msg.ID,
				Question:   MessageText(msg),
				CreatedAt:  msg.CreatedAt,
			}
		case assistants.RoleAssistant:
			if open == nil {
				continue
			}
			open.AnswerID = msg.ID
			open.Answer = MessageText(msg)
			ascending = append(ascending, *open)
			open = nil
		}
	}
	if open != nil {
		ascending = append(ascending, *open)
	}

	pairs := make([]DisplayPair, 0, len(ascending))
	for i := len(ascending) - 1; i >= 0; i-- {
		pairs = append(pairs, ascending[i])
	}
	return pairs
}

// MessageText renders a message's text blocks as one display string.
// Annotation markers inserted by the remote side are stripped.
func MessageText(msg assistants.Message) string {
	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Text == nil {
			continue
		}
		value := block.Text.Value
		for _, annotation := range block.Text.Annotations {
			if annotation.Text == "" {
				continue
			}
			value = strings.ReplaceAll(value, annotation.Text, annotationRef(annotation))
		}
		if sb.Len() > 0 && value != "" {
			sb.WriteString("\n")
		}
		sb.WriteString(value)
	}
	return sb.String()
}

// annotationRef rewrites a file annotation into a download path the HTTP
// surface serves; citation and path markers without a file id are dropped.
func annotationRef(annotation assistants.Annotation) string {
	switch {
	case annotation.FilePath != nil && annotation.FilePath.FileID != "":
		return "/api/files/" + annotation.FilePath.FileID
	case annotation.FileCitation != nil && annotation.FileCitation.FileID != "":
		return "/api/files/" + annotation.FileCitation.FileID
	default:
		return ""
	}
}
