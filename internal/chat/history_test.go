package chat

import (
	"testing"

	"aide/internal/assistants"
)

func textMessage(id, role, value string, createdAt int64) assistants.Message {
	return assistants.Message{
		ID:        id,
		CreatedAt: createdAt,
		Role:      role,
		Content: []assistants.Content{
			{Type: "text", Text: &assistants.TextContent{Value: value}},
		},
	}
}

func TestFormatHistoryPairsAndDescendingOrder(t *testing.T) {
	// Arrives in descending order, as the remote API returns by default.
	messages := []assistants.Message{
		textMessage("msg_4", assistants.RoleAssistant, "answer two", 40),
		textMessage("msg_3", assistants.RoleUser, "question two", 30),
		textMessage("msg_2", assistants.RoleAssistant, "answer one", 20),
		textMessage("msg_1", assistants.RoleUser, "question one", 10),
	}
	pairs := FormatHistory(messages)
	if len(pairs) != 2 {
		t.Fatalf("pairs = %d, want 2", len(pairs))
	}
	if pairs[0].Question != "question two" || pairs[0].Answer != "answer two" {
		t.Fatalf("most recent pair = %+v", pairs[0])
	}
	if pairs[1].Question != "question one" || pairs[1].Answer != "answer one" {
		t.Fatalf("older pair = %+v", pairs[1])
	}
	if pairs[0].QuestionID != "msg_3" || pairs[0].AnswerID != "msg_4" {
		t.Fatalf("pair ids = %+v", pairs[0])
	}
}

func TestFormatHistoryUnansweredQuestion(t *testing.T) {
	messages := []assistants.Message{
		textMessage("msg_1", assistants.RoleUser, "first", 10),
		textMessage("msg_2", assistants.RoleUser, "second before any answer", 20),
		textMessage("msg_3", assistants.RoleAssistant, "reply to second", 30),
	}
	pairs := FormatHistory(messages)
	if len(pairs) != 2 {
		t.Fatalf("pairs = %d, want 2", len(pairs))
	}
	// Descending: the answered pair first, then the abandoned question.
	if pairs[0].Question != "second before any answer" || pairs[0].Answer != "reply to second" {
		t.Fatalf("pairs[0] = %+v", pairs[0])
	}
	if pairs[1].Question != "first" || pairs[1].Answer != "" || pairs[1].AnswerID != "" {
		t.Fatalf("pairs[1] = %+v", pairs[1])
	}
}

func TestFormatHistoryTrailingQuestion(t *testing.T) {
	messages := []assistants.Message{
		textMessage("msg_1", assistants.RoleUser, "hello", 10),
	}
	pairs := FormatHistory(messages)
	if len(pairs) != 1 || pairs[0].Answer != "" {
		t.Fatalf("pairs = %+v", pairs)
	}
}

func TestFormatHistorySkipsEmptyContent(t *testing.T) {
	messages := []assistants.Message{
		textMessage("msg_1", assistants.RoleUser, "real question", 10),
		{ID: "msg_2", CreatedAt: 20, Role: assistants.RoleAssistant},
		textMessage("msg_3", assistants.RoleAssistant, "real answer", 30),
	}
	pairs := FormatHistory(messages)
	if len(pairs) != 1 {
		t.Fatalf("pairs = %d, want 1", len(pairs))
	}
	if pairs[0].Answer != "real answer" {
		t.Fatalf("empty message should not close the slot: %+v", pairs[0])
	}
}

func TestFormatHistoryAssistantWithoutQuestionIgnored(t *testing.T) {
	messages := []assistants.Message{
		textMessage("msg_1", assistants.RoleAssistant, "orphan reply", 10),
	}
	if pairs := FormatHistory(messages); len(pairs) != 0 {
		t.Fatalf("pairs = %+v, want none", pairs)
	}
}

func TestMessageTextResolvesFileAnnotations(t *testing.T) {
	msg := assistants.Message{
		ID:   "msg_1",
		Role: assistants.RoleAssistant,
		Content: []assistants.Content{
			{Type: "text", Text: &assistants.TextContent{
				Value: "Download sandbox:/mnt/data/out.csv here.",
				Annotations: []assistants.Annotation{
					{Type: "file_path", Text: "sandbox:/mnt/data/out.csv", FilePath: &assistants.FileRef{FileID: "file_9"}},
				},
			}},
		},
	}
	if got := MessageText(msg); got != "Download /api/files/file_9 here." {
		t.Fatalf("MessageText = %q", got)
	}
}

func TestMessageTextDropsUnresolvableAnnotations(t *testing.T) {
	msg := assistants.Message{
		ID:   "msg_1",
		Role: assistants.RoleAssistant,
		Content: []assistants.Content{
			{Type: "text", Text: &assistants.TextContent{
				Value: "See the report【4:0†report.pdf】 for details.",
				Annotations: []assistants.Annotation{
					{Type: "file_citation", Text: "【4:0†report.pdf】"},
				},
			}},
		},
	}
	if got := MessageText(msg); got != "See the report for details." {
		t.Fatalf("MessageText = %q", got)
	}
}

func TestMessageTextJoinsBlocks(t *testing.T) {
	msg := assistants.Message{
		Content: []assistants.Content{
			{Type: "text", Text: &assistants.TextContent{Value: "part one"}},
			{Type: "image_file"},
			{Type: "text", Text: &assistants.TextContent{Value: "part two"}},
		},
	}
	if got := MessageText(msg); got != "part one\npart two" {
		t.Fatalf("MessageText = %q", got)
	}
}
