package pipeline

import (
	"fmt"
	"strings"

	"github.com/duckmesh/tabletalk/internal/llm"
)

const (
	identifySystemPrompt  = "You are an intelligent SQL assistant."
	summarizeSystemPrompt = "You are a helpful data analyst who speaks in plain English."

	schemaUnavailable = "(schema unavailable)"
)

type tableDescription struct {
	Name   string
	Schema string
}

func identifyPrompt(query string, tables []tableDescription) llm.Prompt {
	blocks := make([]string, 0, len(tables))
	for _, table := range tables {
		blocks = append(blocks, fmt.Sprintf("Table: %s\nColumns: %s", table.Name, table.Schema))
	}
	user := fmt.Sprintf(`You are a data expert.
Given the user's query and available tables, choose the ONE table that best matches the query.

User Query: %s
Available Tables and Schemas:
%s

Return only the table name (no explanation). If no table fits, return 'none'.
`, query, strings.Join(blocks, "\n\n"))
	return llm.Prompt{System: identifySystemPrompt, User: user}
}

func enrichedQuestion(state State) string {
	return fmt.Sprintf("Conversation so far:\n%s\n\nUser Query: %s\n", state.Memory, state.Query)
}

func summarizePrompt(state State) llm.Prompt {
	memory := state.Memory
	if memory == "" {
		memory = "None"
	}
	user := fmt.Sprintf(`Conversation Memory:
%[1]s

User Query: %[2]s
SQL Result: %[3]s
Table: %[4]s

Write a clear, detailed answer in full sentences.
- Only describe the SQL result from table %[4]s.
- Do not invent or switch to other datasets.
- Always explain the result in context.
- Include percentages or comparisons if relevant.
- Do not suggest next steps or ask questions.
`, memory, state.Query, state.Result, state.TableName)
	return llm.Prompt{System: summarizeSystemPrompt, User: user}
}
