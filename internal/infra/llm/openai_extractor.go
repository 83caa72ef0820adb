package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"bookkeeper_bot/internal/domain/chat"
	"bookkeeper_bot/internal/domain/expense"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

const (
	addExpenseTool = "bookkeeper_add_expense"
	requestTimeout = 30 * time.Second
)

// ExpenseRecorder is the tool target: it stores one expense and returns a short
// result for the model.
type ExpenseRecorder interface {
	AddExpense(ctx context.Context, ev chat.Event, item, amount, note string) string
	Today() time.Time
}

// Config configures the chat completion endpoint.
type Config struct {
	APIKey  string
	BaseURL string // Without the /v1 suffix
	Model   string
}

// OpenAIExtractor asks the model to turn spending facts in a message into
// bookkeeper_add_expense tool calls and executes them.
type OpenAIExtractor struct {
	client   *openai.Client
	model    string
	recorder ExpenseRecorder
	logger   *logrus.Entry
}

func NewOpenAIExtractor(cfg Config, recorder ExpenseRecorder, logger *logrus.Entry) *OpenAIExtractor {
	openaiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		openaiCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/") + "/v1"
	}
	return &OpenAIExtractor{
		client:   openai.NewClientWithConfig(openaiCfg),
		model:    cfg.Model,
		recorder: recorder,
		logger:   logger,
	}
}

// Extract runs one completion over text. Each tool call is executed in order and
// the results are joined into the reply; no tool call means no reply.
func (e *OpenAIExtractor) Extract(ctx context.Context, ev chat.Event, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(e.recorder.Today())},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Tools:      []openai.Tool{addExpenseToolDefinition()},
		ToolChoice: "auto",
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty choices from OpenAI")
	}

	var results []string
	for _, call := range resp.Choices[0].Message.ToolCalls {
		if call.Function.Name != addExpenseTool {
			e.logger.WithField("tool", call.Function.Name).Warn("Ignoring unknown tool call")
			continue
		}
		args, err := decodeArguments(call.Function.Arguments)
		if err != nil {
			e.logger.WithError(err).WithField("arguments", call.Function.Arguments).Warn("Malformed tool arguments")
			results = append(results, "Bookkeeping skipped: malformed tool arguments.")
			continue
		}
		results = append(results, e.recorder.AddExpense(ctx, ev, args.Item, args.Amount, args.Note))
	}
	return strings.Join(results, "\n"), nil
}

func systemPrompt(today time.Time) string {
	return "You are a bookkeeping assistant in a group chat.\n\n" +
		"[Bookkeeping Tool Policy]\n" +
		"You can call `" + addExpenseTool + "` to store expense items.\n" +
		"Today is " + expense.FormatDate(today) + ".\n" +
		"If and only if the latest user message contains explicit spending facts with amounts, " +
		"call the tool once per expense item.\n" +
		"Each record must be brief: item + amount.\n" +
		"Do not guess missing amounts.\n" +
		"Do not record income, refunds, or planned future spending.\n"
}

func addExpenseToolDefinition() openai.Tool {
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        addExpenseTool,
			Description: "Record one expense item.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"item": map[string]string{
						"type":        "string",
						"description": "Brief expense description",
					},
					"amount": map[string]string{
						"type":        "number",
						"description": "Expense amount, must be greater than 0",
					},
					"note": map[string]string{
						"type":        "string",
						"description": "Optional short note",
					},
				},
				"required": []string{"item", "amount"},
			},
		},
	}
}

type toolArguments struct {
	Item   string
	Amount string // Decimal literal as sent by the model
	Note   string
}

// decodeArguments keeps the amount as its JSON literal so it never passes
// through a float. Models sometimes quote numbers; both forms are accepted.
func decodeArguments(raw string) (toolArguments, error) {
	var fields struct {
		Item   string          `json:"item"`
		Amount json.RawMessage `json:"amount"`
		Note   string          `json:"note"`
	}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return toolArguments{}, err
	}
	amount := strings.TrimSpace(string(fields.Amount))
	if strings.HasPrefix(amount, `"`) {
		var s string
		if err := json.Unmarshal(fields.Amount, &s); err != nil {
			return toolArguments{}, err
		}
		amount = s
	}
	return toolArguments{Item: fields.Item, Amount: amount, Note: fields.Note}, nil
}
