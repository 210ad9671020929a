package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"stock-tracker/internal/core"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
	"github.com/openai/openai-go/shared/constant"
)

// UpdateInterpreter turns an agent's free-text stock update into a ChangeIntent proposal.
// The result is always routed through the approval queue, never applied directly.
type UpdateInterpreter interface {
	InterpretUpdate(ctx context.Context, text string, unit *core.Unit, directory string) (*Interpretation, error)
}

// Interpretation is either an intent or a question back to the agent.
type Interpretation struct {
	Intent                *core.ChangeIntent `json:"intent,omitempty"`
	ClarificationQuestion string             `json:"clarification_question,omitempty"`
	Confidence            float64            `json:"confidence"`
	Reasoning             string             `json:"reasoning"`
}

// NeedsClarification reports whether the model asked a question instead of proposing a change.
func (i *Interpretation) NeedsClarification() bool {
	return i.Intent == nil
}

type Agent struct {
	client *openai.Client
	model  string
}

func NewAgent(apiKey, model string) *Agent {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	if model == "" {
		model = string(shared.ChatModelGPT4o)
	}
	return &Agent{client: &client, model: model}
}

func (a *Agent) InterpretUpdate(ctx context.Context, text string, unit *core.Unit, directory string) (*Interpretation, error) {
	prompt := fmt.Sprintf(`You help field agents report changes to decoder and smartcard stock.
Your goal is to turn the agent's message into a structured change for ONE unit.
Rules:
1. Statuses: in_store (in the warehouse), in_hand (with an agent), sold. Use "unchanged" if the message does not move the unit.
2. A sold unit can never go back to in_store or in_hand.
3. payment_status is "paid", "unpaid" or "unchanged". Only sold units have a payment state.
4. package_choice is the subscription package name, "none" if sold without one, or "" if not mentioned.
5. sale_amount is an exact decimal string (e.g. "1500.00") or "" if not mentioned.
6. assign_team_id / assign_user_id: an id from the directory, -1 to clear, 0 to leave unchanged.
7. If the message is ambiguous, set needs_clarification and ask one short question.
8. Provide a confidence score (0.0-1.0) and explain your reasoning.

Unit:
%s

Directory:
%s

Message: %s`, describeUnit(unit), directory, text)

	// Dynamically generate the JSON schema from the Go struct
	schemaMap, err := generateSchema()
	if err != nil {
		return nil, err
	}

	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(a.model),
		Input: responses.ResponseNewParamsInputUnion{
			OfString: param.NewOpt(prompt),
		},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Type:        constant.JSONSchema("json_schema"),
					Name:        "stock_update_proposal",
					Strict:      param.NewOpt(true),
					Schema:      schemaMap,
					Description: param.NewOpt("A proposed change to one stock unit"),
				},
			},
		},
	}

	resp, err := a.client.Responses.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai responses error: %w", err)
	}

	content := resp.OutputText()
	if content == "" {
		return nil, fmt.Errorf("empty response content")
	}

	var draft intentDraft
	if err := json.Unmarshal([]byte(content), &draft); err != nil {
		return nil, fmt.Errorf("failed to parse completion: %w", err)
	}
	return draft.toInterpretation(unit.ID)
}

func describeUnit(u *core.Unit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "id=%d kind=%s status=%s", u.ID, u.Kind, u.Status)
	if u.Smartcard != "" {
		fmt.Fprintf(&b, " smartcard=%s", u.Smartcard)
	}
	if u.SerialNumber != "" {
		fmt.Fprintf(&b, " serial=%s", u.SerialNumber)
	}
	if u.AssignedTeamID != nil {
		fmt.Fprintf(&b, " team=%d", *u.AssignedTeamID)
	}
	if u.AssignedUserID != nil {
		fmt.Fprintf(&b, " user=%d", *u.AssignedUserID)
	}
	return b.String()
}

func generateSchema() (map[string]any, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schemaJSON, err := json.Marshal(reflector.Reflect(&intentDraft{}))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	var schemaMap map[string]any
	if err := json.Unmarshal(schemaJSON, &schemaMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema to map: %w", err)
	}
	return schemaMap, nil
}
