package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"voc-dashboard/internal/domain"
)

// GenieClient talks to the platform's conversational analytics service.
// Questions are submitted to a space and answered asynchronously; callers
// poll GetMessage until the message reaches a terminal state.
type GenieClient struct {
	client     *Client
	statements *WarehouseClient // resolves statement ids referenced by answers
}

var _ domain.ConversationalClient = (*GenieClient)(nil)

// NewGenieClient creates a GenieClient. The statements client is used to
// fetch tabular results that answers reference by statement id.
func NewGenieClient(client *Client, statements *WarehouseClient) *GenieClient {
	return &GenieClient{client: client, statements: statements}
}

type genieMessageResponse struct {
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	Attachments []struct {
		Text *struct {
			Content string `json:"content"`
		} `json:"text,omitempty"`
		Query *struct {
			Query       string `json:"query"`
			Description string `json:"description"`
			QueryResult *struct {
				StatementID string `json:"statement_id"`
			} `json:"query_result,omitempty"`
		} `json:"query,omitempty"`
	} `json:"attachments"`
}

// StartConversation submits a question to the space. A rejected submission
// (bad space, malformed request, service down) surfaces as SubmissionError.
func (g *GenieClient) StartConversation(ctx context.Context, cred domain.Credential, spaceID, question string) (string, string, error) {
	if spaceID == "" {
		return "", "", domain.ErrConfig("conversational space id is not configured")
	}

	path := fmt.Sprintf("/api/2.0/genie/spaces/%s/start-conversation", spaceID)
	var resp struct {
		ConversationID string `json:"conversation_id"`
		MessageID      string `json:"message_id"`
	}
	err := g.client.doJSON(ctx, http.MethodPost, path, cred, map[string]string{"content": question}, &resp)
	if err != nil {
		var validation *domain.ValidationError
		var transport *domain.TransportError
		switch {
		case errors.As(err, &validation):
			return "", "", domain.ErrSubmission("question rejected: %s", validation.Message)
		case errors.As(err, &transport):
			return "", "", domain.ErrSubmission("conversational service unavailable: %s", transport.Message)
		default:
			return "", "", err
		}
	}
	if resp.ConversationID == "" || resp.MessageID == "" {
		return "", "", domain.ErrSubmission("conversational service returned no submission id")
	}
	return resp.ConversationID, resp.MessageID, nil
}

// GetMessage fetches the current state of a submitted question, resolving
// any referenced statement results into inline tables.
func (g *GenieClient) GetMessage(ctx context.Context, cred domain.Credential, spaceID, conversationID, messageID string) (*domain.ConversationalMessage, error) {
	path := fmt.Sprintf("/api/2.0/genie/spaces/%s/conversations/%s/messages/%s",
		spaceID, conversationID, messageID)

	var resp genieMessageResponse
	if err := g.client.doJSON(ctx, http.MethodGet, path, cred, nil, &resp); err != nil {
		return nil, err
	}

	msg := &domain.ConversationalMessage{Status: resp.Status, Error: resp.Error}
	for _, att := range resp.Attachments {
		out := domain.MessageAttachment{}
		if att.Text != nil {
			out.Text = att.Text.Content
		}
		// An attachment can carry both narrative text and a generated query.
		if att.Query != nil {
			out.SQLText = att.Query.Query
			if out.Text == "" {
				out.Text = att.Query.Description
			}
			if att.Query.QueryResult != nil && att.Query.QueryResult.StatementID != "" {
				table, err := g.statements.GetStatement(ctx, cred, att.Query.QueryResult.StatementID)
				if err != nil {
					// The answer is still useful without the table; record
					// the failure in place of the data.
					out.Text = fmt.Sprintf("%s (query result unavailable: %v)", out.Text, err)
				} else {
					out.Table = table
				}
			}
		}
		if out.Text == "" && out.Table == nil && out.SQLText == "" {
			continue
		}
		msg.Attachments = append(msg.Attachments, out)
	}
	return msg, nil
}
