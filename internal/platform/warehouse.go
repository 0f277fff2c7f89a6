package platform

import (
	"context"
	"net/http"
	"strings"

	"voc-dashboard/internal/domain"
)

const statementsPath = "/api/2.0/sql/statements"

// statementResponse mirrors the warehouse statement-execution API: execution
// state, a schema manifest, and the row data as arrays of values.
type statementResponse struct {
	StatementID string `json:"statement_id"`
	Status      struct {
		State string `json:"state"`
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	} `json:"status"`
	Manifest struct {
		Schema struct {
			Columns []struct {
				Name string `json:"name"`
			} `json:"columns"`
		} `json:"schema"`
	} `json:"manifest"`
	Result struct {
		DataArray [][]interface{} `json:"data_array"`
	} `json:"result"`
}

// toPayload converts a terminal statement response into a ResultPayload.
func (r *statementResponse) toPayload() (*domain.ResultPayload, error) {
	switch r.Status.State {
	case "SUCCEEDED":
	case "FAILED", "CANCELED", "CLOSED":
		msg := r.Status.Error.Message
		if msg == "" {
			msg = "statement did not complete successfully"
		}
		return nil, domain.ErrTransport("statement %s: %s", strings.ToLower(r.Status.State), msg)
	default:
		return nil, domain.ErrTransport("statement still %s after wait timeout", strings.ToLower(r.Status.State))
	}

	cols := make([]string, len(r.Manifest.Schema.Columns))
	for i, c := range r.Manifest.Schema.Columns {
		cols[i] = c.Name
	}
	return &domain.ResultPayload{Columns: cols, Rows: r.Result.DataArray}, nil
}

// WarehouseClient executes SQL statements against the platform's SQL
// warehouse over its HTTP statement API.
type WarehouseClient struct {
	client        *Client
	warehousePath string
	waitTimeout   string // server-side synchronous wait, e.g. "30s"
}

var _ domain.StatementExecutor = (*WarehouseClient)(nil)

// NewWarehouseClient creates a WarehouseClient bound to one warehouse path.
func NewWarehouseClient(client *Client, warehousePath string) *WarehouseClient {
	return &WarehouseClient{
		client:        client,
		warehousePath: warehousePath,
		waitTimeout:   "30s",
	}
}

// ExecuteStatement runs a SQL statement and returns its full result set.
// The warehouse holds the request open until the statement reaches a
// terminal state or the server-side wait elapses.
func (w *WarehouseClient) ExecuteStatement(ctx context.Context, cred domain.Credential, sqlQuery string) (*domain.ResultPayload, error) {
	if w.warehousePath == "" {
		return nil, domain.ErrConfig("warehouse path is not configured")
	}

	reqBody := map[string]interface{}{
		"statement":      sqlQuery,
		"warehouse_path": w.warehousePath,
		"wait_timeout":   w.waitTimeout,
		"format":         "JSON_ARRAY",
	}

	var resp statementResponse
	if err := w.client.doJSON(ctx, http.MethodPost, statementsPath, cred, reqBody, &resp); err != nil {
		return nil, err
	}
	return resp.toPayload()
}

// GetStatement fetches an existing statement by id. Used for query results
// referenced from conversational answers.
func (w *WarehouseClient) GetStatement(ctx context.Context, cred domain.Credential, statementID string) (*domain.ResultPayload, error) {
	var resp statementResponse
	if err := w.client.doJSON(ctx, http.MethodGet, statementsPath+"/"+statementID, cred, nil, &resp); err != nil {
		return nil, err
	}
	return resp.toPayload()
}
