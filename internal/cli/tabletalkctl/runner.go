// Package tabletalkctl is the command-line client for the tabletalk API.
package tabletalkctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

type Options struct {
	BaseURL    string
	SessionID  string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

// requestError marks failures that happened after the command line was
// understood: transport errors and non-2xx responses.
type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

type client struct {
	baseURL *string
	session *string
	timeout *time.Duration
	http    *http.Client
	stdout  io.Writer
}

// Run executes one command and returns the process exit code.
func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	root := NewRootCommand(defaults, stdout)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	_, _ = fmt.Fprintln(stderr, "error:", err)
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return exitFailure
	}
	return exitUsage
}

func NewRootCommand(defaults Options, stdout io.Writer) *cobra.Command {
	c := &client{
		baseURL: new(string),
		session: new(string),
		timeout: new(time.Duration),
		http:    defaults.HTTPClient,
		stdout:  stdout,
	}

	root := &cobra.Command{
		Use:           "tabletalkctl",
		Short:         "Ask questions about uploaded tables and manage chat sessions.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(c.baseURL, "base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "tabletalk API base URL")
	root.PersistentFlags().StringVar(c.session, "session", firstNonEmpty(defaults.SessionID, "default"), "chat session id")
	root.PersistentFlags().DurationVar(c.timeout, "timeout", durationOr(defaults.Timeout, 3*time.Minute), "HTTP timeout (e.g. 30s)")

	root.AddCommand(
		c.askCommand(),
		c.uploadCommand(),
		c.sessionsCommand(),
		c.historyCommand(),
		c.healthCommand(),
	)
	return root
}

func (c *client) askCommand() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "ask <question...>",
		Short: "Ask a question in the current session",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := json.Marshal(map[string]string{
				"user_query": strings.Join(args, " "),
				"session_id": *c.session,
			})
			if err != nil {
				return err
			}
			body, err := c.call(cmd.Context(), http.MethodPost, "/ask_graph_agent", "application/json", bytes.NewReader(payload))
			if err != nil {
				return err
			}
			if raw {
				return c.printJSON(body)
			}
			var response struct {
				Response string `json:"response"`
			}
			if err := json.Unmarshal(body, &response); err != nil {
				return &requestError{fmt.Errorf("decode response: %w", err)}
			}
			_, _ = fmt.Fprintln(c.stdout, response.Response)
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print the full JSON response including the conversation")
	return cmd
}

func (c *client) uploadCommand() *cobra.Command {
	var table string
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a CSV or Excel file, replacing the target table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(table) == "" {
				return errors.New("--table is required")
			}
			body, contentType, err := multipartBody(args[0], table)
			if err != nil {
				return err
			}
			response, err := c.call(cmd.Context(), http.MethodPost, "/upload_new_table", contentType, body)
			if err != nil {
				return err
			}
			var result struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(response, &result); err != nil || result.Message == "" {
				return c.printJSON(response)
			}
			_, _ = fmt.Fprintln(c.stdout, result.Message)
			return nil
		},
	}
	cmd.Flags().StringVar(&table, "table", "", "target table name")
	return cmd
}

func (c *client) sessionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List known chat sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := c.call(cmd.Context(), http.MethodGet, "/sessions", "", nil)
			if err != nil {
				return err
			}
			var response struct {
				Sessions []string `json:"sessions"`
			}
			if err := json.Unmarshal(body, &response); err != nil {
				return &requestError{fmt.Errorf("decode response: %w", err)}
			}
			table := newTable(c.stdout, "Session")
			for _, id := range response.Sessions {
				table.Append([]string{id})
			}
			table.Render()
			return nil
		},
	}
}

func (c *client) historyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "history [session]",
		Short: "Show the conversation of a session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := *c.session
			if len(args) == 1 {
				id = args[0]
			}
			body, err := c.call(cmd.Context(), http.MethodGet, "/sessions/"+url.PathEscape(id), "", nil)
			if err != nil {
				return err
			}
			var response struct {
				Conversation []struct {
					User string `json:"user"`
					Bot  string `json:"bot"`
				} `json:"conversation"`
			}
			if err := json.Unmarshal(body, &response); err != nil {
				return &requestError{fmt.Errorf("decode response: %w", err)}
			}
			table := newTable(c.stdout, "#", "User", "Bot")
			for i, turn := range response.Conversation {
				table.Append([]string{fmt.Sprint(i + 1), turn.User, turn.Bot})
			}
			table.Render()
			return nil
		},
	}
}

func (c *client) healthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the API is up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := c.call(cmd.Context(), http.MethodGet, "/health", "", nil)
			if err != nil {
				return err
			}
			return c.printJSON(body)
		},
	}
}

func (c *client) call(ctx context.Context, method, path, contentType string, body io.Reader) ([]byte, error) {
	httpClient := c.http
	if httpClient == nil {
		httpClient = &http.Client{Timeout: *c.timeout}
	}
	endpoint := strings.TrimRight(*c.baseURL, "/") + path
	code, responseBody, err := doRequest(ctx, httpClient, method, endpoint, contentType, body)
	if err != nil {
		return nil, &requestError{fmt.Errorf("request failed: %w", err)}
	}
	if code >= 400 {
		return nil, &requestError{fmt.Errorf("http %d: %s", code, strings.TrimSpace(string(responseBody)))}
	}
	return responseBody, nil
}

func (c *client) printJSON(body []byte) error {
	if pretty, ok := prettyJSON(body); ok {
		_, _ = fmt.Fprintln(c.stdout, pretty)
		return nil
	}
	if len(body) > 0 {
		_, _ = fmt.Fprintln(c.stdout, string(body))
	}
	return nil
}

func doRequest(ctx context.Context, client *http.Client, method, url, contentType string, body io.Reader) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

func multipartBody(path, table string) (io.Reader, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)
	if err := writer.WriteField("table_name", table); err != nil {
		return nil, "", err
	}
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("read %s: %w", path, err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return buf, writer.FormDataContentType(), nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader(header)
	return table
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
