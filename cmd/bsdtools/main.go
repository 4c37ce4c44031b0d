// Package main provides a CLI for the bsdtools v2 API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bsdtools/client-go/pkg/api"
	"github.com/bsdtools/client-go/pkg/client"
)

var (
	// Global flags
	apiURL       string
	apiID        string
	apiSecret    string
	timeout      time.Duration
	jsonOutput   bool
	debugHTTP    bool
	maxAttempts  int
	pollInterval time.Duration
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "bsdtools",
	Short: "bsdtools v2 API CLI",
	Long: `A command-line client for the bsdtools v2 API.

Every request is signed with the configured credentials. When the
server defers an answer, the command polls for the result and prints
only the final response.

Environment variables:
  BSDTOOLS_URL        - API base URL
  BSDTOOLS_API_ID     - identity the requests are signed as
  BSDTOOLS_API_SECRET - shared secret used for signing`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "url", "", "API base URL (or BSDTOOLS_URL env)")
	rootCmd.PersistentFlags().StringVar(&apiID, "id", "", "API identity (or BSDTOOLS_API_ID env)")
	rootCmd.PersistentFlags().StringVar(&apiSecret, "secret", "", "API secret (or BSDTOOLS_API_SECRET env)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", client.DefaultTimeout, "Per-request timeout")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	rootCmd.PersistentFlags().BoolVar(&debugHTTP, "debug", false, "Dump HTTP traffic to stderr")
	rootCmd.PersistentFlags().IntVar(&maxAttempts, "max-attempts", client.DefaultDeferredResultMaxAttempts, "Polls before a deferred result times out")
	rootCmd.PersistentFlags().DurationVar(&pollInterval, "interval", client.DefaultDeferredResultInterval, "Pause between deferred result polls")

	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(postCmd)
	rootCmd.AddCommand(versionCmd)
}

// environment carries the BSDTOOLS_* settings.
type environment struct {
	URL       string `envconfig:"URL"`
	APIID     string `envconfig:"API_ID"`
	APISecret string `envconfig:"API_SECRET"`
}

// fromEnvironment reads the BSDTOOLS_* variables; unset ones come back
// empty. All fields are plain strings, so decoding cannot fail.
func fromEnvironment() environment {
	var env environment
	_ = envconfig.Process("bsdtools", &env)
	return env
}

// getBaseURL returns the API base URL from flags or environment
func getBaseURL() string {
	if apiURL != "" {
		return apiURL
	}
	return fromEnvironment().URL
}

// getIdentity returns the signing identity from flags or environment
func getIdentity() string {
	if apiID != "" {
		return apiID
	}
	return fromEnvironment().APIID
}

// getSecret returns the signing secret from flags or environment
func getSecret() string {
	if apiSecret != "" {
		return apiSecret
	}
	return fromEnvironment().APISecret
}

// newClient creates a signed API client from flags and environment
func newClient() (*client.Client, error) {
	opts := []client.Option{
		client.WithTimeout(timeout),
		client.WithDeferredResultMaxAttempts(maxAttempts),
		client.WithDeferredResultInterval(pollInterval),
	}
	if debugHTTP {
		logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		opts = append(opts, client.WithLogger(logger), client.WithDebugHTTP())
	}
	return client.New(getBaseURL(), getIdentity(), getSecret(), opts...)
}

// parseParams turns repeated key=value flags into ordered parameters.
// Order is preserved: it is covered by the request signature.
func parseParams(raw []string) (api.Params, error) {
	params := make(api.Params, 0, len(raw))
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q (want key=value)", kv)
		}
		params = params.Add(key, value)
	}
	return params, nil
}

// outputJSON prints the value as JSON
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printResponse writes the final response to stdout. Server-reported
// failures are printed too, then turned into a non-zero exit.
func printResponse(resp *api.Response) error {
	if jsonOutput {
		if err := outputJSON(map[string]any{
			"status": resp.StatusCode,
			"body":   string(resp.Body),
		}); err != nil {
			return err
		}
	} else {
		body := string(resp.Body)
		fmt.Print(body)
		if body != "" && !strings.HasSuffix(body, "\n") {
			fmt.Println()
		}
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("server answered %d", resp.StatusCode)
	}
	return nil
}

// Get command
var getCmd = &cobra.Command{
	Use:   "get <api-path>",
	Short: "Issue a signed GET",
	Long: `Issues a signed GET to an endpoint under /page/api/ and prints the
final result, polling for deferred answers as needed.

Example:
  bsdtools get circuit_search --param view=dns --param q=example.com`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rawParams, _ := cmd.Flags().GetStringArray("param")
		params, err := parseParams(rawParams)
		if err != nil {
			return err
		}

		c, err := newClient()
		if err != nil {
			return fmt.Errorf("failed to create client: %w", err)
		}

		// No overall deadline: a deferred result may legitimately take
		// max-attempts * interval to arrive. The per-request timeout
		// still bounds each exchange.
		resp, err := c.Get(context.Background(), args[0], params)
		if err != nil {
			if client.IsDeferredTimeout(err) {
				return fmt.Errorf("gave up waiting: %w", err)
			}
			return fmt.Errorf("request failed: %w", err)
		}

		return printResponse(resp)
	},
}

func init() {
	getCmd.Flags().StringArray("param", nil, "Query parameter as key=value (repeatable, order preserved)")
}

// Post command
var postCmd = &cobra.Command{
	Use:   "post <api-path>",
	Short: "Issue a signed POST",
	Long: `Issues a signed POST to an endpoint under /page/api/. The request body
comes from --body, or from stdin when the flag is absent.

Example:
  bsdtools post note_add --param circuit=VLN-204 --body "flapping since 09:40"
  cat report.txt | bsdtools post report_upload`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rawParams, _ := cmd.Flags().GetStringArray("param")
		params, err := parseParams(rawParams)
		if err != nil {
			return err
		}

		body, _ := cmd.Flags().GetString("body")
		if !cmd.Flags().Changed("body") {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("failed to read input: %w", err)
			}
			body = string(data)
		}

		c, err := newClient()
		if err != nil {
			return fmt.Errorf("failed to create client: %w", err)
		}

		resp, err := c.Post(context.Background(), args[0], params, body)
		if err != nil {
			if client.IsDeferredTimeout(err) {
				return fmt.Errorf("gave up waiting: %w", err)
			}
			return fmt.Errorf("request failed: %w", err)
		}

		return printResponse(resp)
	},
}

func init() {
	postCmd.Flags().StringArray("param", nil, "Query parameter as key=value (repeatable, order preserved)")
	postCmd.Flags().String("body", "", "Request body (reads stdin when omitted)")
}

// Version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the client version",
	RunE: func(cmd *cobra.Command, args []string) error {
		if jsonOutput {
			return outputJSON(map[string]string{"version": client.Version})
		}
		fmt.Println(client.Version)
		return nil
	},
}
